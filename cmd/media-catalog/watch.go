package main

import (
	"time"

	"github.com/spf13/cobra"

	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/memory"
	"media-catalog/internal/startup"
)

func newWatchCmd(global *globalOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan root_path, then keep the index current as files change",
		Long: `Run an initial scan, then re-index files as the filesystem reports changes.
Change polling and periodic full scans (index_interval) catch anything the
file watcher misses. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := startup.Init(global.configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := openIndex(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer closeDB(db)

			monitor := memory.NewMonitor(memory.DefaultConfig())
			monitor.Start()
			defer monitor.Stop()

			idx, err := newIndexer(cfg, db, db, monitor)
			if err != nil {
				return err
			}
			if err := idx.Start(); err != nil {
				return err
			}
			defer idx.Stop()
			startup.LogIndexerStarted()

			w, err := idx.NewWatcher(debounce)
			if err != nil {
				return err
			}
			err = w.Run(ctx)
			logging.Info("Watch stopped")
			return err
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", indexer.DefaultDebounce, "how long a burst of changes must settle before re-indexing")
	return cmd
}
