package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/memory"
	"media-catalog/internal/startup"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		logging.Error("%v", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case catalog.IsKind(err, catalog.KindConfiguration):
		return exitConfigError
	default:
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "media-catalog",
		Short: "Index a media tree into a searchable, provenance-tagged corpus",
		Long: `media-catalog walks a directory of media files, extracts facts from each
file and its sidecars (subtitles, notes, metadata), looks inside archives
without extracting them, and turns the result into corpus units that can be
searched by field or by text.

Configuration is read from an optional YAML file (--config) and from
CATALOG_* environment variables, which take precedence.`,
		Version:       startup.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logLevel != "" {
				level, ok := logging.ParseLevel(opts.logLevel)
				if !ok {
					return catalog.Errorf(catalog.KindConfiguration, "parse flags", "", "unknown log level %q", opts.logLevel)
				}
				logging.SetLevel(level)
			}
			memory.ConfigureFromEnv()
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")

	root.AddCommand(
		newScanCmd(opts),
		newWatchCmd(opts),
		newSearchCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// openIndex opens the index database, creating it unless readOnly.
func openIndex(ctx context.Context, cfg *startup.Config, readOnly bool) (*database.Database, error) {
	if !readOnly {
		if err := startup.PrepareDatabaseDir(cfg.DatabasePath); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	db, err := database.New(ctx, cfg.DatabasePath, &database.Options{ReadOnly: readOnly})
	if err != nil {
		return nil, err
	}
	startup.LogDatabaseInit(cfg.DatabasePath, time.Since(start))
	return db, nil
}

// newIndexer wires the scan pipeline for cfg into sink. scans may be nil.
func newIndexer(cfg *startup.Config, sink indexer.Sink, scans indexer.ScanLog, monitor *memory.Monitor) (*indexer.Indexer, error) {
	startup.LogProducerInit(cfg.FFprobePath)
	pipeline, err := cfg.NewPipeline(sink)
	if err != nil {
		return nil, err
	}
	idxCfg := cfg.IndexerConfig(monitor)
	startup.LogIndexerInit(idxCfg)
	return indexer.New(pipeline, scans, idxCfg), nil
}

func closeDB(db *database.Database) {
	if err := db.Close(); err != nil {
		logging.Warn("Failed to close database: %v", err)
	}
}

// errCancelled reports an interrupted command.
var errCancelled = errors.New("interrupted")

func wrapCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", errCancelled, err)
	}
	return err
}
