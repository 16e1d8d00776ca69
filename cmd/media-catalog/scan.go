package main

import (
	"bufio"
	"io"
	"os"

	"github.com/spf13/cobra"

	"media-catalog/internal/catalog"
	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/memory"
	"media-catalog/internal/startup"
)

type scanOptions struct {
	jsonl   string
	noIndex bool
	full    bool
}

func newScanCmd(global *globalOptions) *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan pass over root_path",
		Long: `Run one scan pass over root_path and store the resulting records in the
index database. Unchanged files are restamped instead of rebuilt unless
--full is given.

Examples:
  # Update the index
  media-catalog scan -c catalog.yaml

  # Also write every corpus unit as JSON Lines to stdout
  media-catalog scan -c catalog.yaml --jsonl -

  # Only produce JSON Lines, no database
  media-catalog scan --jsonl units.jsonl --no-index`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, global, opts)
		},
	}
	cmd.Flags().StringVar(&opts.jsonl, "jsonl", "", `write corpus units as JSON Lines to this file ("-" for stdout)`)
	cmd.Flags().BoolVar(&opts.noIndex, "no-index", false, "do not write the index database (requires --jsonl)")
	cmd.Flags().BoolVar(&opts.full, "full", false, "rebuild every record instead of skipping unchanged files")
	return cmd
}

func runScan(cmd *cobra.Command, global *globalOptions, opts *scanOptions) (err error) {
	if opts.noIndex && opts.jsonl == "" {
		return catalog.Errorf(catalog.KindConfiguration, "scan", "", "--no-index requires --jsonl")
	}

	cfg, err := startup.Init(global.configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var (
		sinks indexer.Tee
		scans indexer.ScanLog
	)

	if opts.jsonl != "" {
		out, closeOut, err := openJSONL(cmd, opts.jsonl)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeOut(); err == nil && cerr != nil {
				err = catalog.NewError(catalog.KindIO, "write jsonl", opts.jsonl, cerr)
			}
		}()
		sinks = append(sinks, indexer.NewJSONLSink(out))
	}

	if !opts.noIndex {
		db, err := openIndex(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer closeDB(db)
		sinks = append(sinks, db)
		scans = db
	}

	var sink indexer.Sink = sinks
	if len(sinks) == 1 {
		sink = sinks[0]
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	idx, err := newIndexer(cfg, sink, scans, monitor)
	if err != nil {
		return err
	}
	defer idx.Stop()

	var report *indexer.Report
	if opts.full {
		report, err = idx.Rebuild(ctx)
	} else {
		report, err = idx.Index(ctx)
	}
	if report != nil {
		logReport(report)
	}
	return wrapCancelled(ctx, err)
}

// openJSONL opens the JSONL destination. Output is buffered; the returned
// close function flushes it.
func openJSONL(cmd *cobra.Command, target string) (io.Writer, func() error, error) {
	if target == "-" {
		w := bufio.NewWriter(cmd.OutOrStdout())
		return w, w.Flush, nil
	}
	f, err := os.Create(target)
	if err != nil {
		return nil, nil, catalog.NewError(catalog.KindIO, "open jsonl", target, err)
	}
	w := bufio.NewWriter(f)
	return w, func() error {
		if err := w.Flush(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}, nil
}

func logReport(r *indexer.Report) {
	logging.Info("------------------------------------------------------------")
	logging.Info("SCAN %s", r.Generation)
	logging.Info("------------------------------------------------------------")
	logging.Info("  Status:        %s", r.Status)
	logging.Info("  Duration:      %v", r.Duration)
	logging.Info("  Files:         %d", r.Files)
	logging.Info("  Records:       %d (%d unchanged)", r.Records, r.Unchanged)
	logging.Info("  Units:         %d", r.Units)
	logging.Info("  Retired:       %d", r.Retired)
	logging.Info("  Dropped facts: %d", r.DroppedFacts)
	if r.Errors != nil {
		logging.Info("  Errors:        %s", r.Errors)
	}
}
