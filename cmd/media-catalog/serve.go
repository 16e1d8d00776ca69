package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"media-catalog/internal/filesystem"
	"media-catalog/internal/handlers"
	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/memory"
	"media-catalog/internal/metrics"
	"media-catalog/internal/middleware"
	"media-catalog/internal/startup"
)

const (
	shutdownTimeout   = 30 * time.Second
	metricsInterval   = time.Minute
	readHeaderTimeout = 15 * time.Second
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var queryOnly bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API, indexing in the background",
		Long: `Serve the read-only query API over HTTP. Unless --query-only is given the
server also indexes root_path in the background and accepts reindex
requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), global, queryOnly)
		},
	}
	cmd.Flags().BoolVar(&queryOnly, "query-only", false, "serve an existing index without scanning")
	return cmd
}

func runServe(ctx context.Context, global *globalOptions, queryOnly bool) error {
	startTime := time.Now()

	cfg, err := startup.Init(global.configPath)
	if err != nil {
		return err
	}

	db, err := openIndex(ctx, cfg, queryOnly)
	if err != nil {
		return err
	}
	defer closeDB(db)

	if cfg.MetricsEnabled {
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
		metrics.InitializeMetrics()
		filesystem.SetObserver(metrics.NewFilesystemObserver())
	}

	var idx *indexer.Indexer
	if !queryOnly {
		monitor := memory.NewMonitor(memory.DefaultConfig())
		monitor.Start()
		defer monitor.Stop()

		idx, err = newIndexer(cfg, db, db, monitor)
		if err != nil {
			return err
		}
		if err := idx.Start(); err != nil {
			return err
		}
		startup.LogIndexerStarted()
	}

	collector := metrics.NewCollector(db, metricsInterval)
	collector.Start()

	h := handlers.New(db, idx)
	router := h.NewRouter(cfg.MetricsEnabled)
	startup.LogHTTPRoutes(router, cfg.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		// Exports stream for as long as they need; streaming applies
		// its own per-write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	startup.LogServerStarted(startup.ServerConfig{
		Port:            cfg.Port,
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	select {
	case err := <-serveErr:
		collector.Stop()
		if idx != nil {
			idx.Stop()
		}
		return err
	case <-ctx.Done():
		startup.LogShutdownInitiated(context.Cause(ctx).Error())
	}

	return shutdown(srv, idx, collector)
}

func shutdown(srv *http.Server, idx *indexer.Indexer, collector *metrics.Collector) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if idx != nil {
		startup.LogShutdownStep("Stopping indexer")
		idx.Stop()
		startup.LogShutdownStepComplete("Indexer stopped")
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	err := srv.Shutdown(ctx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
		err = nil
	}

	startup.LogShutdownComplete()
	return err
}
