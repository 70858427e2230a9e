package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/cleanup"
	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/handler"
	"github.com/shyim/lighthouse-report/internal/metrics"
	"github.com/shyim/lighthouse-report/internal/pipeline"
	"github.com/shyim/lighthouse-report/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run audits on demand over HTTP and serve stored results",
	Long: `Starts the HTTP API:

  POST   /api/result/{id}          run the pipeline for {"urls": [...]}
  DELETE /api/result/{id}          delete the stored artifacts
  GET    /result/{id}/{path...}    serve a file from the stored bundle
  GET    /metrics                  Prometheus metrics

/api routes require "Authorization: Bearer $AUTH_TOKEN" when AUTH_TOKEN is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (default 8080)")
	serveCmd.Flags().String("work-dir", "", "directory for per-request runs")
	serveCmd.Flags().String("runner", "", "runner backend: exec, docker or kubernetes")
	serveCmd.Flags().Duration("timeout", 0, "timeout for a single audit")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	shutdown := setupTelemetry(ctx)
	defer shutdown(context.Background())

	runner, closeRunner, err := newRunner(ctx, cfg.Runner)
	if err != nil {
		return fatal(err)
	}
	defer closeRunner()

	svc := newStore(ctx, &failure.Report{})
	var (
		store     storage.Store
		publisher *storage.Publisher
	)
	if svc != nil {
		store = svc
		publisher = storage.NewPublisher(svc, logger)
	} else {
		logger.Warn("S3 storage unavailable, results will not be stored")
	}

	recorder := metrics.New()
	workspace := pipeline.NewWorkspace(cfg.Server.WorkDir, runner, pipelineOptions(), publisher, recorder, logger)

	cacheDir := ""
	if cfg.Server.WorkDir != "" {
		cacheDir = filepath.Join(cfg.Server.WorkDir, "cache")
	}
	h := handler.NewHandler(workspace, store, handler.Options{
		AuthToken: cfg.Server.AuthToken,
		MaxURLs:   cfg.Server.MaxURLs,
		CacheDir:  cacheDir,
	}, logger)

	// Crashed Chrome instances leave their profiles in the temp dir.
	cleanup.New("", cleanup.DefaultMaxAge, logger).Start(ctx, cfg.Server.CleanupInterval)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", recorder.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h.Wrap(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
		logger.Info("server stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fatal(err)
		}
		return nil
	}
}
