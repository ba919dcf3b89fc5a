package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/earth-layers-service/internal/adapter/earthengine"
	httpadapter "github.com/couchcryptid/earth-layers-service/internal/adapter/http"
	"github.com/couchcryptid/earth-layers-service/internal/adapter/retryhttp"
	"github.com/couchcryptid/earth-layers-service/internal/config"
	"github.com/couchcryptid/earth-layers-service/internal/legend"
	"github.com/couchcryptid/earth-layers-service/internal/mosaic"
	"github.com/couchcryptid/earth-layers-service/internal/observability"
	"github.com/couchcryptid/earth-layers-service/internal/pipeline"
)

func main() {
	os.Exit(run())
}

// run generates every layer, then serves them until interrupted. It returns
// the process exit code.
func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	catalog, err := cfg.Catalog()
	if err != nil {
		logger.Error("invalid layer catalog", "error", err)
		return 1
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil { //nolint:gosec // served publicly
		logger.Error("failed to create output dir", "dir", cfg.OutputDir, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := earthengine.NewClient(cfg.EEBaseURL, cfg.EEProject, cfg.EEAccessToken, cfg.EETimeout, logger, metrics)
	downloader := retryhttp.NewClient(cfg.RetryConfig(), logger, metrics)
	fetcher := pipeline.NewTileFetcher(provider, downloader, cfg.OutputDir, cfg.TileSize, logger, metrics)
	renderer := legend.NewRenderer(cfg.LegendCanvasSize, logger)

	p := pipeline.New(
		fetcher,
		pipeline.AssembleFunc(mosaic.Assemble),
		renderer,
		pipeline.Grid{Regions: catalog.Regions, Arrangement: catalog.Arrangement},
		cfg.OutputDir,
		logger,
		metrics,
	)
	runner := pipeline.NewRunner(p, cfg.PipelineConcurrency, logger, metrics)

	// Every layer is rendered before the page is served.
	err = runner.RunAll(ctx, catalog.Layers)
	downloader.CloseIdleConnections()
	if err != nil {
		logger.Error("layer generation failed", "error", err)
		return 1
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, cfg.OutputDir, runner, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}
