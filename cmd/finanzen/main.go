package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzen/internal/cli"
	apphttp "finanzen/internal/http"
	"finanzen/internal/log"
	"finanzen/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.Setup(log.ComponentApp)
	logger.Info("Starting finanzen", "environment", cfg.Environment, "port", cfg.Port)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	store, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open database", log.FieldError, err, "driver", cfg.DBDriver)
		os.Exit(1)
	}
	defer store.Close()

	files, closeFiles, err := cli.OpenFileStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open statement store", log.FieldError, err)
		os.Exit(1)
	}
	defer closeFiles()

	broker, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to AMQP broker", log.FieldError, err)
		os.Exit(1)
	}
	if broker != nil {
		defer broker.Close()
	}

	svc, tokens := cli.NewServices(cfg, store, files, broker, logger)

	// Without a broker nobody consumes the queues, so the API sweeps itself.
	var sweeper *worker.Sweeper
	if broker == nil {
		writer, err := cli.SheetsWriter(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets", log.FieldError, err)
			os.Exit(1)
		}
		sweeper = worker.NewSweeper(store,
			worker.NewImportWorker(store, svc.Files, logger),
			worker.NewSyncWorker(store, writer, logger),
			worker.SweeperConfig{Interval: cfg.SyncInterval, BatchSize: cfg.SyncBatchSize},
			logger)
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("Failed to start sweeper", log.FieldError, err)
			os.Exit(1)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, tokens, store, logger, apphttp.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: cfg.TrustedProxies,
		APIDocs:        !cfg.IsProduction(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if sweeper != nil {
			if err := sweeper.Stop(shutdownCtx); err != nil {
				logger.Warn("Sweeper did not stop in time", log.FieldError, err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
