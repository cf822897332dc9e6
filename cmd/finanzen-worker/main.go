package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzen/internal/cli"
	"finanzen/internal/log"
	"finanzen/internal/worker"
)

func main() {
	cfg, logger := cli.Setup(log.ComponentWorker)
	logger.Info("Starting finanzen-worker")

	if !cfg.HasAMQP() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

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
	defer broker.Close()

	writer, err := cli.SheetsWriter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets", log.FieldError, err)
		os.Exit(1)
	}

	svc, _ := cli.NewServices(cfg, store, files, broker, logger)
	imports := worker.NewImportWorker(store, svc.Files, logger)
	syncs := worker.NewSyncWorker(store, writer, logger)

	// Catch up on work whose message was lost while the worker was down.
	sweeper := worker.NewSweeper(store, imports, syncs,
		worker.SweeperConfig{Interval: cfg.SyncInterval, BatchSize: cfg.SyncBatchSize}, logger)
	logger.Info("Performing startup sweep")
	if err := sweeper.ProcessPending(ctx); err != nil {
		logger.Error("Startup sweep failed", log.FieldError, err)
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("Failed to start sweeper", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return broker.ConsumeStatementImports(gctx, imports.HandleImport)
	})
	g.Go(func() error {
		return broker.ConsumeTransactionSyncs(gctx, syncs.HandleSync)
	})

	err = g.Wait()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if serr := sweeper.Stop(shutdownCtx); serr != nil {
		logger.Warn("Sweeper did not stop in time", log.FieldError, serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
