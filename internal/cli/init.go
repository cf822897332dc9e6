// Package cli holds the start-up steps shared by cmd/finanzen and
// cmd/finanzen-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finanzen/internal/amqp"
	"finanzen/internal/auth"
	"finanzen/internal/cache"
	"finanzen/internal/config"
	"finanzen/internal/filestore"
	apphttp "finanzen/internal/http"
	"finanzen/internal/log"
	"finanzen/internal/services"
	"finanzen/internal/sheets"
	gsheet "finanzen/internal/sheets/google"
	mem "finanzen/internal/sheets/memory"
	"finanzen/internal/storage"
)

// gcsPrefix is the object prefix for statements in the bucket.
const gcsPrefix = "statements"

// LoadEnvFile loads .env for local development. A missing file is ignored.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Setup loads and validates the configuration and builds the root logger.
// Invalid configuration is fatal.
func Setup(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: component,
		Format:    cfg.LogFormat,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenStore connects to the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*storage.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	logger.Info("Database ready", "driver", cfg.DBDriver)
	return store, nil
}

// OpenFileStore returns the statement store and a function releasing it.
func OpenFileStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (filestore.Store, func() error, error) {
	switch cfg.FileStore {
	case "gcs":
		g, err := filestore.NewGCS(ctx, cfg.GCSBucket, gcsPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs bucket %q: %w", cfg.GCSBucket, err)
		}
		logger.Info("Storing statements in Cloud Storage", "bucket", cfg.GCSBucket)
		return g, g.Close, nil
	default:
		l, err := filestore.NewLocal(cfg.UploadDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Storing statements on disk", "dir", cfg.UploadDir)
		return l, func() error { return nil }, nil
	}
}

// ConnectAMQP returns nil without error when no broker is configured.
func ConnectAMQP(cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if !cfg.HasAMQP() {
		logger.Info("No AMQP broker configured, work runs in-process")
		return nil, nil
	}
	c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPImportQueue, cfg.AMQPSyncQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// SheetsWriter returns the Google Sheets mirror, or an in-memory writer
// when no spreadsheet is configured.
func SheetsWriter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.TransactionWriter, error) {
	if !cfg.HasSheets() {
		logger.Info("Google Sheets disabled, mirroring into memory")
		return mem.New(), nil
	}
	c, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	if err := c.EnsureHeader(ctx); err != nil {
		logger.Warn("Could not write the sheet header", log.FieldError, err)
	}
	logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return c, nil
}

// NewServices wires the application services. broker may be nil, in which
// case nothing is published and uploads marked for auto import are
// imported inline.
func NewServices(cfg *config.Config, store *storage.Store, files filestore.Store, broker *amqp.Client, logger *log.Logger) (apphttp.Services, *auth.TokenIssuer) {
	var (
		imports services.ImportPublisher
		syncs   services.SyncPublisher
	)
	if broker != nil {
		imports, syncs = broker, broker
	}

	hasher := auth.NewHasher(cfg.BcryptCost)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	cats := services.NewCategoryService(store, cache.NewCategoryCache(1000, 10*time.Minute), logger)

	return apphttp.Services{
		Auth:         services.NewAuthService(store, hasher, tokens, logger),
		Accounts:     services.NewAccountService(store, logger),
		Categories:   cats,
		Transactions: services.NewTransactionService(store, cats, syncs, logger),
		Files:        services.NewFileService(store, files, cats, imports, syncs, cfg.MaxUploadBytes, logger),
		Vat:          services.NewVatService(logger),
		GDPR:         services.NewGDPRService(store, files, hasher, cats, logger),
	}, tokens
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
