// Package worker consumes statement imports and transaction syncs and sweeps
// for work whose message was lost.
package worker

import (
	"context"
	"errors"
	"fmt"

	"finanzen/internal/amqp"
	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/services"
	"finanzen/internal/storage"
)

// Importer runs a statement import for one file.
type Importer interface {
	Import(ctx context.Context, userID, fileID string) (services.ImportResult, error)
}

// ImportWorker handles statement_import messages.
type ImportWorker struct {
	store    *storage.Store
	importer Importer
	logger   *log.Logger
}

func NewImportWorker(store *storage.Store, importer Importer, logger *log.Logger) *ImportWorker {
	return &ImportWorker{store: store, importer: importer, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleImport imports the statement named by msg. Statement problems are
// recorded on the file and acknowledged; only infrastructure errors are
// returned for a retry.
func (w *ImportWorker) HandleImport(ctx context.Context, msg *amqp.StatementImportMessage) error {
	f, err := w.store.GetFileByID(ctx, msg.FileID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.InfoContext(ctx, "Skipping import of deleted file", log.FieldFileID, msg.FileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load uploaded file: %w", err)
	}
	if msg.UserID != "" && f.UserID != msg.UserID {
		return fmt.Errorf("%w: file %s does not belong to user %s", amqp.ErrPermanent, f.ID, msg.UserID)
	}
	if f.Status == core.FileProcessed {
		w.logger.DebugContext(ctx, "File already imported", log.FieldFileID, f.ID)
		return nil
	}

	res, err := w.importer.Import(ctx, f.UserID, f.ID)
	switch {
	case errors.Is(err, core.ErrUnprocessable):
		w.logger.WarnContext(ctx, "Statement rejected", log.FieldFileID, f.ID, log.FieldError, err)
		return nil
	case errors.Is(err, core.ErrConflict):
		w.logger.InfoContext(ctx, "Import already running elsewhere", log.FieldFileID, f.ID)
		return nil
	case err != nil:
		return fmt.Errorf("import file %s: %w", f.ID, err)
	}
	w.logger.InfoContext(ctx, "Statement imported",
		log.FieldFileID, f.ID, log.FieldOperation, log.OpImport, "imported", res.Imported, "skipped", res.Skipped)
	return nil
}
