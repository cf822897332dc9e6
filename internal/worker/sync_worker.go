package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finanzen/internal/amqp"
	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/sheets"
	"finanzen/internal/storage"
)

// SyncWorker mirrors transactions into the spreadsheet.
type SyncWorker struct {
	store  *storage.Store
	sheets sheets.TransactionWriter
	logger *log.Logger
	now    func() time.Time
}

func NewSyncWorker(store *storage.Store, writer sheets.TransactionWriter, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		store:  store,
		sheets: writer,
		logger: logger.WithComponent(log.ComponentWorker),
		now:    time.Now,
	}
}

// HandleSync mirrors the transaction named by msg. Messages for deleted
// transactions or outdated versions are dropped; the newer version has its
// own message.
func (w *SyncWorker) HandleSync(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	t, err := w.store.GetTransactionByID(ctx, msg.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.DebugContext(ctx, "Skipping sync of deleted transaction", log.FieldTransactionID, msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	if msg.Version != 0 && t.Version != msg.Version {
		w.logger.DebugContext(ctx, "Skipping outdated sync message",
			log.FieldTransactionID, t.ID, "message_version", msg.Version, "version", t.Version)
		return nil
	}
	if t.SheetsSyncedAt != nil {
		return nil
	}
	return w.Sync(ctx, t)
}

// Sync appends one row for t and records the mirror time.
func (w *SyncWorker) Sync(ctx context.Context, t core.Transaction) error {
	accountName, categoryName, err := w.names(ctx, t)
	if err != nil {
		return err
	}
	ref, err := w.sheets.Append(ctx, sheets.NewRow(t, accountName, categoryName))
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}

	err = w.store.MarkTransactionSynced(ctx, t.ID, t.Version, w.now())
	switch {
	case errors.Is(err, core.ErrConcurrencyConflict), errors.Is(err, core.ErrNotFound):
		// Edited or deleted while the row was written.
		w.logger.InfoContext(ctx, "Transaction changed during sync", log.FieldTransactionID, t.ID)
		return nil
	case err != nil:
		return err
	}
	w.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldTransactionID, t.ID, log.FieldOperation, log.OpSync, log.FieldSheetsRef, ref)
	return nil
}

func (w *SyncWorker) names(ctx context.Context, t core.Transaction) (account, category string, err error) {
	a, err := w.store.GetAccount(ctx, t.UserID, t.AccountID)
	if err != nil {
		return "", "", fmt.Errorf("load account: %w", err)
	}
	if t.CategoryID == nil {
		return a.Name, "", nil
	}
	c, err := w.store.GetCategory(ctx, t.UserID, *t.CategoryID)
	if errors.Is(err, core.ErrNotFound) {
		return a.Name, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("load category: %w", err)
	}
	return a.Name, c.Name, nil
}
