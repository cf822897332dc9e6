package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finanzen/internal/amqp"
	"finanzen/internal/log"
	"finanzen/internal/storage"
)

// SweeperConfig holds the sweep schedule.
type SweeperConfig struct {
	// Interval between sweeps (default: 1m).
	Interval time.Duration

	// BatchSize caps the files and transactions handled per sweep (default: 50).
	BatchSize int

	// Grace leaves fresh work to its message (default: 2m).
	Grace time.Duration

	// StaleAfter returns files stuck in processing to pending (default: 15m).
	StaleAfter time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   time.Minute,
		BatchSize:  50,
		Grace:      2 * time.Minute,
		StaleAfter: 15 * time.Minute,
	}
}

// Sweeper periodically picks up pending imports and unsynced transactions
// whose message was lost or never sent.
type Sweeper struct {
	store   *storage.Store
	imports *ImportWorker
	syncs   *SyncWorker
	config  SweeperConfig
	logger  *log.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper creates a sweeper; either worker may be nil to skip that kind of work.
func NewSweeper(store *storage.Store, imports *ImportWorker, syncs *SyncWorker, config SweeperConfig, logger *log.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Grace < 0 {
		config.Grace = def.Grace
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	return &Sweeper{
		store:   store,
		imports: imports,
		syncs:   syncs,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
		now:     time.Now,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Sweeper started",
		"interval", s.config.Interval, "batch_size", s.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "Sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.ProcessPending(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Sweep failed", log.FieldError, err)
	}
}

// ProcessPending resets stale imports, then handles one batch of pending
// files and unsynced transactions older than the grace period.
func (s *Sweeper) ProcessPending(ctx context.Context) error {
	now := s.now()
	if n, err := s.store.MarkStaleProcessing(ctx, now.Add(-s.config.StaleAfter)); err != nil {
		return err
	} else if n > 0 {
		s.logger.WarnContext(ctx, "Reset stale imports", log.FieldCount, n)
	}
	cutoff := now.Add(-s.config.Grace)

	if s.imports != nil {
		files, err := s.store.ListPendingFiles(ctx, s.config.BatchSize)
		if err != nil {
			return err
		}
		for _, f := range files {
			if s.stopping(ctx) {
				return nil
			}
			if f.UpdatedAt.After(cutoff) {
				continue
			}
			if err := s.imports.HandleImport(ctx, &amqp.StatementImportMessage{FileID: f.ID, UserID: f.UserID}); err != nil {
				s.logger.ErrorContext(ctx, "Pending import failed", log.FieldFileID, f.ID, log.FieldError, err)
			}
		}
	}

	if s.syncs != nil {
		txs, err := s.store.ListUnsyncedTransactions(ctx, s.config.BatchSize)
		if err != nil {
			return err
		}
		synced := 0
		for _, t := range txs {
			if s.stopping(ctx) {
				return nil
			}
			if t.UpdatedAt.After(cutoff) {
				continue
			}
			if err := s.syncs.Sync(ctx, t); err != nil {
				// The spreadsheet is likely unavailable; retry on the next sweep.
				s.logger.ErrorContext(ctx, "Pending sync failed", log.FieldTransactionID, t.ID, log.FieldError, err)
				break
			}
			synced++
		}
		if synced > 0 {
			s.logger.InfoContext(ctx, "Mirrored unsynced transactions", log.FieldCount, synced)
		}
	}
	return nil
}

func (s *Sweeper) stopping(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
