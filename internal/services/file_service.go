package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"finanzen/internal/core"
	"finanzen/internal/filestore"
	"finanzen/internal/log"
	"finanzen/internal/statement"
	"finanzen/internal/storage"
)

const maxFileNameLength = 255

// FileService stores uploaded bank statements and imports their bookings.
type FileService struct {
	store      *storage.Store
	files      filestore.Store
	categories *CategoryService
	imports    ImportPublisher
	syncs      SyncPublisher
	maxBytes   int64
	logger     *log.Logger
	events     *log.StructuredLogger
	now        func() time.Time

	// extract turns PDF bytes into text.
	extract func(r io.ReaderAt, size int64) (string, error)
}

// NewFileService creates the service. Without an import publisher uploads are
// imported inline when requested; without a sync publisher imported bookings
// are left to the worker sweep.
func NewFileService(store *storage.Store, files filestore.Store, categories *CategoryService,
	imports ImportPublisher, syncs SyncPublisher, maxBytes int64, logger *log.Logger) *FileService {
	l := logger.WithComponent(log.ComponentFile)
	return &FileService{
		store:      store,
		files:      files,
		categories: categories,
		imports:    imports,
		syncs:      syncs,
		maxBytes:   maxBytes,
		logger:     l,
		events:     log.NewStructuredLogger(l),
		now:        time.Now,
		extract:    statement.ExtractText,
	}
}

// List returns metadata of the user's uploads, newest first.
func (s *FileService) List(ctx context.Context, userID string) ([]core.UploadedFile, error) {
	files, err := s.store.ListFiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []core.UploadedFile{}
	}
	return files, nil
}

// Get returns the metadata of one upload.
func (s *FileService) Get(ctx context.Context, userID, id string) (core.UploadedFile, error) {
	return s.store.GetFile(ctx, userID, id)
}

// Upload stores a PDF statement. The same document (by SHA-256) can be
// uploaded only once per user.
func (s *FileService) Upload(ctx context.Context, userID string, req UploadRequest, body io.Reader) (core.UploadedFile, error) {
	accountID := emptyToNil(req.AccountID)
	if accountID != nil {
		if _, err := s.store.GetAccount(ctx, userID, *accountID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.UploadedFile{}, core.FieldError("accountId", "does not exist")
			}
			return core.UploadedFile{}, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return core.UploadedFile{}, fmt.Errorf("read upload: %w", err)
	}
	switch {
	case int64(len(data)) > s.maxBytes:
		return core.UploadedFile{}, fmt.Errorf("%w: files may be at most %d bytes", core.ErrTooLarge, s.maxBytes)
	case len(data) == 0:
		return core.UploadedFile{}, core.FieldError("file", "is empty")
	case !statement.IsPDF(data):
		return core.UploadedFile{}, core.FieldError("file", "must be a PDF document")
	}

	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])
	if existing, err := s.store.FindFileBySHA(ctx, userID, sha); err == nil {
		return core.UploadedFile{}, fmt.Errorf("%w: this statement was already uploaded as %q", core.ErrConflict, existing.OriginalName)
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.UploadedFile{}, err
	}

	f := core.UploadedFile{
		Base:         core.Base{ID: uuid.NewString()},
		UserID:       userID,
		AccountID:    accountID,
		OriginalName: cleanFileName(req.FileName),
		ContentType:  "application/pdf",
		Size:         int64(len(data)),
		SHA256:       sha,
		Status:       core.FilePending,
	}
	f.StoredName = userID + "/" + f.ID + ".pdf"

	if _, err := s.files.Save(ctx, f.StoredName, bytes.NewReader(data)); err != nil {
		return core.UploadedFile{}, fmt.Errorf("store upload: %w", err)
	}
	if err := s.store.CreateFile(ctx, &f); err != nil {
		if derr := s.files.Delete(context.WithoutCancel(ctx), f.StoredName); derr != nil {
			s.logger.WarnContext(ctx, "Failed to remove orphaned upload", log.FieldFileID, f.ID, log.FieldError, derr)
		}
		return core.UploadedFile{}, err
	}
	s.logger.InfoContext(ctx, "Statement uploaded",
		log.FieldUserID, userID, log.FieldFileID, f.ID, log.FieldOperation, log.OpUpload, "size", f.Size)

	switch {
	case s.imports != nil:
		if err := s.imports.PublishStatementImport(ctx, f.ID, userID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to enqueue statement import", log.FieldFileID, f.ID, log.FieldError, err)
		}
	case req.AutoImport:
		res, err := s.Import(ctx, userID, f.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "Inline import failed", log.FieldFileID, f.ID, log.FieldError, err)
			return s.store.GetFile(ctx, userID, f.ID)
		}
		return res.File, nil
	}
	return f, nil
}

// Download opens the stored bytes. The caller closes the reader.
func (s *FileService) Download(ctx context.Context, userID, id string) (core.UploadedFile, io.ReadCloser, error) {
	f, err := s.store.GetFile(ctx, userID, id)
	if err != nil {
		return core.UploadedFile{}, nil, err
	}
	rc, err := s.files.Open(ctx, f.StoredName)
	if errors.Is(err, filestore.ErrNotFound) {
		return core.UploadedFile{}, nil, fmt.Errorf("%w: stored statement is missing", core.ErrNotFound)
	}
	if err != nil {
		return core.UploadedFile{}, nil, err
	}
	return f, rc, nil
}

// Delete removes the file record and its bytes. Imported transactions stay.
func (s *FileService) Delete(ctx context.Context, userID, id string) error {
	f, err := s.store.GetFile(ctx, userID, id)
	if err != nil {
		return err
	}
	if f.Status == core.FileProcessing {
		return fmt.Errorf("%w: the statement is being imported", core.ErrConflict)
	}
	if err := s.store.DeleteFile(ctx, userID, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, f.StoredName); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete stored statement", log.FieldFileID, id, log.FieldError, err)
	}
	return nil
}

// Import parses the stored statement and inserts its bookings in one
// database transaction. Bookings whose import hash already exists on the
// account are skipped, so importing the same statement twice is harmless.
// Statement problems are returned wrapped in core.ErrUnprocessable and
// recorded on the file.
func (s *FileService) Import(ctx context.Context, userID, fileID string) (ImportResult, error) {
	f, err := s.store.GetFile(ctx, userID, fileID)
	if err != nil {
		return ImportResult{}, err
	}
	if f.Status == core.FileProcessing {
		return ImportResult{}, fmt.Errorf("%w: the statement is already being imported", core.ErrConflict)
	}
	if err := s.store.ClaimFile(ctx, &f); err != nil {
		if errors.Is(err, core.ErrConcurrencyConflict) {
			return ImportResult{}, fmt.Errorf("%w: the statement is already being imported", core.ErrConflict)
		}
		return ImportResult{}, err
	}

	res, created, err := s.importFile(ctx, &f)
	if err != nil {
		s.fail(ctx, &f, err)
		return ImportResult{File: f}, err
	}

	s.events.LogImportFinished(ctx, f.ID, res.Imported, res.Skipped)
	if s.syncs != nil {
		for _, t := range created {
			if err := s.syncs.PublishTransactionSync(ctx, t.ID, t.UserID, t.Version); err != nil {
				s.logger.ErrorContext(ctx, "Failed to publish sync message", log.FieldTransactionID, t.ID, log.FieldError, err)
				break
			}
		}
	}
	return res, nil
}

func (s *FileService) importFile(ctx context.Context, f *core.UploadedFile) (ImportResult, []core.Transaction, error) {
	st, err := s.parse(ctx, f)
	if err != nil {
		return ImportResult{}, nil, err
	}
	reconciled := true
	if err := st.Reconcile(); err != nil {
		reconciled = false
		s.logger.WarnContext(ctx, "Statement does not reconcile", log.FieldFileID, f.ID, log.FieldError, err)
	}

	account, err := s.resolveAccount(ctx, f, st)
	if err != nil {
		return ImportResult{}, nil, err
	}
	cl, err := s.categories.classifier(ctx, f.UserID)
	if err != nil {
		return ImportResult{}, nil, err
	}

	res := ImportResult{Reconciled: reconciled}
	var created []core.Transaction
	claimed := *f
	err = s.store.WithTx(ctx, func(tx *storage.Store) error {
		known, err := tx.ImportHashes(ctx, account.ID)
		if err != nil {
			return err
		}
		for _, e := range st.Entries {
			if _, dup := known[e.ImportHash]; dup {
				res.Skipped++
				continue
			}
			t := bookingFromEntry(f, account, e, cl)
			if err := tx.CreateTransaction(ctx, &t); err != nil {
				return fmt.Errorf("import booking of %s: %w", e.BookingDate, err)
			}
			known[e.ImportHash] = struct{}{}
			created = append(created, t)
		}
		res.Imported = len(created)

		f.AccountID = &account.ID
		f.Status = core.FileProcessed
		f.ErrorMessage = ""
		f.TransactionCount += res.Imported
		now := s.now().UTC()
		f.ProcessedAt = &now
		return tx.UpdateFileStatus(ctx, f)
	})
	if err != nil {
		*f = claimed
		return ImportResult{}, nil, err
	}
	res.File = *f
	return res, created, nil
}

func (s *FileService) parse(ctx context.Context, f *core.UploadedFile) (statement.Statement, error) {
	rc, err := s.files.Open(ctx, f.StoredName)
	if errors.Is(err, filestore.ErrNotFound) {
		return statement.Statement{}, fmt.Errorf("%w: the stored statement is missing, please upload it again", core.ErrUnprocessable)
	}
	if err != nil {
		return statement.Statement{}, fmt.Errorf("open stored statement: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return statement.Statement{}, fmt.Errorf("read stored statement: %w", err)
	}

	text, err := s.extract(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return statement.Statement{}, fmt.Errorf("%w: %v", core.ErrUnprocessable, err)
	}
	st, err := statement.ParseText(text)
	if err != nil {
		return statement.Statement{}, fmt.Errorf("%w: %v", core.ErrUnprocessable, err)
	}
	return st, nil
}

// resolveAccount prefers the account whose IBAN is printed on the statement
// and falls back to the account chosen at upload.
func (s *FileService) resolveAccount(ctx context.Context, f *core.UploadedFile, st statement.Statement) (core.Account, error) {
	if !st.IBAN.IsZero() {
		a, err := s.store.FindAccountByIBAN(ctx, f.UserID, st.IBAN)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.Account{}, err
		}
	}
	if f.AccountID != nil {
		a, err := s.store.GetAccount(ctx, f.UserID, *f.AccountID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.Account{}, err
		}
	}
	if !st.IBAN.IsZero() {
		return core.Account{}, fmt.Errorf("%w: no account with IBAN %s; create it or choose an account when uploading",
			core.ErrUnprocessable, st.IBAN.Formatted())
	}
	return core.Account{}, fmt.Errorf("%w: the statement shows no IBAN; choose an account when uploading", core.ErrUnprocessable)
}

func bookingFromEntry(f *core.UploadedFile, account core.Account, e statement.Entry, cl *classifier) core.Transaction {
	amount := core.Money{Amount: e.Amount.Amount, Currency: account.Currency}
	t := core.Transaction{
		UserID:           f.UserID,
		AccountID:        account.ID,
		UploadedFileID:   &f.ID,
		BookingDate:      e.BookingDate,
		ValueDate:        e.ValueDate,
		Amount:           amount,
		Type:             core.TypeForAmount(amount),
		Description:      e.Description,
		Counterparty:     e.Counterparty,
		CounterpartyIBAN: e.CounterpartyIBAN,
		Reference:        e.Reference,
		ImportHash:       e.ImportHash,
	}
	if c := cl.classify(e.Description, e.Counterparty, t.Type); c != nil {
		t.CategoryID = &c.ID
		if c.Type == core.Transfer {
			t.Type = core.Transfer
		} else {
			t.VatRate = c.DefaultVatRate
		}
	}
	t.ApplyVat()
	return t
}

// fail records the error on the file. The status update uses a fresh
// context so a cancelled request still leaves the file in a final state.
func (s *FileService) fail(ctx context.Context, f *core.UploadedFile, cause error) {
	f.Status = core.FileFailed
	f.ErrorMessage = truncateMessage(failureMessage(cause))
	f.TransactionCount = 0
	if err := s.store.UpdateFileStatus(context.WithoutCancel(ctx), f); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record import failure", log.FieldFileID, f.ID, log.FieldError, err)
	}
	s.logger.WarnContext(ctx, "Statement import failed",
		log.FieldFileID, f.ID, log.FieldOperation, log.OpImport, log.FieldError, cause)
}

func failureMessage(err error) string {
	if errors.Is(err, core.ErrUnprocessable) {
		return strings.TrimPrefix(err.Error(), core.ErrUnprocessable.Error()+": ")
	}
	return "Import fehlgeschlagen"
}

func truncateMessage(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		name = "kontoauszug.pdf"
	}
	if len(name) > maxFileNameLength {
		name = truncateTo(name, maxFileNameLength)
	}
	return name
}

func truncateTo(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
