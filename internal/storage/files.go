package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finanzen/internal/core"
)

const fileColumns = `id, user_id, account_id, original_name, stored_name, content_type, size, sha256, status,
	error_message, transaction_count, processed_at, created_at, updated_at, version`

func scanFile(row scanner) (core.UploadedFile, error) {
	var (
		f         core.UploadedFile
		accountID sql.NullString
		status    string
		processed sql.NullTime
	)
	err := row.Scan(&f.ID, &f.UserID, &accountID, &f.OriginalName, &f.StoredName, &f.ContentType, &f.Size,
		&f.SHA256, &status, &f.ErrorMessage, &f.TransactionCount, &processed, &f.CreatedAt, &f.UpdatedAt, &f.Version)
	if err != nil {
		return core.UploadedFile{}, err
	}
	f.AccountID = ptrString(accountID)
	f.Status = core.FileStatus(status)
	f.ProcessedAt = ptrTime(processed)
	return f, nil
}

// CreateFile inserts f. If f.ID is empty a new id is assigned.
func (s *Store) CreateFile(ctx context.Context, f *core.UploadedFile) error {
	now := s.timestamp()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt, f.UpdatedAt, f.Version = now, now, 1
	if f.Status == "" {
		f.Status = core.FilePending
	}

	_, err := s.q.ExecContext(ctx, `INSERT INTO uploaded_files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, nullString(f.AccountID), f.OriginalName, f.StoredName, f.ContentType, f.Size,
		f.SHA256, string(f.Status), f.ErrorMessage, f.TransactionCount, nullTime(f.ProcessedAt),
		f.CreatedAt, f.UpdatedAt, f.Version)
	if err != nil {
		return fmt.Errorf("insert uploaded file: %w", mapError(err))
	}
	return nil
}

// GetFile returns the file when it belongs to userID.
func (s *Store) GetFile(ctx context.Context, userID, id string) (core.UploadedFile, error) {
	f, err := scanFile(s.q.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM uploaded_files WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.UploadedFile{}, fmt.Errorf("get uploaded file: %w", mapError(err))
	}
	return f, nil
}

// GetFileByID loads a file regardless of owner. Used by the worker.
func (s *Store) GetFileByID(ctx context.Context, id string) (core.UploadedFile, error) {
	f, err := scanFile(s.q.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE id = ?`, id))
	if err != nil {
		return core.UploadedFile{}, fmt.Errorf("get uploaded file: %w", mapError(err))
	}
	return f, nil
}

// FindFileBySHA returns the user's upload with the given content hash.
func (s *Store) FindFileBySHA(ctx context.Context, userID, sha string) (core.UploadedFile, error) {
	f, err := scanFile(s.q.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM uploaded_files WHERE user_id = ? AND sha256 = ?`, userID, sha))
	if err != nil {
		return core.UploadedFile{}, fmt.Errorf("find uploaded file: %w", mapError(err))
	}
	return f, nil
}

func (s *Store) ListFiles(ctx context.Context, userID string) ([]core.UploadedFile, error) {
	return s.listFiles(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListPendingFiles returns up to limit files still waiting for import, oldest first.
func (s *Store) ListPendingFiles(ctx context.Context, limit int) ([]core.UploadedFile, error) {
	return s.listFiles(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE status = ? ORDER BY created_at LIMIT ?`,
		string(core.FilePending), limit)
}

func (s *Store) listFiles(ctx context.Context, query string, args ...any) ([]core.UploadedFile, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploaded files: %w", err)
	}
	defer rows.Close()

	var out []core.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan uploaded file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFileStatus records an import state transition when f.Version is current.
func (s *Store) UpdateFileStatus(ctx context.Context, f *core.UploadedFile) error {
	now := s.timestamp()
	res, err := s.q.ExecContext(ctx, `UPDATE uploaded_files
		SET account_id = ?, status = ?, error_message = ?, transaction_count = ?, processed_at = ?,
		    updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		nullString(f.AccountID), string(f.Status), f.ErrorMessage, f.TransactionCount, nullTime(f.ProcessedAt),
		now, f.ID, f.Version)
	if err != nil {
		return fmt.Errorf("update uploaded file: %w", mapError(err))
	}
	if err := s.checkVersioned(ctx, res, "uploaded_files", f.ID); err != nil {
		return fmt.Errorf("update uploaded file: %w", err)
	}
	f.UpdatedAt = now
	f.Version++
	return nil
}

// ClaimFile moves f to processing. It returns ErrConcurrencyConflict when
// another worker claimed it first.
func (s *Store) ClaimFile(ctx context.Context, f *core.UploadedFile) error {
	f.Status = core.FileProcessing
	f.ErrorMessage = ""
	return s.UpdateFileStatus(ctx, f)
}

// DeleteFile removes the file row; linked transactions keep their data.
func (s *Store) DeleteFile(ctx context.Context, userID, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx,
			`UPDATE transactions SET uploaded_file_id = NULL WHERE uploaded_file_id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("unlink transactions: %w", mapError(err))
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM uploaded_files WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("delete uploaded file: %w", mapError(err))
		}
		if err := checkDeleted(res); err != nil {
			return fmt.Errorf("delete uploaded file: %w", err)
		}
		return nil
	})
}

// MarkStaleProcessing resets files stuck in processing since before cutoff back to pending.
func (s *Store) MarkStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE uploaded_files SET status = ?, version = version + 1
		WHERE status = ? AND updated_at < ?`, string(core.FilePending), string(core.FileProcessing), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("reset stale imports: %w", err)
	}
	return res.RowsAffected()
}
