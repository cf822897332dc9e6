package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"finanzen/internal/core"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, last_login_at, is_active, created_at, updated_at, version`

func scanUser(row scanner) (core.User, error) {
	var (
		u         core.User
		lastLogin sql.NullTime
		role      string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &role,
		&lastLogin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.Version)
	if err != nil {
		return core.User{}, err
	}
	u.Role = core.Role(role)
	u.LastLoginAt = ptrTime(lastLogin)
	return u, nil
}

// CreateUser inserts u, assigning id, timestamps and version.
func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	now := s.timestamp()
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt, u.UpdatedAt, u.Version = now, now, 1
	if u.Role == "" {
		u.Role = core.RoleUser
	}

	_, err := s.q.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role),
		nullTime(u.LastLoginAt), u.IsActive, u.CreatedAt, u.UpdatedAt, u.Version)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", mapError(err))
	}
	return u, nil
}

// GetUserByEmail looks up a user case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", mapError(err))
	}
	return u, nil
}

// UpdateUser writes profile, credentials and status when u.Version is current.
func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	now := s.timestamp()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := s.q.ExecContext(ctx, `UPDATE users
		SET email = ?, password_hash = ?, first_name = ?, last_name = ?, role = ?, is_active = ?,
		    updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), u.IsActive,
		now, u.ID, u.Version)
	if err != nil {
		return fmt.Errorf("update user: %w", mapError(err))
	}
	if err := s.checkVersioned(ctx, res, "users", u.ID); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	u.UpdatedAt = now
	u.Version++
	return nil
}

// TouchLastLogin records a successful login without bumping the version.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", mapError(err))
	}
	return checkDeleted(res)
}

// DeleteUserData removes the user and every row owned by the user.
func (s *Store) DeleteUserData(ctx context.Context, userID string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		stmts := []string{
			`DELETE FROM transactions WHERE user_id = ?`,
			`DELETE FROM uploaded_files WHERE user_id = ?`,
			`DELETE FROM accounts WHERE user_id = ?`,
			`UPDATE categories SET parent_id = NULL WHERE user_id = ?`,
			`DELETE FROM categories WHERE user_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.q.ExecContext(ctx, stmt, userID); err != nil {
				return fmt.Errorf("erase user data: %w", mapError(err))
			}
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return fmt.Errorf("delete user: %w", mapError(err))
		}
		return checkDeleted(res)
	})
}
