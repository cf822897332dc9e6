package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"finanzen/internal/core"
)

const categoryColumns = `id, user_id, name, description, type, color, icon, parent_id, keywords,
	default_vat_rate, is_system, created_at, updated_at, version`

func scanCategory(row scanner) (core.Category, error) {
	var (
		c        core.Category
		typ      string
		parentID sql.NullString
		keywords string
		vat      sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &typ, &c.Color, &c.Icon, &parentID,
		&keywords, &vat, &c.IsSystem, &c.CreatedAt, &c.UpdatedAt, &c.Version)
	if err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	c.ParentID = ptrString(parentID)
	c.DefaultVatRate = ptrVat(vat)
	c.Keywords = []string{}
	if keywords != "" {
		if err := json.Unmarshal([]byte(keywords), &c.Keywords); err != nil {
			return core.Category{}, fmt.Errorf("decode keywords of category %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodeKeywords(k []string) (string, error) {
	if k == nil {
		k = []string{}
	}
	b, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(b), nil
}

func (s *Store) CreateCategory(ctx context.Context, c *core.Category) error {
	now := s.timestamp()
	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt, c.Version = now, now, 1
	keywords, err := encodeKeywords(c.Keywords)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Description, string(c.Type), c.Color, c.Icon, nullString(c.ParentID),
		keywords, nullVat(c.DefaultVatRate), c.IsSystem, c.CreatedAt, c.UpdatedAt, c.Version)
	if err != nil {
		return fmt.Errorf("insert category: %w", mapError(err))
	}
	return nil
}

// GetCategory returns the category when it belongs to userID.
func (s *Store) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	c, err := scanCategory(s.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", mapError(err))
	}
	return c, nil
}

// ListCategories returns all categories of a user ordered by type and name.
func (s *Store) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY type, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCategory(ctx context.Context, c *core.Category) error {
	now := s.timestamp()
	keywords, err := encodeKeywords(c.Keywords)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `UPDATE categories
		SET name = ?, description = ?, type = ?, color = ?, icon = ?, parent_id = ?, keywords = ?,
		    default_vat_rate = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?`,
		c.Name, c.Description, string(c.Type), c.Color, c.Icon, nullString(c.ParentID), keywords,
		nullVat(c.DefaultVatRate), now, c.ID, c.UserID, c.Version)
	if err != nil {
		return fmt.Errorf("update category: %w", mapError(err))
	}
	if err := s.checkVersioned(ctx, res, "categories", c.ID); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	c.UpdatedAt = now
	c.Version++
	return nil
}

// CountChildren returns the number of direct subcategories.
func (s *Store) CountChildren(ctx context.Context, id string) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM categories WHERE parent_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count child categories: %w", err)
	}
	return n, nil
}

// SiblingNameExists reports whether another category under the same parent has name.
func (s *Store) SiblingNameExists(ctx context.Context, userID string, parentID *string, name, excludeID string) (bool, error) {
	query := `SELECT COUNT(1) FROM categories WHERE user_id = ? AND LOWER(name) = LOWER(?) AND id <> ? AND `
	args := []any{userID, name, excludeID}
	if parentID == nil {
		query += `parent_id IS NULL`
	} else {
		query += `parent_id = ?`
		args = append(args, *parentID)
	}
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check sibling name: %w", err)
	}
	return n > 0, nil
}

// DeleteCategory removes the category; transactions referencing it become uncategorized.
func (s *Store) DeleteCategory(ctx context.Context, userID, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx,
			`UPDATE transactions SET category_id = NULL WHERE category_id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("uncategorize transactions: %w", mapError(err))
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("delete category: %w", mapError(err))
		}
		if err := checkDeleted(res); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
}
