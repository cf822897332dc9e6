// Package services holds the application layer: request validation,
// ownership checks and orchestration between storage, file storage,
// statement parsing and messaging.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finanzen/internal/core"
)

// SyncPublisher announces changed transactions to the spreadsheet mirror.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, transactionID, userID string, version int64) error
}

// ImportPublisher hands uploaded statements to the import worker.
type ImportPublisher interface {
	PublishStatementImport(ctx context.Context, fileID, userID string) error
}

// Page is one page of a list result.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

func newPage[T any](items []T, page, pageSize, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return Page[T]{Items: items, Page: page, PageSize: pageSize, TotalCount: total, TotalPages: pages}
}

// parseVatRate accepts a fraction ("0.19") or a percentage ("19", "7,5").
func parseVatRate(s string) (core.VatRate, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.VatRate{}, fmt.Errorf("%w: %q", core.ErrInvalidVatRate, s)
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return core.VatRateFromPercent(d)
	}
	return core.NewVatRate(d)
}

func optionalVatRate(s *string) (*core.VatRate, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v, err := parseVatRate(*s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func requireVersion(v int64) error {
	if v < 1 {
		return core.FieldError("version", "is required")
	}
	return nil
}
