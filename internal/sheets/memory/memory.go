// Package memory keeps mirrored rows in process. It backs the sync worker
// when no spreadsheet is configured and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"finanzen/internal/sheets"
)

var errMissingID = errors.New("row without transaction id")

type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
}

func New() *Store {
	return &Store{}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, r sheets.Row) (string, error) {
	if r.TransactionID == "" {
		return "", errMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}
