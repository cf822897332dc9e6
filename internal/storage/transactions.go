package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finanzen/internal/core"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

const transactionColumns = `id, user_id, account_id, category_id, uploaded_file_id, booking_date, value_date,
	amount_cents, currency, type, description, counterparty, counterparty_iban, reference, vat_rate,
	vat_cents, notes, is_reconciled, import_hash, sheets_synced_at, created_at, updated_at, version`

// TransactionFilter narrows ListTransactions and Summary. Zero values mean "no restriction".
type TransactionFilter struct {
	AccountID     string
	CategoryID    string
	Type          core.TransactionType
	From, To      *core.Date
	Search        string
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
	Uncategorized bool
	Page          int
	PageSize      int
	// SortBy is one of date, amount, description; SortAsc flips the default descending order.
	SortBy  string
	SortAsc bool
}

// Normalize clamps paging to sane bounds.
func (f *TransactionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

func (f TransactionFilter) where(userID string) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{userID}
	if f.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Uncategorized {
		conds = append(conds, "category_id IS NULL")
	} else if f.CategoryID != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.From != nil && !f.From.IsZero() {
		conds = append(conds, "booking_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil && !f.To.IsZero() {
		conds = append(conds, "booking_date <= ?")
		args = append(args, f.To.String())
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		conds = append(conds, "(LOWER(description) LIKE ? OR LOWER(counterparty) LIKE ? OR LOWER(reference) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.MinAmount != nil {
		conds = append(conds, "amount_cents >= ?")
		args = append(args, f.MinAmount.Shift(2).Round(0).IntPart())
	}
	if f.MaxAmount != nil {
		conds = append(conds, "amount_cents <= ?")
		args = append(args, f.MaxAmount.Shift(2).Round(0).IntPart())
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f TransactionFilter) orderBy() string {
	dir := " DESC"
	if f.SortAsc {
		dir = " ASC"
	}
	switch f.SortBy {
	case "amount":
		return " ORDER BY amount_cents" + dir + ", booking_date DESC, id"
	case "description":
		return " ORDER BY description" + dir + ", booking_date DESC, id"
	default:
		return " ORDER BY booking_date" + dir + ", created_at" + dir + ", id"
	}
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                       core.Transaction
		categoryID, fileID      sql.NullString
		valueDate               core.Date
		amount, vatCents        int64
		typ                     string
		cpIBAN, vat, importHash sql.NullString
		synced                  sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &categoryID, &fileID, &t.BookingDate, &valueDate,
		&amount, &t.Amount.Currency, &typ, &t.Description, &t.Counterparty, &cpIBAN, &t.Reference, &vat,
		&vatCents, &t.Notes, &t.IsReconciled, &importHash, &synced, &t.CreatedAt, &t.UpdatedAt, &t.Version)
	if err != nil {
		return core.Transaction{}, err
	}
	t.CategoryID = ptrString(categoryID)
	t.UploadedFileID = ptrString(fileID)
	if !valueDate.IsZero() {
		t.ValueDate = &valueDate
	}
	t.Amount = fromCents(amount, t.Amount.Currency)
	t.VatAmount = fromCents(vatCents, t.Amount.Currency)
	t.Type = core.TransactionType(typ)
	if cpIBAN.Valid {
		if iban := scanIBAN(cpIBAN); !iban.IsZero() {
			t.CounterpartyIBAN = &iban
		}
	}
	t.VatRate = ptrVat(vat)
	t.ImportHash = importHash.String
	t.SheetsSyncedAt = ptrTime(synced)
	return t, nil
}

func (s *Store) scanTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func transactionArgs(t *core.Transaction) []any {
	var cpIBAN any
	if t.CounterpartyIBAN != nil {
		cpIBAN = nullIBAN(*t.CounterpartyIBAN)
	}
	var importHash any
	if t.ImportHash != "" {
		importHash = t.ImportHash
	}
	return []any{
		t.AccountID, nullString(t.CategoryID), nullString(t.UploadedFileID), t.BookingDate.String(), nullDate(t.ValueDate),
		toCents(t.Amount), t.Amount.Currency, string(t.Type), t.Description, t.Counterparty, cpIBAN, t.Reference,
		nullVat(t.VatRate), toCents(t.VatAmount), t.Notes, t.IsReconciled, importHash, nullTime(t.SheetsSyncedAt),
	}
}

func (s *Store) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	now := s.timestamp()
	t.ID = uuid.NewString()
	t.CreatedAt, t.UpdatedAt, t.Version = now, now, 1

	args := append([]any{t.ID, t.UserID}, transactionArgs(t)...)
	args = append(args, t.CreatedAt, t.UpdatedAt, t.Version)
	_, err := s.q.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapError(err))
	}
	return nil
}

// GetTransaction returns the transaction when it belongs to userID.
func (s *Store) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", mapError(err))
	}
	return t, nil
}

// GetTransactionByID loads a transaction regardless of owner. Used by the worker.
func (s *Store) GetTransactionByID(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", mapError(err))
	}
	return t, nil
}

// UpdateTransaction writes t when t.Version is current and clears the
// spreadsheet sync mark so the row is mirrored again.
func (s *Store) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	now := s.timestamp()
	t.SheetsSyncedAt = nil
	args := append(transactionArgs(t), now, t.ID, t.UserID, t.Version)
	res, err := s.q.ExecContext(ctx, `UPDATE transactions
		SET account_id = ?, category_id = ?, uploaded_file_id = ?, booking_date = ?, value_date = ?,
		    amount_cents = ?, currency = ?, type = ?, description = ?, counterparty = ?, counterparty_iban = ?,
		    reference = ?, vat_rate = ?, vat_cents = ?, notes = ?, is_reconciled = ?, import_hash = ?,
		    sheets_synced_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?`, args...)
	if err != nil {
		return fmt.Errorf("update transaction: %w", mapError(err))
	}
	if err := s.checkVersioned(ctx, res, "transactions", t.ID); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	t.UpdatedAt = now
	t.Version++
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", mapError(err))
	}
	if err := checkDeleted(res); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// ListTransactions returns one page of matching transactions and the total match count.
func (s *Store) ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]core.Transaction, int, error) {
	f.Normalize()
	where, args := f.where(userID)

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + where + f.orderBy() + ` LIMIT ? OFFSET ?`
	items, err := s.scanTransactions(ctx, query, append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return items, total, nil
}

// ListAllTransactions returns every transaction of a user, oldest first.
func (s *Store) ListAllTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	items, err := s.scanTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? ORDER BY booking_date, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list all transactions: %w", err)
	}
	return items, nil
}

// ImportHashes returns the import hashes already stored for an account.
func (s *Store) ImportHashes(ctx context.Context, accountID string) (map[string]struct{}, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT import_hash FROM transactions WHERE account_id = ? AND import_hash IS NOT NULL`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list import hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan import hash: %w", err)
		}
		out[h] = struct{}{}
	}
	return out, rows.Err()
}

// ListUnsyncedTransactions returns up to limit transactions not yet mirrored to the spreadsheet.
func (s *Store) ListUnsyncedTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	items, err := s.scanTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE sheets_synced_at IS NULL ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsynced transactions: %w", err)
	}
	return items, nil
}

// MarkTransactionSynced records the mirror time when version still matches,
// so a newer edit is mirrored again.
func (s *Store) MarkTransactionSynced(ctx context.Context, id string, version int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE transactions SET sheets_synced_at = ? WHERE id = ? AND version = ?`, at.UTC(), id, version)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", mapError(err))
	}
	if err := s.checkVersioned(ctx, res, "transactions", id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

// Totals are the aggregate sums of a group of transactions in cents.
type Totals struct {
	IncomeCents int64
	// ExpenseCents is negative.
	ExpenseCents int64
	// VatCollectedCents is the output tax on income, VatPaidCents the (negative) input tax on expenses.
	VatCollectedCents int64
	VatPaidCents      int64
	Count             int
}

// CategoryTotals groups Totals by category; CategoryID is empty for uncategorized rows.
type CategoryTotals struct {
	CategoryID string
	Totals
}

// MonthTotals groups Totals by booking month (YYYY-MM).
type MonthTotals struct {
	Month string
	Totals
}

// Summary contains overall, per category and per month aggregates of the matching transactions.
type Summary struct {
	Totals     Totals
	ByCategory []CategoryTotals
	ByMonth    []MonthTotals
}

const totalsColumns = `COALESCE(SUM(CASE WHEN amount_cents > 0 THEN amount_cents ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN amount_cents < 0 THEN amount_cents ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN vat_cents > 0 THEN vat_cents ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN vat_cents < 0 THEN vat_cents ELSE 0 END), 0), COUNT(1)`

// Summarize aggregates transactions matching f; paging fields are ignored.
// Transfers are excluded.
func (s *Store) Summarize(ctx context.Context, userID string, f TransactionFilter) (Summary, error) {
	where, args := f.where(userID)
	where += ` AND type <> 'transfer'`

	var sum Summary
	t := &sum.Totals
	if err := s.q.QueryRowContext(ctx, `SELECT `+totalsColumns+` FROM transactions`+where, args...).
		Scan(&t.IncomeCents, &t.ExpenseCents, &t.VatCollectedCents, &t.VatPaidCents, &t.Count); err != nil {
		return Summary{}, fmt.Errorf("summarize transactions: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, `SELECT COALESCE(category_id, ''), `+totalsColumns+
		` FROM transactions`+where+` GROUP BY category_id ORDER BY category_id`, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize by category: %w", err)
	}
	for rows.Next() {
		var ct CategoryTotals
		if err := rows.Scan(&ct.CategoryID, &ct.IncomeCents, &ct.ExpenseCents, &ct.VatCollectedCents, &ct.VatPaidCents, &ct.Count); err != nil {
			rows.Close()
			return Summary{}, fmt.Errorf("scan category totals: %w", err)
		}
		sum.ByCategory = append(sum.ByCategory, ct)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("summarize by category: %w", err)
	}

	rows, err = s.q.QueryContext(ctx, `SELECT SUBSTR(booking_date, 1, 7) AS month, `+totalsColumns+
		` FROM transactions`+where+` GROUP BY SUBSTR(booking_date, 1, 7) ORDER BY month`, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize by month: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mt MonthTotals
		if err := rows.Scan(&mt.Month, &mt.IncomeCents, &mt.ExpenseCents, &mt.VatCollectedCents, &mt.VatPaidCents, &mt.Count); err != nil {
			return Summary{}, fmt.Errorf("scan month totals: %w", err)
		}
		sum.ByMonth = append(sum.ByMonth, mt)
	}
	return sum, rows.Err()
}

// CentsToMoney converts aggregated cents back to Money.
func CentsToMoney(cents int64, currency string) core.Money {
	return fromCents(cents, currency)
}
