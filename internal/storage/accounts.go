package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"finanzen/internal/core"
)

const accountSelect = `SELECT a.id, a.user_id, a.name, a.iban, a.bic, a.bank_name, a.type, a.currency,
	a.opening_balance_cents, a.is_active, a.created_at, a.updated_at, a.version,
	COALESCE((SELECT SUM(t.amount_cents) FROM transactions t WHERE t.account_id = a.id), 0)
	FROM accounts a`

func scanAccount(row scanner) (core.Account, error) {
	var (
		a          core.Account
		iban       sql.NullString
		typ        string
		opening    int64
		txSumCents int64
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &iban, &a.BIC, &a.BankName, &typ, &a.Currency,
		&opening, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &a.Version, &txSumCents)
	if err != nil {
		return core.Account{}, err
	}
	a.IBAN = scanIBAN(iban)
	a.Type = core.AccountType(typ)
	a.OpeningBalance = fromCents(opening, a.Currency)
	a.Balance = fromCents(opening+txSumCents, a.Currency)
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *core.Account) error {
	now := s.timestamp()
	a.ID = uuid.NewString()
	a.CreatedAt, a.UpdatedAt, a.Version = now, now, 1
	a.OpeningBalance.Currency = a.Currency

	_, err := s.q.ExecContext(ctx, `INSERT INTO accounts
		(id, user_id, name, iban, bic, bank_name, type, currency, opening_balance_cents, is_active, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, nullIBAN(a.IBAN), a.BIC, a.BankName, string(a.Type), a.Currency,
		toCents(a.OpeningBalance), a.IsActive, a.CreatedAt, a.UpdatedAt, a.Version)
	if err != nil {
		return fmt.Errorf("insert account: %w", mapError(err))
	}
	a.Balance = a.OpeningBalance
	return nil
}

// GetAccount returns the account when it belongs to userID.
func (s *Store) GetAccount(ctx context.Context, userID, id string) (core.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx, accountSelect+` WHERE a.id = ? AND a.user_id = ?`, id, userID))
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", mapError(err))
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := s.q.QueryContext(ctx, accountSelect+` WHERE a.user_id = ? ORDER BY a.name, a.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindAccountByIBAN returns the user's account with iban.
func (s *Store) FindAccountByIBAN(ctx context.Context, userID string, iban core.IBAN) (core.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx, accountSelect+` WHERE a.user_id = ? AND a.iban = ?`, userID, iban.String()))
	if err != nil {
		return core.Account{}, fmt.Errorf("find account by iban: %w", mapError(err))
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *core.Account) error {
	now := s.timestamp()
	a.OpeningBalance.Currency = a.Currency
	res, err := s.q.ExecContext(ctx, `UPDATE accounts
		SET name = ?, iban = ?, bic = ?, bank_name = ?, type = ?, currency = ?, opening_balance_cents = ?,
		    is_active = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?`,
		a.Name, nullIBAN(a.IBAN), a.BIC, a.BankName, string(a.Type), a.Currency, toCents(a.OpeningBalance),
		a.IsActive, now, a.ID, a.UserID, a.Version)
	if err != nil {
		return fmt.Errorf("update account: %w", mapError(err))
	}
	if err := s.checkVersioned(ctx, res, "accounts", a.ID); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	a.UpdatedAt = now
	a.Version++
	return nil
}

// CountAccountTransactions returns how many transactions reference the account.
func (s *Store) CountAccountTransactions(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE account_id = ?`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count account transactions: %w", err)
	}
	return n, nil
}

// DeleteAccount removes the account; its transactions go with it.
func (s *Store) DeleteAccount(ctx context.Context, userID, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("delete account transactions: %w", mapError(err))
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("delete account: %w", mapError(err))
		}
		if err := checkDeleted(res); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}
