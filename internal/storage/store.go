// Package storage persists users, accounts, categories, transactions and
// uploaded statements in SQLite or MySQL through database/sql.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finanzen/internal/core"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the repository over one database. Inside WithTx a Store bound to
// the transaction is handed to the callback.
type Store struct {
	db     *sql.DB
	q      dbtx
	driver string
	now    func() time.Time
}

// Open connects to the database, verifies the connection and applies migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		dsn = sqliteDSN(dsn)
	case DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driverName(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverMySQL {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(driver, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, q: db, driver: driver, now: time.Now}, nil
}

// NewSQLiteStore opens (and migrates) a SQLite database file.
func NewSQLiteStore(dbPath string) (*Store, error) {
	return Open(context.Background(), DriverSQLite, dbPath)
}

// sqliteDSN enables foreign keys, WAL and a busy timeout on every connection.
func sqliteDSN(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

func driverName(driver string) string {
	if driver == DriverMySQL {
		return "mysql"
	}
	return "sqlite"
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns "sqlite" or "mysql".
func (s *Store) Driver() string { return s.driver }

// WithTx runs fn inside a database transaction. The transaction commits when
// fn returns nil and rolls back otherwise. Nested calls reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, driver: s.driver, now: s.now}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

const duplicateMessage = "a record with the same unique key already exists"

// mapError classifies driver errors into core sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY || strings.Contains(se.Error(), "FOREIGN KEY") {
			return fmt.Errorf("%w: referenced record does not exist or is still in use", core.ErrConflict)
		}
		return fmt.Errorf("%w: %s", core.ErrConflict, duplicateMessage)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062:
			return fmt.Errorf("%w: %s", core.ErrConflict, duplicateMessage)
		case 1451, 1452:
			return fmt.Errorf("%w: referenced record does not exist or is still in use", core.ErrConflict)
		}
	}
	return err
}

// checkVersioned turns a zero-row versioned update into ErrNotFound or ErrConcurrencyConflict.
func (s *Store) checkVersioned(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table+" WHERE id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("check %s existence: %w", table, err)
	}
	if count == 0 {
		return core.ErrNotFound
	}
	return core.ErrConcurrencyConflict
}

func checkDeleted(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Money is stored as integer minor units.

func toCents(m core.Money) int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64, currency string) core.Money {
	return core.Money{Amount: decimal.New(cents, -2), Currency: currency}
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func ptrString(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func ptrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}

func nullVat(v *core.VatRate) any {
	if v == nil {
		return nil
	}
	return v.Decimal().String()
}

func ptrVat(ns sql.NullString) *core.VatRate {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	v, err := core.NewVatRate(d)
	if err != nil {
		return nil
	}
	return &v
}

func nullIBAN(i core.IBAN) any {
	if i.IsZero() {
		return nil
	}
	return i.String()
}

func scanIBAN(ns sql.NullString) core.IBAN {
	if !ns.Valid {
		return core.IBAN{}
	}
	v, _ := core.ParseIBAN(ns.String)
	return v
}

func nullDate(d *core.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
