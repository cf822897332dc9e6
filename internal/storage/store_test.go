package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finanzen/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, email string) core.User {
	t.Helper()
	u := core.User{Email: email, PasswordHash: "hash", FirstName: "Erika", LastName: "Mustermann", IsActive: true}
	if err := s.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func seedAccount(t *testing.T, s *Store, userID string) core.Account {
	t.Helper()
	a := core.Account{
		UserID:         userID,
		Name:           "Girokonto",
		IBAN:           core.MustParseIBAN("DE89370400440532013000"),
		Type:           core.AccountChecking,
		Currency:       "EUR",
		OpeningBalance: core.MustEUR("1000.00"),
		IsActive:       true,
	}
	if err := s.CreateAccount(context.Background(), &a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func seedTransaction(t *testing.T, s *Store, userID, accountID, date, amount, desc string) core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatal(err)
	}
	tx := core.Transaction{
		UserID:      userID,
		AccountID:   accountID,
		BookingDate: d,
		Amount:      core.MustEUR(amount),
		Description: desc,
	}
	tx.Type = core.TypeForAmount(tx.Amount)
	tx.ApplyVat()
	if err := s.CreateTransaction(context.Background(), &tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return tx
}

func TestStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "  Erika@Example.DE ")
	if u.Email != "erika@example.de" {
		t.Errorf("email = %q, want lower-cased", u.Email)
	}
	if u.Version != 1 || u.Role != core.RoleUser {
		t.Errorf("version/role = %d/%s", u.Version, u.Role)
	}

	dup := core.User{Email: "ERIKA@example.de", PasswordHash: "x"}
	if err := s.CreateUser(ctx, &dup); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate email error = %v, want ErrConflict", err)
	}

	got, err := s.GetUserByEmail(ctx, "erika@EXAMPLE.de")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("GetUserByEmail id = %s, want %s", got.ID, u.ID)
	}

	stale := got
	got.FirstName = "Max"
	if err := s.UpdateUser(ctx, &got); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version after update = %d, want 2", got.Version)
	}
	stale.LastName = "Stale"
	if err := s.UpdateUser(ctx, &stale); !errors.Is(err, core.ErrConcurrencyConflict) {
		t.Errorf("stale update error = %v, want ErrConcurrencyConflict", err)
	}

	if err := s.TouchLastLogin(ctx, u.ID, time.Now()); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if got.LastLoginAt == nil || got.Version != 2 {
		t.Errorf("after login: lastLogin=%v version=%d", got.LastLoginAt, got.Version)
	}

	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetUser(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_AccountBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "a@example.de")
	a := seedAccount(t, s, u.ID)

	seedTransaction(t, s, u.ID, a.ID, "2024-03-01", "2500.00", "Gehalt")
	seedTransaction(t, s, u.ID, a.ID, "2024-03-02", "-49.99", "REWE")

	got, err := s.GetAccount(ctx, u.ID, a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if want := core.MustEUR("3450.01"); !got.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", got.Balance, want)
	}
	if got.IBAN.String() != "DE89370400440532013000" {
		t.Errorf("iban = %s", got.IBAN)
	}

	byIBAN, err := s.FindAccountByIBAN(ctx, u.ID, a.IBAN)
	if err != nil || byIBAN.ID != a.ID {
		t.Errorf("FindAccountByIBAN = %v, %v", byIBAN.ID, err)
	}

	other := seedUser(t, s, "b@example.de")
	if _, err := s.GetAccount(ctx, other.ID, a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign GetAccount error = %v, want ErrNotFound", err)
	}

	n, err := s.CountAccountTransactions(ctx, a.ID)
	if err != nil || n != 2 {
		t.Errorf("CountAccountTransactions = %d, %v", n, err)
	}
	if err := s.DeleteAccount(ctx, u.ID, a.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if n, _ := s.CountAccountTransactions(ctx, a.ID); n != 0 {
		t.Errorf("transactions left after account delete: %d", n)
	}
}

func TestStore_Categories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "c@example.de")

	vat := core.VatReduced
	parent := core.Category{UserID: u.ID, Name: "Lebensmittel", Type: core.Expense, Keywords: []string{"rewe", "edeka"}, DefaultVatRate: &vat}
	if err := s.CreateCategory(ctx, &parent); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	child := core.Category{UserID: u.ID, Name: "Bio", Type: core.Expense, ParentID: &parent.ID}
	if err := s.CreateCategory(ctx, &child); err != nil {
		t.Fatalf("CreateCategory child: %v", err)
	}

	got, err := s.GetCategory(ctx, u.ID, parent.ID)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "rewe" {
		t.Errorf("keywords = %v", got.Keywords)
	}
	if got.DefaultVatRate == nil || !got.DefaultVatRate.Equal(core.VatReduced) {
		t.Errorf("default vat = %v", got.DefaultVatRate)
	}
	if got, _ := s.GetCategory(ctx, u.ID, child.ID); len(got.Keywords) != 0 || got.Keywords == nil {
		t.Errorf("child keywords = %#v, want empty slice", got.Keywords)
	}

	exists, err := s.SiblingNameExists(ctx, u.ID, &parent.ID, "BIO", "")
	if err != nil || !exists {
		t.Errorf("SiblingNameExists(BIO) = %v, %v", exists, err)
	}
	exists, _ = s.SiblingNameExists(ctx, u.ID, nil, "Bio", "")
	if exists {
		t.Error("Bio should not exist at root level")
	}
	exists, _ = s.SiblingNameExists(ctx, u.ID, &parent.ID, "Bio", child.ID)
	if exists {
		t.Error("excluded id should not count as sibling")
	}

	if n, _ := s.CountChildren(ctx, parent.ID); n != 1 {
		t.Errorf("CountChildren = %d, want 1", n)
	}

	a := seedAccount(t, s, u.ID)
	tx := seedTransaction(t, s, u.ID, a.ID, "2024-01-05", "-12.00", "Bioladen")
	tx.CategoryID = &child.ID
	if err := s.UpdateTransaction(ctx, &tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if err := s.DeleteCategory(ctx, u.ID, child.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	got2, err := s.GetTransaction(ctx, u.ID, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got2.CategoryID != nil {
		t.Errorf("transaction still categorized: %v", *got2.CategoryID)
	}
}

func TestStore_TransactionFilterAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "d@example.de")
	a := seedAccount(t, s, u.ID)

	seedTransaction(t, s, u.ID, a.ID, "2024-01-10", "-10.00", "Bäckerei")
	seedTransaction(t, s, u.ID, a.ID, "2024-01-20", "-20.00", "REWE Markt")
	seedTransaction(t, s, u.ID, a.ID, "2024-02-01", "3000.00", "Gehalt Februar")
	seedTransaction(t, s, u.ID, a.ID, "2024-02-15", "-30.00", "Tankstelle")

	from, to := core.NewDate(2024, 1, 15), core.NewDate(2024, 2, 10)
	min := decimal.NewFromInt(-25)

	tests := []struct {
		name      string
		filter    TransactionFilter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", TransactionFilter{}, 4, "Tankstelle"},
		{"expenses", TransactionFilter{Type: core.Expense}, 3, "Tankstelle"},
		{"date range", TransactionFilter{From: &from, To: &to}, 2, "Gehalt Februar"},
		{"search case-insensitive", TransactionFilter{Search: "rewe"}, 1, "REWE Markt"},
		{"min amount", TransactionFilter{MinAmount: &min}, 3, "Gehalt Februar"},
		{"sort by amount asc", TransactionFilter{SortBy: "amount", SortAsc: true}, 4, "Tankstelle"},
		{"paging", TransactionFilter{PageSize: 1, Page: 2}, 4, "Gehalt Februar"},
		{"uncategorized", TransactionFilter{Uncategorized: true}, 4, "Tankstelle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := s.ListTransactions(ctx, u.ID, tt.filter)
			if err != nil {
				t.Fatalf("ListTransactions: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if len(items) == 0 || items[0].Description != tt.wantFirst {
				t.Errorf("first = %v, want %s", items, tt.wantFirst)
			}
		})
	}
}

func TestStore_TransactionVersioningAndSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "e@example.de")
	a := seedAccount(t, s, u.ID)
	tx := seedTransaction(t, s, u.ID, a.ID, "2024-05-01", "-119.00", "Bürobedarf")

	unsynced, err := s.ListUnsyncedTransactions(ctx, 10)
	if err != nil || len(unsynced) != 1 {
		t.Fatalf("ListUnsyncedTransactions = %d, %v", len(unsynced), err)
	}
	if err := s.MarkTransactionSynced(ctx, tx.ID, tx.Version, time.Now()); err != nil {
		t.Fatalf("MarkTransactionSynced: %v", err)
	}
	if unsynced, _ := s.ListUnsyncedTransactions(ctx, 10); len(unsynced) != 0 {
		t.Errorf("still unsynced after mark: %d", len(unsynced))
	}

	rate := core.VatStandard
	tx.VatRate = &rate
	tx.ApplyVat()
	if err := s.UpdateTransaction(ctx, &tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	got, _ := s.GetTransaction(ctx, u.ID, tx.ID)
	if got.SheetsSyncedAt != nil {
		t.Error("update should reset sheets sync marker")
	}
	if !got.VatAmount.Equal(core.MustEUR("-19.00")) {
		t.Errorf("vat = %s, want -19.00", got.VatAmount)
	}

	if err := s.MarkTransactionSynced(ctx, tx.ID, 1, time.Now()); !errors.Is(err, core.ErrConcurrencyConflict) {
		t.Errorf("mark with stale version error = %v, want ErrConcurrencyConflict", err)
	}
}

func TestStore_ImportHashUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "f@example.de")
	a := seedAccount(t, s, u.ID)

	mk := func() core.Transaction {
		return core.Transaction{
			UserID: u.ID, AccountID: a.ID, BookingDate: core.NewDate(2024, 6, 1),
			Amount: core.MustEUR("-5.00"), Type: core.Expense, Description: "Kiosk", ImportHash: "abc",
		}
	}
	first := mk()
	if err := s.CreateTransaction(ctx, &first); err != nil {
		t.Fatal(err)
	}
	second := mk()
	if err := s.CreateTransaction(ctx, &second); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate import hash error = %v, want ErrConflict", err)
	}

	hashes, err := s.ImportHashes(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hashes["abc"]; !ok || len(hashes) != 1 {
		t.Errorf("ImportHashes = %v", hashes)
	}
}

func TestStore_Summarize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "g@example.de")
	a := seedAccount(t, s, u.ID)

	rate := core.VatStandard
	for _, in := range []struct{ date, amount string }{
		{"2024-01-05", "119.00"},
		{"2024-01-20", "-59.50"},
		{"2024-02-03", "-11.90"},
	} {
		d, _ := core.ParseDate(in.date)
		tx := core.Transaction{UserID: u.ID, AccountID: a.ID, BookingDate: d, Amount: core.MustEUR(in.amount), Description: "x", VatRate: &rate}
		tx.Type = core.TypeForAmount(tx.Amount)
		tx.ApplyVat()
		if err := s.CreateTransaction(ctx, &tx); err != nil {
			t.Fatal(err)
		}
	}
	transfer := core.Transaction{UserID: u.ID, AccountID: a.ID, BookingDate: core.NewDate(2024, 1, 9), Amount: core.MustEUR("-500.00"), Type: core.Transfer, Description: "Sparen"}
	if err := s.CreateTransaction(ctx, &transfer); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summarize(ctx, u.ID, TransactionFilter{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := Totals{IncomeCents: 11900, ExpenseCents: -7140, VatCollectedCents: 1900, VatPaidCents: -1140, Count: 3}
	if sum.Totals != want {
		t.Errorf("totals = %+v, want %+v", sum.Totals, want)
	}
	if len(sum.ByMonth) != 2 || sum.ByMonth[0].Month != "2024-01" || sum.ByMonth[1].ExpenseCents != -1190 {
		t.Errorf("by month = %+v", sum.ByMonth)
	}
	if len(sum.ByCategory) != 1 || sum.ByCategory[0].CategoryID != "" {
		t.Errorf("by category = %+v", sum.ByCategory)
	}
}

func TestStore_Files(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "h@example.de")

	f := core.UploadedFile{UserID: u.ID, OriginalName: "auszug.pdf", StoredName: "k1", ContentType: "application/pdf", Size: 42, SHA256: "deadbeef"}
	if err := s.CreateFile(ctx, &f); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if f.Status != core.FilePending {
		t.Errorf("status = %s, want pending", f.Status)
	}
	dup := f
	dup.ID = ""
	if err := s.CreateFile(ctx, &dup); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate sha error = %v, want ErrConflict", err)
	}

	pending, err := s.ListPendingFiles(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListPendingFiles = %d, %v", len(pending), err)
	}

	stale := f
	if err := s.ClaimFile(ctx, &f); err != nil {
		t.Fatalf("ClaimFile: %v", err)
	}
	if err := s.ClaimFile(ctx, &stale); !errors.Is(err, core.ErrConcurrencyConflict) {
		t.Errorf("second claim error = %v, want ErrConcurrencyConflict", err)
	}

	now := time.Now()
	f.Status, f.TransactionCount, f.ProcessedAt = core.FileProcessed, 3, &now
	if err := s.UpdateFileStatus(ctx, &f); err != nil {
		t.Fatalf("UpdateFileStatus: %v", err)
	}
	got, err := s.FindFileBySHA(ctx, u.ID, "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.FileProcessed || got.TransactionCount != 3 || got.ProcessedAt == nil {
		t.Errorf("file = %+v", got)
	}

	if err := s.DeleteFile(ctx, u.ID, f.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := s.GetFileByID(ctx, f.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetFileByID after delete error = %v", err)
	}
}

func TestStore_WithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "i@example.de")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Store) error {
		a := core.Account{UserID: u.ID, Name: "Temp", Type: core.AccountCash, Currency: "EUR", OpeningBalance: core.ZeroMoney("EUR")}
		if err := tx.CreateAccount(ctx, &a); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}
	accounts, err := s.ListAccounts(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 0 {
		t.Errorf("rolled back account persisted: %d", len(accounts))
	}
}

func TestStore_DeleteUserData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "j@example.de")
	keep := seedUser(t, s, "k@example.de")
	a := seedAccount(t, s, u.ID)
	seedAccount(t, s, keep.ID)
	seedTransaction(t, s, u.ID, a.ID, "2024-01-01", "-1.00", "x")

	parent := core.Category{UserID: u.ID, Name: "P", Type: core.Expense}
	if err := s.CreateCategory(ctx, &parent); err != nil {
		t.Fatal(err)
	}
	child := core.Category{UserID: u.ID, Name: "C", Type: core.Expense, ParentID: &parent.ID}
	if err := s.CreateCategory(ctx, &child); err != nil {
		t.Fatal(err)
	}
	f := core.UploadedFile{UserID: u.ID, OriginalName: "a.pdf", StoredName: "k", ContentType: "application/pdf", SHA256: "s"}
	if err := s.CreateFile(ctx, &f); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteUserData(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUserData: %v", err)
	}
	if _, err := s.GetUser(ctx, u.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("user still present: %v", err)
	}
	if cats, _ := s.ListCategories(ctx, u.ID); len(cats) != 0 {
		t.Errorf("categories left: %d", len(cats))
	}
	if accs, _ := s.ListAccounts(ctx, keep.ID); len(accs) != 1 {
		t.Errorf("other user's accounts affected: %d", len(accs))
	}
}
