package core

import (
	"encoding/json"
	"testing"
)

func TestParseDate(t *testing.T) {
	want := NewDate(2024, 12, 24)
	for _, in := range []string{"2024-12-24", "24.12.2024", "24.12.24", "2024-12-24T10:00:00Z"} {
		got, err := ParseDate(in)
		if err != nil || !got.Equal(want.Time) {
			t.Fatalf("%q: got %s err=%v", in, got, err)
		}
	}
	if _, err := ParseDate("31.02.2024"); err == nil {
		t.Fatal("expected error for impossible date")
	}
}

func TestDateJSONAndScan(t *testing.T) {
	b, _ := json.Marshal(NewDate(2024, 1, 2))
	if string(b) != `"2024-01-02"` {
		t.Fatalf("marshal: %s", b)
	}
	var d Date
	if err := json.Unmarshal([]byte(`"02.01.2024"`), &d); err != nil || d.String() != "2024-01-02" {
		t.Fatalf("unmarshal: %s err=%v", d, err)
	}
	if err := d.Scan("2023-05-06 00:00:00"); err != nil || d.String() != "2023-05-06" {
		t.Fatalf("scan: %s err=%v", d, err)
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Fatal("scan nil should reset")
	}
}

func TestTransactionValidate(t *testing.T) {
	err := Transaction{}.Validate()
	v, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	for _, field := range []string{"accountId", "bookingDate", "amount", "description"} {
		if len(v.Fields[field]) == 0 {
			t.Fatalf("expected error for %s, got %v", field, v.Fields)
		}
	}

	ok1 := Transaction{
		AccountID:   "acc",
		BookingDate: NewDate(2024, 1, 1),
		Amount:      MustEUR("-10"),
		Description: "REWE Markt",
	}
	if err := ok1.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestTransactionApplyVat(t *testing.T) {
	tx := Transaction{Amount: MustEUR("-119.00"), VatRate: &VatStandard}
	tx.ApplyVat()
	if !tx.VatAmount.Equal(MustEUR("-19.00")) {
		t.Fatalf("vat: %s", tx.VatAmount)
	}
	if !tx.Net().Equal(MustEUR("-100.00")) {
		t.Fatalf("net: %s", tx.Net())
	}

	tx.VatRate = nil
	tx.ApplyVat()
	if !tx.VatAmount.IsZero() {
		t.Fatalf("expected zero vat without rate, got %s", tx.VatAmount)
	}
}

func TestTypeForAmountAndMatches(t *testing.T) {
	if TypeForAmount(MustEUR("-1")) != Expense || TypeForAmount(MustEUR("1")) != Income {
		t.Fatal("type derived from sign")
	}
	food := Category{Type: Expense}
	if !food.Matches(Expense) || food.Matches(Income) {
		t.Fatal("expense category matches outflows only")
	}
	if !(Category{Type: Transfer}).Matches(Income) {
		t.Fatal("transfer categories match both directions")
	}
}

func TestCategoryValidate(t *testing.T) {
	id := "c1"
	c := Category{Base: Base{ID: id}, Name: "Lebensmittel", Type: Expense, Color: "#zzz", ParentID: &id}
	v, ok := c.Validate().(*ValidationError)
	if !ok {
		t.Fatal("expected validation error")
	}
	if len(v.Fields["color"]) == 0 || len(v.Fields["parentId"]) == 0 {
		t.Fatalf("unexpected fields %v", v.Fields)
	}
}

func TestAccountBalance(t *testing.T) {
	a := Account{OpeningBalance: MustEUR("100")}
	if got := a.ComputeBalance(MustEUR("-30.5").Amount); !got.Equal(MustEUR("69.5")) {
		t.Fatalf("balance: %s", got)
	}
}
