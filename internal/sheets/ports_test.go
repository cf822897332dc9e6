package sheets

import (
	"testing"

	"finanzen/internal/core"
)

func TestRow_Values(t *testing.T) {
	rate := core.VatStandard
	tx := core.Transaction{
		Base:         core.Base{ID: "abc"},
		BookingDate:  core.NewDate(2024, 1, 31),
		Amount:       core.MustEUR("-1234.5"),
		Description:  "Büromaterial",
		Counterparty: "Schreibwaren Müller",
		VatRate:      &rate,
	}
	got := NewRow(tx, "Geschäftskonto", "Bürobedarf").Values()
	want := []any{"31.01.2024", "Geschäftskonto", "Büromaterial", "Schreibwaren Müller", "Bürobedarf", "-1.234,50", "19 %", "abc"}
	if len(got) != len(Header) {
		t.Fatalf("len(Values()) = %d, want %d", len(got), len(Header))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %v = %q, want %q", Header[i], got[i], want[i])
		}
	}

	tx.VatRate = nil
	if v := NewRow(tx, "", "").Values()[6]; v != "" {
		t.Errorf("MwSt. without rate = %q, want empty", v)
	}
}
