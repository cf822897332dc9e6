package statement

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"finanzen/internal/core"
)

const sampleStatement = `Musterbank AG
Kontoauszug Nr. 3/2024
Kontoinhaber: Erika Mustermann
IBAN: DE89 3704 0044 0532 0130 00 BIC: COBADEFFXXX
Zeitraum 01.03.2024 - 31.03.2024
Alter Kontostand vom 29.02.2024 1.000,00 H
Buchungstag Valuta Vorgang Betrag
01.03.2024 01.03.2024 Gehalt 2.500,00 H
ACME GmbH
DE02120300000000202051
Verwendungszweck: Lohn März
04.03.2024 04.03.2024 Lastschrift 49,99 S
REWE Markt GmbH
SVWZ+ Einkauf Filiale 123
15.03.24 Dauerauftrag -850,00
Vermieter Hans Schmidt
IBAN: DE75 5121 0800 1245 1261 99
Miete März
Seite 1 von 2
20.03.2024 Kartenzahlung 12,50-
Bäckerei Müller
Neuer Kontostand vom 31.03.2024 2.587,51 H
`

func TestParseText_Header(t *testing.T) {
	st, err := ParseText(sampleStatement)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	if got := st.IBAN.String(); got != "DE89370400440532013000" {
		t.Errorf("IBAN = %q", got)
	}
	if st.BIC != "COBADEFFXXX" {
		t.Errorf("BIC = %q", st.BIC)
	}
	if st.AccountHolder != "Erika Mustermann" {
		t.Errorf("AccountHolder = %q", st.AccountHolder)
	}
	if st.PeriodFrom == nil || st.PeriodFrom.String() != "2024-03-01" || st.PeriodTo.String() != "2024-03-31" {
		t.Errorf("period = %v - %v", st.PeriodFrom, st.PeriodTo)
	}
	if st.OpeningBalance == nil || !st.OpeningBalance.Equal(core.MustEUR("1000.00")) {
		t.Errorf("opening balance = %v", st.OpeningBalance)
	}
	if st.ClosingBalance == nil || !st.ClosingBalance.Equal(core.MustEUR("2587.51")) {
		t.Errorf("closing balance = %v", st.ClosingBalance)
	}
	if err := st.Reconcile(); err != nil {
		t.Errorf("Reconcile: %v", err)
	}
}

func TestParseText_Entries(t *testing.T) {
	st, err := ParseText(sampleStatement)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	if len(st.Entries) != 4 {
		t.Fatalf("got %d entries, want 4: %+v", len(st.Entries), st.Entries)
	}

	tests := []struct {
		date         string
		amount       string
		counterparty string
		reference    string
		iban         string
	}{
		{"2024-03-01", "2500.00", "ACME GmbH", "Lohn März", "DE02120300000000202051"},
		{"2024-03-04", "-49.99", "REWE Markt GmbH", "Einkauf Filiale 123", ""},
		{"2024-03-15", "-850.00", "Vermieter Hans Schmidt", "Miete März", "DE75512108001245126199"},
		{"2024-03-20", "-12.50", "Bäckerei Müller", "", ""},
	}
	for i, tt := range tests {
		e := st.Entries[i]
		if e.BookingDate.String() != tt.date {
			t.Errorf("entry %d date = %s, want %s", i, e.BookingDate, tt.date)
		}
		if !e.Amount.Equal(core.MustEUR(tt.amount)) {
			t.Errorf("entry %d amount = %s, want %s", i, e.Amount, tt.amount)
		}
		if e.Counterparty != tt.counterparty {
			t.Errorf("entry %d counterparty = %q, want %q", i, e.Counterparty, tt.counterparty)
		}
		if e.Reference != tt.reference {
			t.Errorf("entry %d reference = %q, want %q", i, e.Reference, tt.reference)
		}
		gotIBAN := ""
		if e.CounterpartyIBAN != nil {
			gotIBAN = e.CounterpartyIBAN.String()
		}
		if gotIBAN != tt.iban {
			t.Errorf("entry %d counterparty IBAN = %q, want %q", i, gotIBAN, tt.iban)
		}
		if len(e.ImportHash) != 64 {
			t.Errorf("entry %d import hash = %q", i, e.ImportHash)
		}
	}

	if st.Entries[0].ValueDate == nil || st.Entries[0].ValueDate.String() != "2024-03-01" {
		t.Errorf("value date = %v", st.Entries[0].ValueDate)
	}
	if !strings.HasPrefix(st.Entries[1].Description, "Lastschrift REWE Markt GmbH") {
		t.Errorf("description = %q", st.Entries[1].Description)
	}
}

func TestParseText_ShortDatesUsePeriodYear(t *testing.T) {
	text := "Zeitraum 15.12.2023 - 15.01.2024\n" +
		"28.12. 28.12. Gutschrift 100,00 H\n" +
		"03.01. 03.01. Abbuchung 20,00 S\n"
	st, err := ParseText(text)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	if len(st.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(st.Entries))
	}
	if got := st.Entries[0].BookingDate.String(); got != "2023-12-28" {
		t.Errorf("first date = %s, want 2023-12-28", got)
	}
	if got := st.Entries[1].BookingDate.String(); got != "2024-01-03" {
		t.Errorf("second date = %s, want 2024-01-03", got)
	}
}

func TestParseText_DuplicateLinesGetDistinctHashes(t *testing.T) {
	text := "01.02.2024 Parkschein 2,00-\n01.02.2024 Parkschein 2,00-\n"
	st, err := ParseText(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Entries) != 2 {
		t.Fatalf("entries = %d", len(st.Entries))
	}
	if st.Entries[0].ImportHash == st.Entries[1].ImportHash {
		t.Error("identical bookings must not share an import hash")
	}
	again, _ := ParseText(text)
	if again.Entries[1].ImportHash != st.Entries[1].ImportHash {
		t.Error("import hashes must be stable across parses")
	}
}

func TestParseText_NoTransactions(t *testing.T) {
	_, err := ParseText("Kontoauszug\nIBAN: DE89370400440532013000\nKeine Umsätze\n")
	if !errors.Is(err, ErrNoTransactions) {
		t.Errorf("error = %v, want ErrNoTransactions", err)
	}
}

func TestStatement_ReconcileMismatch(t *testing.T) {
	open, closing := core.MustEUR("100.00"), core.MustEUR("50.00")
	st := Statement{
		OpeningBalance: &open,
		ClosingBalance: &closing,
		Entries:        []Entry{{Amount: core.MustEUR("-40.00")}},
	}
	if err := st.Reconcile(); !errors.Is(err, ErrBalanceMismatch) {
		t.Errorf("Reconcile error = %v, want ErrBalanceMismatch", err)
	}
}

func TestImportHash(t *testing.T) {
	d := core.NewDate(2024, 3, 1)
	a := ImportHash(d, core.MustEUR("-10"), "REWE  Markt")
	b := ImportHash(d, core.MustEUR("-10.00"), "rewe markt")
	if a != b {
		t.Error("hash should ignore case, whitespace and amount formatting")
	}
	if a == ImportHash(d, core.MustEUR("-10.01"), "rewe markt") {
		t.Error("hash should depend on amount")
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n")) {
		t.Error("IsPDF should accept PDF header")
	}
	if IsPDF([]byte("PK\x03\x04")) {
		t.Error("IsPDF should reject zip header")
	}
}

func TestExtractText_RejectsGarbage(t *testing.T) {
	data := []byte("%PDF-1.4 this is not really a pdf")
	_, err := ExtractText(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrUnreadablePDF) {
		t.Errorf("ExtractText error = %v, want ErrUnreadablePDF", err)
	}
}

func TestExtractText_RowsAcrossPages(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "kontoauszug.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	text, err := ExtractText(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	want := strings.Join([]string{
		"Musterbank AG",
		"IBAN: DE89 3704 0044 0532 0130 00",
		"01.03.2024 Gehalt ACME GmbH 2.500,00 H",
		"02.03.2024 Bücherei München 23,90 S",
		"05.03.2024 REWE Markt 45,10 S",
	}, "\n") + "\n"
	if text != want {
		t.Fatalf("text =\n%s\nwant\n%s", text, want)
	}

	st, err := ParseText(text)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	if st.IBAN.String() != "DE89370400440532013000" || len(st.Entries) != 3 {
		t.Fatalf("statement = %s with %d entries", st.IBAN, len(st.Entries))
	}
	for i, amount := range []string{"2500.00", "-23.90", "-45.10"} {
		if got := st.Entries[i].Amount.Amount.StringFixed(2); got != amount {
			t.Errorf("entry %d amount = %s, want %s", i, got, amount)
		}
	}
}
