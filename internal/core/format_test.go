package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatGerman(t *testing.T) {
	cases := map[string]string{
		"1234.56":    "1.234,56 €",
		"-1234567.8": "-1.234.567,80 €",
		"0":          "0,00 €",
		"999":        "999,00 €",
		"1000":       "1.000,00 €",
		"-0.001":     "0,00 €",
	}
	for in, want := range cases {
		got := FormatGerman(Money{Amount: decimal.RequireFromString(in), Currency: "EUR"})
		if got != want {
			t.Fatalf("%s: expected %q, got %q", in, want, got)
		}
	}
	usd := Money{Amount: decimal.NewFromInt(5), Currency: "USD"}
	if got := FormatGerman(usd); got != "5,00 USD" {
		t.Fatalf("usd: %q", got)
	}
}

func TestFormatGermanDateAndPercent(t *testing.T) {
	d := time.Date(2024, 3, 7, 15, 4, 0, 0, time.UTC)
	if got := FormatGermanDate(d); got != "07.03.2024" {
		t.Fatalf("date: %q", got)
	}
	if FormatGermanDate(time.Time{}) != "" {
		t.Fatal("zero date should be empty")
	}
	r, _ := NewVatRate(decimal.RequireFromString("0.075"))
	if got := FormatGermanPercent(r); got != "7,5 %" {
		t.Fatalf("percent: %q", got)
	}
}
