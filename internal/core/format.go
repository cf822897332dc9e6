package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GermanDateLayout is the day.month.year layout used on German documents.
const GermanDateLayout = "02.01.2006"

// FormatGermanDecimal renders d with two decimals, '.' grouping thousands and ',' as decimal separator.
func FormatGermanDecimal(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var sb strings.Builder
	if d.Round(2).IsNegative() {
		sb.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte(',')
	sb.WriteString(frac)
	return sb.String()
}

// FormatGerman renders "1.234,56 €" for euro and "1.234,56 USD" otherwise.
func FormatGerman(m Money) string {
	sym := m.Currency
	switch sym {
	case "", DefaultCurrency:
		sym = "€"
	}
	return FormatGermanDecimal(m.Amount) + " " + sym
}

// FormatGermanDate renders 02.01.2006; zero times render empty.
func FormatGermanDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(GermanDateLayout)
}

// FormatGermanPercent renders a rate as "19 %" or "7,5 %".
func FormatGermanPercent(v VatRate) string {
	return strings.Replace(v.Percent().String(), ".", ",", 1) + " %"
}
