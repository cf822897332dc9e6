// Package core contains the domain entities and value objects.
//
// This file contains the Money value object and helpers for parsing
// monetary amounts written the German way (1.234,56) or the plain way (1234.56).
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a currency is omitted.
const DefaultCurrency = "EUR"

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrAmountTooLarge   = errors.New("amount must be below 1.000.000.000.000")
)

// maxAmount bounds every amount so that sums of cents stay well inside int64.
var maxAmount = decimal.New(1, 12)

// CheckAmount rejects amounts whose magnitude reaches one trillion.
func CheckAmount(d decimal.Decimal) error {
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// Money is an amount in a currency, always held at two decimal places.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney rounds amount to cents (half away from zero) and normalizes the currency.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	amount = amount.Round(2)
	if err := CheckAmount(amount); err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: cur}, nil
}

// EUR is a shortcut for euro amounts that cannot fail.
func EUR(amount decimal.Decimal) Money {
	return Money{Amount: amount.Round(2), Currency: DefaultCurrency}
}

// MustEUR parses s with ParseAmount and panics on error. Intended for tests and constants.
func MustEUR(s string) Money {
	d, err := ParseAmount(s)
	if err != nil {
		panic(fmt.Sprintf("core.MustEUR(%q): %v", s, err))
	}
	return EUR(d)
}

// ZeroMoney returns a zero amount in currency.
func ZeroMoney(currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: decimal.Zero, Currency: strings.ToUpper(currency)}
}

// NormalizeCurrency upper-cases a three letter ISO 4217 code; empty means EUR.
func NormalizeCurrency(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency, nil
	}
	if len(c) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return c, nil
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}

// Add returns m + o. Both must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(o.Amount).Round(2), Currency: m.Currency}, nil
}

// Sub returns m - o. Both must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(o.Amount).Round(2), Currency: m.Currency}, nil
}

// Mul multiplies by factor and rounds back to cents.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor).Round(2), Currency: m.Currency}
}

// Neg flips the sign.
func (m Money) Neg() Money { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }

// Abs drops the sign.
func (m Money) Abs() Money { return Money{Amount: m.Amount.Abs(), Currency: m.Currency} }

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// Cmp compares amounts; currencies must match.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(o.Amount), nil
}

// Equal reports whether amount and currency are equal.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// String renders "12.34 EUR".
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

type moneyJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	cur := m.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{Amount: m.Amount.StringFixed(2), Currency: cur})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := NewMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseGermanAmount parses amounts as printed on German documents: '.' groups
// thousands, ',' separates decimals, an optional sign may lead or trail
// ("1.234,56-"), and currency markers (€, EUR) are ignored.
func ParseGermanAmount(s string) (decimal.Decimal, error) {
	body, neg, err := splitSign(cleanAmount(s))
	if err != nil {
		return decimal.Zero, err
	}
	body = strings.ReplaceAll(body, ".", "")
	if strings.Count(body, ",") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	body = strings.Replace(body, ",", ".", 1)
	return finishAmount(body, neg)
}

// ParseAmount accepts both notations. When both separators occur the last one
// is the decimal separator; a lone comma is a decimal comma; repeated
// separators of one kind group thousands.
func ParseAmount(s string) (decimal.Decimal, error) {
	body, neg, err := splitSign(cleanAmount(s))
	if err != nil {
		return decimal.Zero, err
	}
	dots, commas := strings.Count(body, "."), strings.Count(body, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(body, ",") > strings.LastIndex(body, ".") {
			body = strings.ReplaceAll(body, ".", "")
			body = strings.Replace(body, ",", ".", 1)
		} else {
			body = strings.ReplaceAll(body, ",", "")
		}
	case commas == 1:
		body = strings.Replace(body, ",", ".", 1)
	case commas > 1:
		body = strings.ReplaceAll(body, ",", "")
	case dots > 1:
		body = strings.ReplaceAll(body, ".", "")
	}
	if strings.Count(body, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	return finishAmount(body, neg)
}

func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "EUR", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func splitSign(s string) (string, bool, error) {
	if s == "" {
		return "", false, ErrInvalidAmount
	}
	neg := false
	switch s[0] {
	case '-':
		neg, s = true, s[1:]
	case '+':
		s = s[1:]
	}
	if s != "" {
		switch s[len(s)-1] {
		case '-':
			if neg {
				return "", false, ErrInvalidAmount
			}
			neg, s = true, s[:len(s)-1]
		case '+':
			s = s[:len(s)-1]
		}
	}
	if s == "" {
		return "", false, ErrInvalidAmount
	}
	return s, neg, nil
}

func finishAmount(body string, neg bool) (decimal.Decimal, error) {
	for _, r := range body {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if body == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(body)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := CheckAmount(d); err != nil {
		return decimal.Zero, err
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}
