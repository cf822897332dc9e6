package core

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidVatRate = errors.New("vat rate must be between 0 and 1")

// VatRate is a Mehrwertsteuer rate expressed as a fraction (0.19 for 19 %).
type VatRate struct {
	d decimal.Decimal
}

var (
	VatStandard = VatRate{d: decimal.RequireFromString("0.19")}
	VatReduced  = VatRate{d: decimal.RequireFromString("0.07")}
	VatZero     = VatRate{d: decimal.Zero}
)

var hundred = decimal.NewFromInt(100)

// VatRateKind names the German rate classes.
type VatRateKind string

const (
	VatKindStandard VatRateKind = "standard"
	VatKindReduced  VatRateKind = "reduced"
	VatKindZero     VatRateKind = "zero"
	VatKindCustom   VatRateKind = "custom"
)

// RateForKind maps a non-custom kind to its rate.
func RateForKind(k VatRateKind) (VatRate, bool) {
	switch VatRateKind(strings.ToLower(string(k))) {
	case VatKindStandard:
		return VatStandard, true
	case VatKindReduced:
		return VatReduced, true
	case VatKindZero:
		return VatZero, true
	}
	return VatRate{}, false
}

// NewVatRate rejects rates outside [0, 1].
func NewVatRate(d decimal.Decimal) (VatRate, error) {
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return VatRate{}, ErrInvalidVatRate
	}
	return VatRate{d: d}, nil
}

// VatRateFromPercent accepts 19 for 19 %.
func VatRateFromPercent(p decimal.Decimal) (VatRate, error) {
	return NewVatRate(p.Div(hundred))
}

func (v VatRate) Decimal() decimal.Decimal { return v.d }

func (v VatRate) Percent() decimal.Decimal { return v.d.Mul(hundred) }

func (v VatRate) IsZero() bool { return v.d.IsZero() }

func (v VatRate) Equal(o VatRate) bool { return v.d.Equal(o.d) }

// Kind classifies the rate against the German standard and reduced rates.
func (v VatRate) Kind() VatRateKind {
	switch {
	case v.Equal(VatStandard):
		return VatKindStandard
	case v.Equal(VatReduced):
		return VatKindReduced
	case v.IsZero():
		return VatKindZero
	}
	return VatKindCustom
}

// String renders "19 %".
func (v VatRate) String() string {
	return v.Percent().String() + " %"
}

// GrossFromNet returns net * (1 + rate).
func (v VatRate) GrossFromNet(net Money) Money {
	return net.Mul(decimal.NewFromInt(1).Add(v.d))
}

// NetFromGross returns gross / (1 + rate), rounded to cents.
func (v VatRate) NetFromGross(gross Money) Money {
	net := gross.Amount.DivRound(decimal.NewFromInt(1).Add(v.d), 8)
	return Money{Amount: net.Round(2), Currency: gross.Currency}
}

// VatFromNet returns net * rate.
func (v VatRate) VatFromNet(net Money) Money {
	return net.Mul(v.d)
}

// VatFromGross returns the tax contained in gross, computed as gross - net so
// that net and tax always add up to gross.
func (v VatRate) VatFromGross(gross Money) Money {
	_, vat := v.Split(gross)
	return vat
}

// Split divides gross into net and vat with net + vat == gross.
func (v VatRate) Split(gross Money) (net, vat Money) {
	net = v.NetFromGross(gross)
	vat = Money{Amount: gross.Amount.Round(2).Sub(net.Amount), Currency: gross.Currency}
	return net, vat
}

// MarshalJSON writes the fraction as a string ("0.19").
func (v VatRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.d.String())
}

// UnmarshalJSON accepts a fraction as string or number; values above 1 are
// read as percentages.
func (v *VatRate) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		r, err := VatRateFromPercent(d)
		if err != nil {
			return err
		}
		*v = r
		return nil
	}
	r, err := NewVatRate(d)
	if err != nil {
		return err
	}
	*v = r
	return nil
}
