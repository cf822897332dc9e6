package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIBANFormat         = errors.New("invalid IBAN format")
	ErrIBANUnknownCountry = errors.New("unsupported IBAN country")
	ErrIBANLength         = errors.New("invalid IBAN length for country")
	ErrIBANChecksum       = errors.New("invalid IBAN checksum")
)

// ibanLengths maps ISO 3166 country codes to the fixed IBAN length of that country.
var ibanLengths = map[string]int{
	"AD": 24, "AE": 23, "AL": 28, "AT": 20, "AZ": 28, "BA": 20, "BE": 16,
	"BG": 22, "BH": 22, "BR": 29, "CH": 21, "CR": 22, "CY": 28, "CZ": 24,
	"DE": 22, "DK": 18, "DO": 28, "EE": 20, "EG": 29, "ES": 24, "FI": 18,
	"FO": 18, "FR": 27, "GB": 22, "GE": 22, "GI": 23, "GL": 18, "GR": 27,
	"GT": 28, "HR": 21, "HU": 28, "IE": 22, "IL": 23, "IS": 26, "IT": 27,
	"JO": 30, "KW": 30, "KZ": 20, "LB": 28, "LI": 21, "LT": 20, "LU": 20,
	"LV": 21, "MC": 27, "MD": 24, "ME": 22, "MK": 19, "MR": 27, "MT": 31,
	"MU": 30, "NL": 18, "NO": 15, "PK": 24, "PL": 28, "PS": 29, "PT": 25,
	"QA": 29, "RO": 24, "RS": 22, "SA": 24, "SE": 24, "SI": 19, "SK": 24,
	"SM": 27, "TN": 24, "TR": 26, "UA": 29, "VA": 22, "VG": 24, "XK": 20,
}

// IBAN is a validated International Bank Account Number in electronic form.
type IBAN struct {
	value string
}

// ParseIBAN normalizes s (spaces and hyphens removed, upper case) and checks
// the country length table and the mod-97 checksum.
func ParseIBAN(s string) (IBAN, error) {
	v := normalizeIBAN(s)
	if len(v) < 5 {
		return IBAN{}, ErrIBANFormat
	}
	for i, r := range v {
		switch {
		case i < 2 && (r < 'A' || r > 'Z'):
			return IBAN{}, ErrIBANFormat
		case i >= 2 && i < 4 && (r < '0' || r > '9'):
			return IBAN{}, ErrIBANFormat
		case i >= 4 && !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z'):
			return IBAN{}, ErrIBANFormat
		}
	}
	want, ok := ibanLengths[v[:2]]
	if !ok {
		return IBAN{}, ErrIBANUnknownCountry
	}
	if len(v) != want {
		return IBAN{}, ErrIBANLength
	}
	if ibanMod97(v) != 1 {
		return IBAN{}, ErrIBANChecksum
	}
	return IBAN{value: v}, nil
}

// MustParseIBAN is ParseIBAN that panics on error. Intended for tests and constants.
func MustParseIBAN(s string) IBAN {
	v, err := ParseIBAN(s)
	if err != nil {
		panic(fmt.Sprintf("core.MustParseIBAN(%q): %v", s, err))
	}
	return v
}

// IsValidIBAN reports whether s parses as an IBAN.
func IsValidIBAN(s string) bool {
	_, err := ParseIBAN(s)
	return err == nil
}

func normalizeIBAN(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", " ", "").Replace(s)
}

// ibanMod97 moves the first four characters to the end, replaces letters by
// two-digit numbers (A=10 … Z=35) and returns the remainder modulo 97.
func ibanMod97(v string) int {
	return mod97(ibanDigits(v[4:] + v[:4]))
}

// mod97 reduces piecewise so arbitrarily long digit strings fit in an int.
func mod97(digits string) int {
	rem := 0
	for _, c := range digits {
		rem = (rem*10 + int(c-'0')) % 97
	}
	return rem
}

// ComputeCheckDigits returns the two check digits for country + bban.
func ComputeCheckDigits(country, bban string) (string, error) {
	country = strings.ToUpper(country)
	bban = normalizeIBAN(bban)
	if len(country) != 2 || bban == "" {
		return "", ErrIBANFormat
	}
	for _, r := range bban + country {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z') {
			return "", ErrIBANFormat
		}
	}
	check := 98 - mod97(ibanDigits(bban+country+"00"))
	return string([]byte{byte('0' + check/10), byte('0' + check%10)}), nil
}

func ibanDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			n := int(r-'A') + 10
			sb.WriteByte(byte('0' + n/10))
			sb.WriteByte(byte('0' + n%10))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// String returns the electronic form without spaces.
func (i IBAN) String() string { return i.value }

// IsZero reports whether the IBAN is unset.
func (i IBAN) IsZero() bool { return i.value == "" }

// Formatted returns the paper form in groups of four characters.
func (i IBAN) Formatted() string {
	var sb strings.Builder
	for n, r := range i.value {
		if n > 0 && n%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (i IBAN) CountryCode() string {
	if len(i.value) < 2 {
		return ""
	}
	return i.value[:2]
}

func (i IBAN) CheckDigits() string {
	if len(i.value) < 4 {
		return ""
	}
	return i.value[2:4]
}

func (i IBAN) BBAN() string {
	if len(i.value) < 4 {
		return ""
	}
	return i.value[4:]
}

// BankCode returns the Bankleitzahl of a German IBAN, empty otherwise.
func (i IBAN) BankCode() string {
	if i.CountryCode() != "DE" {
		return ""
	}
	return i.value[4:12]
}

// AccountNumber returns the ten digit account number of a German IBAN, empty otherwise.
func (i IBAN) AccountNumber() string {
	if i.CountryCode() != "DE" {
		return ""
	}
	return i.value[12:]
}

func (i IBAN) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.value)
}

func (i *IBAN) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*i = IBAN{}
		return nil
	}
	v, err := ParseIBAN(s)
	if err != nil {
		return err
	}
	*i = v
	return nil
}
