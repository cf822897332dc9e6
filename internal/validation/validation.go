// Package validation checks request DTOs with struct tags and reports
// failures as core.ValidationError keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"finanzen/internal/core"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
		must(v.RegisterValidation("iban", validateIBAN))
		must(v.RegisterValidation("vatrate", validateVatRate))
		must(v.RegisterValidation("password", validatePassword))
		must(v.RegisterValidation("txtype", validateTransactionType))
		must(v.RegisterValidation("accounttype", validateAccountType))
		instance = v
	})
	return instance
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates s and converts validator errors to *core.ValidationError.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := core.NewValidationError()
	for _, fe := range verrs {
		out.Add(fieldPath(fe), message(fe))
	}
	return out
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// fieldPath drops the root struct name from the namespace ("CreateAccountRequest.iban" → "iban").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "iban":
		return "must be a valid IBAN"
	case "vatrate":
		return "must be a VAT rate between 0 and 1 (or 0 to 100 percent)"
	case "password":
		return "must have at least 8 characters with upper case, lower case and a digit"
	case "hexcolor":
		return "must be a hex color like #1a2b3c"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "txtype":
		return "must be one of [income expense transfer]"
	case "accounttype":
		return "must be one of [checking savings credit_card cash business]"
	case "eqfield":
		return fmt.Sprintf("must match %s", fe.Param())
	case "nefield":
		return fmt.Sprintf("must differ from %s", fe.Param())
	case "dive":
		return "contains an invalid entry"
	}
	return fmt.Sprintf("failed on %s", fe.Tag())
}

func validateIBAN(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || core.IsValidIBAN(s)
}

func validateVatRate(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return true
	}
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(100))
}

// IsStrongPassword reports whether s has at least 8 characters including an
// upper case letter, a lower case letter and a digit.
func IsStrongPassword(s string) bool {
	if len([]rune(s)) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func validatePassword(fl validator.FieldLevel) bool {
	return IsStrongPassword(fl.Field().String())
}

func validateTransactionType(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || core.TransactionType(s).Valid()
}

func validateAccountType(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || core.AccountType(s).Valid()
}
