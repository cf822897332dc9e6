package validation

import (
	"testing"

	"finanzen/internal/core"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"password"`
	Name     string `json:"firstName" validate:"max=5"`
}

type accountRequest struct {
	IBAN     string `json:"iban" validate:"iban"`
	Type     string `json:"type" validate:"required,accounttype"`
	Currency string `json:"currency" validate:"omitempty,iso4217"`
	Color    string `json:"color" validate:"omitempty,hexcolor"`
	Vat      string `json:"vatRate" validate:"vatrate"`
	Kind     string `json:"kind" validate:"txtype"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(registerRequest{Email: "nope", Password: "short", Name: "Maximilian"})
	v, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("expected *core.ValidationError, got %T (%v)", err, err)
	}
	for _, field := range []string{"email", "password", "firstName"} {
		if len(v.Fields[field]) != 1 {
			t.Fatalf("expected one message for %s, got %v", field, v.Fields)
		}
	}
	if v.Fields["firstName"][0] != "must be at most 5 characters" {
		t.Fatalf("unexpected message %q", v.Fields["firstName"][0])
	}
}

func TestCustomValidators(t *testing.T) {
	valid := accountRequest{
		IBAN:     "DE89 3704 0044 0532 0130 00",
		Type:     "checking",
		Currency: "EUR",
		Color:    "#1a2b3c",
		Vat:      "0.19",
		Kind:     "expense",
	}
	if err := Struct(valid); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	invalid := accountRequest{
		IBAN:     "DE00370400440532013000",
		Type:     "depot",
		Currency: "EURO",
		Color:    "red",
		Vat:      "120",
		Kind:     "gift",
	}
	v, ok := Struct(invalid).(*core.ValidationError)
	if !ok {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"iban", "type", "currency", "color", "vatRate", "kind"} {
		if len(v.Fields[field]) == 0 {
			t.Fatalf("expected error for %s, got %v", field, v.Fields)
		}
	}
}

func TestIsStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Geheim123": true,
		"Äpfel1234": true,
		"geheim123": false,
		"GEHEIM123": false,
		"Geheimnis": false,
		"Ge1":       false,
	}
	for in, want := range cases {
		if got := IsStrongPassword(in); got != want {
			t.Errorf("IsStrongPassword(%q) = %v, want %v", in, got, want)
		}
	}
}
