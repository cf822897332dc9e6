package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finanzen/internal/core"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestHasher(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.HashPassword("Geheim123")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "Geheim123" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash %q", hash)
	}
	ok, err := h.CheckPassword(hash, "Geheim123")
	if err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	ok, err = h.CheckPassword(hash, "falsch")
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, got %v %v", ok, err)
	}
	if _, err := h.CheckPassword("not-a-hash", "x"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func newTestIssuer(now time.Time) *TokenIssuer {
	ti := NewTokenIssuer(testSecret, "finanzen", "finanzen-app", time.Hour)
	ti.now = func() time.Time { return now }
	return ti
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ti := newTestIssuer(now)
	user := core.User{Base: core.Base{ID: "u-1"}, Email: "anna@example.de", Role: core.RoleUser}

	token, exp, err := ti.Issue(user)
	if err != nil {
		t.Fatal(err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry %v", exp)
	}
	claims, err := ti.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID() != "u-1" || claims.Email != "anna@example.de" || claims.Role != core.RoleUser {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ti := newTestIssuer(now)
	token, _, _ := ti.Issue(core.User{Base: core.Base{ID: "u-1"}, Role: core.RoleUser})

	expired := newTestIssuer(now.Add(2 * time.Hour))
	otherAudience := NewTokenIssuer(testSecret, "finanzen", "other", time.Hour)
	otherAudience.now = ti.now
	otherSecret := NewTokenIssuer(strings.Repeat("x", 32), "finanzen", "finanzen-app", time.Hour)
	otherSecret.now = ti.now

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name   string
		issuer *TokenIssuer
		token  string
	}{
		{"expired", expired, token},
		{"wrong audience", otherAudience, token},
		{"wrong secret", otherSecret, token},
		{"garbage", ti, "not.a.token"},
		{"alg none", ti, none},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.issuer.Parse(tc.token); !errors.Is(err, core.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestClaimsContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	ctx := WithClaims(context.Background(), &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-9"}})
	id, err := UserIDFromContext(ctx)
	if err != nil || id != "u-9" {
		t.Fatalf("got %q %v", id, err)
	}
}
