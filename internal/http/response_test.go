package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finanzen/internal/core"
)

func decodeEnvelope(t *testing.T, body string) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", body, err)
	}
	return env
}

func TestResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()

	b := NewResponse().
		Status(http.StatusCreated).
		Data(map[string]string{"id": "42"}).
		Message("angelegt").
		Header("Location", "/api/accounts/42")
	b.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)) }
	b.Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("content type = %q", got)
	}
	if w.Header().Get("Location") != "/api/accounts/42" {
		t.Error("custom header missing")
	}
	body := w.Body.String()
	for _, part := range []string{
		`"success":true`,
		`"data":{"id":"42"}`,
		`"message":"angelegt"`,
		`"timestamp":"2024-03-01T09:00:00Z"`,
		`"statusCode":201`,
	} {
		if !strings.Contains(body, part) {
			t.Errorf("body missing %s: %s", part, body)
		}
	}
	if strings.Contains(body, `"errors"`) {
		t.Errorf("empty errors serialized: %s", body)
	}
}

func TestResponseBuilder_ErrorStatusIsUnsuccessful(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusConflict).Message("x").Write(w)

	env := decodeEnvelope(t, w.Body.String())
	if env.Success || env.StatusCode != http.StatusConflict || env.Data != nil {
		t.Errorf("envelope = %+v", env)
	}
}

func TestAttachment(t *testing.T) {
	w := httptest.NewRecorder()
	Attachment(w, "März 2024.pdf", "application/pdf", []byte("%PDF"))

	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename*=utf-8''M%C3%A4rz%202024.pdf" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if w.Body.String() != "%PDF" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", core.FieldError("name", "is required"), http.StatusBadRequest, "Die Eingaben sind ungültig."},
		{"bad request", badRequest("malformed JSON"), http.StatusBadRequest, "malformed JSON"},
		{"unauthorized", fmt.Errorf("%w: invalid email or password", core.ErrUnauthorized), http.StatusUnauthorized, "invalid email or password"},
		{"forbidden", core.ErrForbidden, http.StatusForbidden, "Zugriff verweigert."},
		{"not found", fmt.Errorf("get account: %w", core.ErrNotFound), http.StatusNotFound, "Nicht gefunden."},
		{"conflict", fmt.Errorf("create: %w", fmt.Errorf("%w: email is already registered", core.ErrConflict)), http.StatusConflict, "email is already registered"},
		{"stale", fmt.Errorf("update: %w", core.ErrConcurrencyConflict), http.StatusConflict, "Der Datensatz wurde zwischenzeitlich geändert. Bitte neu laden."},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "Die Anfrage ist zu groß."},
		{"unprocessable", fmt.Errorf("%w: no account with IBAN DE89", core.ErrUnprocessable), http.StatusUnprocessableEntity, "no account with IBAN DE89"},
		{"internal", errors.New("database is locked"), http.StatusInternalServerError, msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := classify(tt.err)
			if p.status != tt.status || p.message != tt.message {
				t.Errorf("classify = %d %q, want %d %q", p.status, p.message, tt.status, tt.message)
			}
		})
	}
}

func TestWriteError_ValidationFields(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/accounts", nil)
	ve := core.NewValidationError()
	ve.Add("name", "is required")
	ve.Add("iban", "is not a valid IBAN")
	writeError(w, r, fmt.Errorf("create account: %w", ve))

	env := decodeEnvelope(t, w.Body.String())
	if w.Code != http.StatusBadRequest || env.Success {
		t.Fatalf("status = %d, envelope = %+v", w.Code, env)
	}
	if len(env.Errors["name"]) != 1 || len(env.Errors["iban"]) != 1 {
		t.Errorf("errors = %v", env.Errors)
	}
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))

	env := decodeEnvelope(t, w.Body.String())
	if w.Code != http.StatusInternalServerError || env.Message != msgInternal {
		t.Errorf("status = %d, message = %q", w.Code, env.Message)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("panic value leaked to client")
	}
}
