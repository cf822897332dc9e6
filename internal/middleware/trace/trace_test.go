package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finanzen/internal/log"
)

func TestMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf, Format: "json"})
	m := NewMiddleware(logger, func(*http.Request) string { return "192.0.2.1" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		log.FromContext(r.Context()).InfoContext(r.Context(), "inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{"generated", "", false},
		{"reused", "client-req-12345", true},
		{"rejected", "bad id with spaces", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			got := rr.Header().Get(HeaderRequestID)
			if got != seen || got == "" {
				t.Fatalf("header id %q, context id %q", got, seen)
			}
			if tt.reuse && got != tt.incoming {
				t.Errorf("id = %q, want %q", got, tt.incoming)
			}
			if !tt.reuse && !strings.HasPrefix(got, "req_") {
				t.Errorf("id = %q, want generated", got)
			}

			out := buf.String()
			if strings.Count(out, `"request_id":"`+got+`"`) != 3 {
				t.Errorf("log lines do not all carry the request id:\n%s", out)
			}
			if !strings.Contains(out, `"status_code":418`) || !strings.Contains(out, `"level":"WARN"`) {
				t.Errorf("completion line missing status or level:\n%s", out)
			}
		})
	}

	if got := m.GetMetrics().TotalRequests; got != 3 {
		t.Errorf("total requests = %d", got)
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if a == b || len(a) != len("req_")+16 {
		t.Errorf("ids %q %q", a, b)
	}
}
