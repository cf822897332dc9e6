package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: "json", Component: ComponentWorker})
	logger.Info("hello", FieldFileID, "f-1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line[FieldComponent] != ComponentWorker || line[FieldFileID] != "f-1" || line["msg"] != "hello" {
		t.Errorf("line = %v", line)
	}
	if logger.Component() != ComponentWorker {
		t.Errorf("Component() = %q", logger.Component())
	}
	if got := logger.WithComponent(ComponentSheets).Component(); got != ComponentSheets {
		t.Errorf("WithComponent().Component() = %q", got)
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: "json"})
	ctx := WithLogger(context.Background(), logger.With(FieldRequestID, "req_1"))
	FromContext(ctx).InfoContext(ctx, "inside")
	if !strings.Contains(buf.String(), `"request_id":"req_1"`) {
		t.Errorf("context logger lost its fields: %s", buf.String())
	}
}

func TestStructuredLogger_HTTPEndLevel(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{503, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(New(Config{Output: &buf, Format: "json"}))
		r := httptest.NewRequest("GET", "/api/accounts?page=2", nil)
		sl.LogHTTPEnd(context.Background(), r, tt.status, 12, "192.0.2.1")

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("output is not JSON: %q", buf.String())
		}
		if line["level"] != tt.level {
			t.Errorf("status %d logged at %v, want %s", tt.status, line["level"], tt.level)
		}
		if line[FieldQuery] != "page=2" || line[FieldStatusCode] != float64(tt.status) {
			t.Errorf("line = %v", line)
		}
	}
}

func TestLogFields_ToSlice(t *testing.T) {
	s := NewFields().WithFile("f-1").WithOperation(OpImport).ToSlice()
	if len(s) != 4 {
		t.Fatalf("ToSlice() = %v", s)
	}
	got := map[any]any{s[0]: s[1], s[2]: s[3]}
	if got[FieldFileID] != "f-1" || got[FieldOperation] != OpImport {
		t.Errorf("ToSlice() = %v", s)
	}
}
