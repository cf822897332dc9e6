package filestore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocal_SaveOpenDelete(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	n, err := store.Save(ctx, "user-1/abc.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 13 {
		t.Errorf("Save wrote %d bytes, want 13", n)
	}

	rc, err := store.Open(ctx, "user-1/abc.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "%PDF-1.4 body" {
		t.Errorf("content = %q", b)
	}

	if err := store.Delete(ctx, "user-1/abc.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "user-1/abc.pdf"); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Open(ctx, "user-1/abc.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after delete error = %v, want ErrNotFound", err)
	}
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../x.pdf", "a/../../x.pdf", "/etc/passwd", "."} {
		t.Run(key, func(t *testing.T) {
			if _, err := store.Save(context.Background(), key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Save(%q) error = %v, want ErrInvalidKey", key, err)
			}
		})
	}
}

func TestLocal_SaveHonorsContext(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, "k.pdf", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Errorf("Save with cancelled ctx error = %v", err)
	}
	if _, err := store.Open(context.Background(), "k.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("partial file left behind: %v", err)
	}
}
