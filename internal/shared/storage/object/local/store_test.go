package local

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store := New(t.TempDir())

	body := "timestamp,voltage\n2024-01-01T00:00:00Z,229.8\n"
	key, size, mimeType, err := store.Save(context.Background(), "guest:u1", "grid-data.csv", strings.NewReader(body))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if size != int64(len(body)) {
		t.Fatalf("expected size %d, got %d", len(body), size)
	}
	if mimeType == "" {
		t.Fatalf("expected detected mime type")
	}
	if strings.Contains(key, "guest:u1") {
		t.Fatalf("storage key must not leak the raw user id: %s", key)
	}

	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != body {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestSaveWithKeyWritesExactKey(t *testing.T) {
	store := New(t.TempDir())

	key := "users/abc/reports/r1.mdx"
	written, err := store.SaveWithKey(context.Background(), key, "text/markdown", strings.NewReader("# Report"))
	if err != nil {
		t.Fatalf("save with key: %v", err)
	}
	if written != int64(len("# Report")) {
		t.Fatalf("unexpected written count %d", written)
	}

	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "# Report" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())

	for _, key := range []string{"../outside", "/etc/passwd", "users/../../x"} {
		if _, err := store.Open(context.Background(), key); err == nil {
			t.Fatalf("expected traversal rejection for %q", key)
		}
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := New(t.TempDir())

	key := "users/abc/datasets/d1.csv"
	if _, err := store.SaveWithKey(context.Background(), key, "text/csv", strings.NewReader("a,b\n")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(context.Background(), key); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if _, err := store.Open(context.Background(), key); err == nil {
		t.Fatalf("expected open to fail after delete")
	}
}
