package util

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	got, err := SanitizeFileName("  grid data.csv ")
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if got != "grid data.csv" {
		t.Fatalf("expected trimmed name, got %q", got)
	}

	got, err = SanitizeFileName("a/b\\c.csv")
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if got != "a_b_c.csv" {
		t.Fatalf("expected separators replaced, got %q", got)
	}
}

func TestSanitizeFileNameRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../etc/passwd", "a..b.csv", "", "   "} {
		if _, err := SanitizeFileName(name); err == nil {
			t.Fatalf("expected %q rejected", name)
		}
	}
}

func TestTruncateMessage(t *testing.T) {
	got := TruncateMessage("line one\nline two\r\n  ", 0)
	if strings.ContainsAny(got, "\n\r") {
		t.Fatalf("expected newlines stripped, got %q", got)
	}

	long := strings.Repeat("x", 100)
	if got := TruncateMessage(long, 10); len(got) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(got))
	}
	if got := TruncateMessage("short", 10); got != "short" {
		t.Fatalf("short message must pass through, got %q", got)
	}
}
