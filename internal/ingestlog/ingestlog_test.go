package ingestlog

import "testing"

func TestNullIfEmpty(t *testing.T) {
	if got := nullIfEmpty(""); got != nil {
		t.Fatalf("nullIfEmpty(\"\") = %v, want nil", got)
	}
	got := nullIfEmpty("abc123")
	if got == nil || *got != "abc123" {
		t.Fatalf("nullIfEmpty(\"abc123\") = %v, want pointer to abc123", got)
	}
}
