package store

import (
	"testing"
	"time"
)

func TestUnixMillisPtr(t *testing.T) {
	if got := unixMillisPtr(0); got != nil {
		t.Fatalf("unixMillisPtr(0) = %v, want nil", got)
	}

	ms := int64(1700000000000)
	got := unixMillisPtr(ms)
	if got == nil {
		t.Fatal("unixMillisPtr returned nil for nonzero input")
	}
	want := time.UnixMilli(ms)
	if !got.Equal(want) {
		t.Fatalf("unixMillisPtr(%d) = %v, want %v", ms, got, want)
	}
}
