package jobqueue

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuildDedupeKeyStable(t *testing.T) {
	scope := map[string]any{"username": "magnuscarlsen", "year": 2024}

	a, err := BuildDedupeKey(KindProfile, "chesscom", 0, scope)
	if err != nil {
		t.Fatalf("BuildDedupeKey: %v", err)
	}
	b, err := BuildDedupeKey(KindProfile, "chesscom", 0, map[string]any{"year": 2024, "username": "magnuscarlsen"})
	if err != nil {
		t.Fatalf("BuildDedupeKey: %v", err)
	}
	if a != b {
		t.Fatalf("expected key order-independence, got %q != %q", a, b)
	}
}

func TestBuildDedupeKeyDistinguishesPlatform(t *testing.T) {
	scope := map[string]any{"username": "drnykterstein"}

	chesscomKey, err := BuildDedupeKey(KindProfile, "chesscom", 0, scope)
	if err != nil {
		t.Fatalf("BuildDedupeKey: %v", err)
	}
	lichessKey, err := BuildDedupeKey(KindProfile, "lichess", 0, scope)
	if err != nil {
		t.Fatalf("BuildDedupeKey: %v", err)
	}
	if chesscomKey == lichessKey {
		t.Fatalf("expected distinct keys per platform, got identical %q", chesscomKey)
	}
}

func TestBuildDedupeKeyDistinguishesKind(t *testing.T) {
	scope := map[string]any{"username": "hikaru"}

	profileKey, err := BuildDedupeKey(KindProfile, "chesscom", 42, scope)
	if err != nil {
		t.Fatalf("BuildDedupeKey: %v", err)
	}
	statsKey, err := BuildDedupeKey(KindStats, "chesscom", 42, scope)
	if err != nil {
		t.Fatalf("BuildDedupeKey: %v", err)
	}
	if profileKey == statsKey {
		t.Fatalf("expected distinct keys per kind, got identical %q", profileKey)
	}
}

func TestCanonicalJSONEmptyScope(t *testing.T) {
	s, err := canonicalJSON(nil)
	if err != nil {
		t.Fatalf("canonicalJSON(nil): %v", err)
	}
	if s != "{}" {
		t.Fatalf("expected empty object, got %q", s)
	}
}

func TestTruncateError(t *testing.T) {
	if got := truncateError(nil); got != "" {
		t.Fatalf("expected empty string for nil error, got %q", got)
	}

	long := strings.Repeat("x", 600)
	got := truncateError(errors.New(long))
	if len(got) != 500 {
		t.Fatalf("expected truncation to 500 chars, got %d", len(got))
	}

	short := truncateError(errors.New("boom"))
	if short != "boom" {
		t.Fatalf("expected short error untouched, got %q", short)
	}
}

func TestBackoffPolicyDelay(t *testing.T) {
	p := BackoffPolicy{Base: 300 * time.Second, Max: time.Hour}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 300 * time.Second},
		{1, 300 * time.Second},
		{2, 600 * time.Second},
		{3, 1200 * time.Second},
		{4, 2400 * time.Second},
		{5, time.Hour}, // 4800s would exceed the 1h cap
		{6, time.Hour}, // 9600s would exceed the 1h cap
		{20, time.Hour},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempts); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestJobUsername(t *testing.T) {
	j := &Job{Scope: map[string]any{"username": "fabianocaruana"}}
	if got := j.Username(); got != "fabianocaruana" {
		t.Fatalf("Username() = %q, want fabianocaruana", got)
	}

	empty := &Job{}
	if got := empty.Username(); got != "" {
		t.Fatalf("Username() on nil scope = %q, want empty", got)
	}
}
