package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/jobqueue"
)

func TestCurrentUsernamePrefersScope(t *testing.T) {
	job := &jobqueue.Job{Scope: map[string]any{"username": "Hikaru"}}

	lookupCalled := false
	lookup := func(ctx context.Context, pool *pgxpool.Pool, playerID int64) (string, error) {
		lookupCalled = true
		return "", nil
	}

	username, err := currentUsername(context.Background(), nil, job, lookup)
	if err != nil {
		t.Fatalf("currentUsername: %v", err)
	}
	if username != "hikaru" {
		t.Errorf("username = %q, want lowercased hikaru", username)
	}
	if lookupCalled {
		t.Errorf("expected lookup not to be called when scope has a username")
	}
}

func TestCurrentUsernameFallsBackToLookup(t *testing.T) {
	job := &jobqueue.Job{PlayerID: 7}

	lookup := func(ctx context.Context, pool *pgxpool.Pool, playerID int64) (string, error) {
		if playerID != 7 {
			t.Fatalf("lookup called with playerID=%d, want 7", playerID)
		}
		return "magnuscarlsen", nil
	}

	username, err := currentUsername(context.Background(), nil, job, lookup)
	if err != nil {
		t.Fatalf("currentUsername: %v", err)
	}
	if username != "magnuscarlsen" {
		t.Errorf("username = %q, want magnuscarlsen", username)
	}
}

func TestCurrentUsernameMissingBoth(t *testing.T) {
	job := &jobqueue.Job{ID: 99}
	lookup := func(ctx context.Context, pool *pgxpool.Pool, playerID int64) (string, error) {
		return "", errors.New("should not be called")
	}

	if _, err := currentUsername(context.Background(), nil, job, lookup); err == nil {
		t.Fatal("expected error when job has neither username nor player id")
	}
}

func TestProcessDispatchesOnPlatform(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, nil, nil)

	job := &jobqueue.Job{Platform: "unknown", Kind: jobqueue.KindProfile}
	if err := p.Process(context.Background(), job); err == nil {
		t.Fatal("expected error for unsupported platform")
	}
}
