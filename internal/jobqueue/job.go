// Package jobqueue implements the Postgres-backed ingestion job queue:
// dedup'd enqueue, priority-ordered leased claims via row locking, and
// retry/backoff bookkeeping. It has no knowledge of chess.com or Lichess
// wire formats — internal/ingest owns that translation.
package jobqueue

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Kind identifies what a job does once claimed.
type Kind string

const (
	KindProfile  Kind = "profile"
	KindStats    Kind = "stats"
	KindArchives Kind = "archives"
	KindGames    Kind = "games"
)

// Status is the lifecycle state of a job row.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusLocked    Status = "locked"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is the canonical in-memory representation of an ingestion_jobs row.
type Job struct {
	ID          int64
	PlayerID    int64
	Platform    string
	Kind        Kind
	Scope       map[string]any
	DedupeKey   string
	Status      Status
	Priority    int
	Attempts    int
	MaxAttempts int
	AvailableAt time.Time
	LockedAt    *time.Time
	CompletedAt *time.Time
	LastError   string
}

// Username returns the scope's username field, the one value every job
// kind carries regardless of platform.
func (j *Job) Username() string {
	if j.Scope == nil {
		return ""
	}
	if v, ok := j.Scope["username"].(string); ok {
		return v
	}
	return ""
}

// BuildDedupeKey hashes (kind, platform, player_id, scope) into a stable
// hex digest used as the ON CONFLICT target for enqueue. The platform field
// keeps chess.com and Lichess jobs for the same username from colliding.
func BuildDedupeKey(kind Kind, platform string, playerID int64, scope map[string]any) (string, error) {
	normalized, err := canonicalJSON(scope)
	if err != nil {
		return "", fmt.Errorf("canonicalize scope: %w", err)
	}

	h := sha1.New()
	fmt.Fprintf(h, "%s:%s:%d:%s", kind, platform, playerID, normalized)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON produces a deterministic JSON encoding of a map by sorting
// keys, so the same logical scope always hashes to the same dedupe key.
func canonicalJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 128)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		vb, err := json.Marshal(m[k])
		if err != nil {
			return "", err
		}
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return string(ordered), nil
}

// truncateError caps a stored error message at 500 characters so a long
// stack trace or response body never bloats the jobs table.
func truncateError(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
