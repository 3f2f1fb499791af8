package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
)

// ErrNoJobAvailable is returned by Claim when no queued job is eligible.
var ErrNoJobAvailable = errors.New("jobqueue: no job available")

// Store is the Postgres-backed job queue. It owns enqueue dedup, the
// FOR UPDATE SKIP LOCKED claim, and retry/backoff bookkeeping.
type Store struct {
	pool   *pgxpool.Pool
	policy BackoffPolicy
}

// BackoffPolicy computes the next available_at delay for a failed attempt:
// exponential growth from Base, doubling per attempt, capped at Max.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the backoff duration for the given attempt count (1-indexed).
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// NewStore builds a Store using the given backoff policy.
func NewStore(pool *pgxpool.Pool, policy BackoffPolicy) *Store {
	return &Store{pool: pool, policy: policy}
}

// EnqueueParams describes a job to enqueue. A zero MaxAttempts becomes 5;
// a zero Delay makes the job available immediately.
type EnqueueParams struct {
	PlayerID    int64
	Platform    string
	Kind        Kind
	Scope       map[string]any
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

// Enqueue inserts a job, or merges it into an existing row sharing the same
// dedupe key. Only succeeded and cancelled rows are terminal and left
// untouched; a failed row (attempts exhausted) is revived back to queued,
// giving it another run on the next seed or refresh cascade. Priority and
// timing fields merge via LEAST/GREATEST so a more urgent duplicate enqueue
// tightens an existing row instead of being dropped.
func (s *Store) Enqueue(ctx context.Context, p EnqueueParams) (int64, error) {
	dedupeKey, err := BuildDedupeKey(p.Kind, p.Platform, p.PlayerID, p.Scope)
	if err != nil {
		return 0, fmt.Errorf("build dedupe key: %w", err)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}

	scopeJSON, err := json.Marshal(p.Scope)
	if err != nil {
		return 0, fmt.Errorf("marshal scope: %w", err)
	}

	availableAt := time.Now().Add(p.Delay)

	const q = `
		INSERT INTO ` + config.IngestionJobsTable + `
			(player_id, platform, kind, scope, dedupe_key, status, priority,
			 attempts, max_attempts, available_at)
		VALUES ($1, $2, $3, $4, $5, 'queued', $6, 0, $7, $8)
		ON CONFLICT (dedupe_key) DO UPDATE SET
			status       = CASE WHEN ` + config.IngestionJobsTable + `.status = 'succeeded' THEN ` + config.IngestionJobsTable + `.status ELSE 'queued' END,
			priority     = LEAST(` + config.IngestionJobsTable + `.priority, EXCLUDED.priority),
			available_at = LEAST(` + config.IngestionJobsTable + `.available_at, EXCLUDED.available_at),
			max_attempts = GREATEST(` + config.IngestionJobsTable + `.max_attempts, EXCLUDED.max_attempts)
		WHERE ` + config.IngestionJobsTable + `.status NOT IN ('succeeded', 'cancelled')
		RETURNING id`

	var id int64
	row := s.pool.QueryRow(ctx, q, p.PlayerID, p.Platform, string(p.Kind), scopeJSON,
		dedupeKey, p.Priority, maxAttempts, availableAt)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row exists but is succeeded or cancelled; the WHERE guard
			// suppressed the update and RETURNING. Look up the existing id.
			var existingID int64
			lookupErr := s.pool.QueryRow(ctx,
				`SELECT id FROM `+config.IngestionJobsTable+` WHERE dedupe_key = $1`,
				dedupeKey).Scan(&existingID)
			if lookupErr != nil {
				return 0, fmt.Errorf("lookup terminal job: %w", lookupErr)
			}
			return existingID, nil
		}
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Claim leases the highest-priority eligible job with FOR UPDATE SKIP
// LOCKED so concurrent workers never contend for the same row, then marks
// it locked in the same transaction.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var job Job
	var scopeJSON []byte
	row := tx.QueryRow(ctx, "claim_eligible_job", time.Now())
	err = row.Scan(&job.ID, &job.PlayerID, &job.Platform, &job.Kind, &scopeJSON,
		&job.DedupeKey, &job.Status, &job.Priority, &job.Attempts, &job.MaxAttempts,
		&job.AvailableAt, &job.LockedAt, &job.CompletedAt, &job.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("claim eligible job: %w", err)
	}

	now := time.Now()
	row = tx.QueryRow(ctx, "lock_job", job.ID, now)
	err = row.Scan(&job.ID, &job.PlayerID, &job.Platform, &job.Kind, &scopeJSON,
		&job.DedupeKey, &job.Status, &job.Priority, &job.Attempts, &job.MaxAttempts,
		&job.AvailableAt, &job.LockedAt, &job.CompletedAt, &job.LastError)
	if err != nil {
		return nil, fmt.Errorf("lock job %d: %w", job.ID, err)
	}

	if err := json.Unmarshal(scopeJSON, &job.Scope); err != nil {
		return nil, fmt.Errorf("unmarshal scope for job %d: %w", job.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return &job, nil
}

// MarkSuccess records a job as succeeded.
func (s *Store) MarkSuccess(ctx context.Context, jobID int64) error {
	_, err := s.pool.Exec(ctx, "mark_job_success", jobID, time.Now())
	if err != nil {
		return fmt.Errorf("mark job %d succeeded: %w", jobID, err)
	}
	return nil
}

// MarkFailure records a failed attempt. If the job's attempt count has
// reached its max, the row becomes terminally 'failed'; otherwise it is
// requeued with the next backoff delay applied.
func (s *Store) MarkFailure(ctx context.Context, job *Job, cause error) error {
	delay := s.policy.Delay(job.Attempts)
	_, err := s.pool.Exec(ctx, "mark_job_failure", job.ID, time.Now().Add(delay), truncateError(cause))
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", job.ID, err)
	}
	return nil
}

// SweepStuckJobs returns locked jobs whose lock predates the stuck
// threshold to 'queued', recovering from a worker that crashed mid-job
// without ever reaching MarkSuccess/MarkFailure. There is no native lease
// expiry in this schema, so recovery is this explicit sweep.
func (s *Store) SweepStuckJobs(ctx context.Context, stuckThreshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-stuckThreshold)
	rows, err := s.pool.Query(ctx, "sweep_stuck_jobs", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stuck jobs: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("sweep stuck jobs: %w", err)
	}
	return count, nil
}

// QueueDepth returns the count of jobs per status, for the status API.
func (s *Store) QueueDepth(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, "queue_depth_by_status")
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	depth := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue depth row: %w", err)
		}
		depth[status] = n
	}
	return depth, rows.Err()
}
