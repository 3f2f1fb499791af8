// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers the statements the job store, upsert
// layer, and status API use. Prepared statements eliminate parse overhead on
// every claim cycle, which runs far more often than any other query here.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		"health_check": "SELECT 1",

		// Job store
		"claim_eligible_job": `
			SELECT id, player_id, platform, kind, scope, dedupe_key, status,
			       priority, attempts, max_attempts, available_at, locked_at,
			       completed_at, last_error
			FROM ` + config.IngestionJobsTable + `
			WHERE status = 'queued' AND available_at <= $1
			ORDER BY priority ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1`,
		"lock_job": `
			UPDATE ` + config.IngestionJobsTable + `
			SET status = 'locked', locked_at = $2, attempts = attempts + 1
			WHERE id = $1
			RETURNING id, player_id, platform, kind, scope, dedupe_key, status,
			          priority, attempts, max_attempts, available_at, locked_at,
			          completed_at, last_error`,
		"mark_job_success": `
			UPDATE ` + config.IngestionJobsTable + `
			SET status = 'succeeded', completed_at = $2
			WHERE id = $1`,
		"mark_job_failure": `
			UPDATE ` + config.IngestionJobsTable + `
			SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'queued' END,
			    available_at = CASE WHEN attempts >= max_attempts THEN available_at ELSE $2 END,
			    last_error = $3
			WHERE id = $1`,
		"sweep_stuck_jobs": `
			UPDATE ` + config.IngestionJobsTable + `
			SET status = 'queued'
			WHERE status = 'locked' AND locked_at < $1
			RETURNING id`,

		// Player lookups
		"player_id_by_username": `
			SELECT id FROM ` + config.PlayersTable + ` WHERE platform = $1 AND username = $2`,
		"username_by_player_id": `
			SELECT username FROM ` + config.PlayersTable + ` WHERE id = $1`,
		"archive_id_lookup": `
			SELECT id FROM ` + config.MonthlyArchivesTable + `
			WHERE player_id = $1 AND year = $2 AND month = $3`,

		// Status API (read-only, admin surface)
		"queue_depth_by_status": `
			SELECT status, COUNT(*) FROM ` + config.IngestionJobsTable + ` GROUP BY status`,
		"recent_failures": `
			SELECT id, platform, kind, last_error, attempts, available_at
			FROM ` + config.IngestionJobsTable + `
			WHERE status = 'failed'
			ORDER BY id DESC
			LIMIT $1`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
