// Package refresh runs periodic background tasks as Go tickers: re-enqueuing
// jobs for players whose refresh cadence has come due, and pruning old
// fetch_log rows. All scheduled work is driven from Go rather than pg_cron,
// since the worker is already a persistent, long-running process (required
// for LISTEN/NOTIFY).
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/jobqueue"
)

// Start launches the refresh-scan and fetch-log-cleanup tickers. Blocks
// until ctx is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, pool *pgxpool.Pool, jobs *jobqueue.Store, cfg *config.Config, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("refresh scheduler started",
		"scan_interval", cfg.RefreshScanInterval, "fetch_log_retention", cfg.FetchLogRetention)

	scanTicker := time.NewTicker(cfg.RefreshScanInterval)
	defer scanTicker.Stop()
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("refresh scheduler stopped")
			return
		case <-scanTicker.C:
			scanDueRefreshes(ctx, pool, jobs, cfg, log)
		case <-cleanupTicker.C:
			cleanupFetchLog(ctx, pool, cfg, log)
		}
	}
}

// scanDueRefreshes finds players whose next_profile_fetch, next_stats_fetch,
// or next_archives_scan has passed and re-enqueues the corresponding job,
// closing the loop on the refresh cadences recorded by
// store.UpsertIngestionState. Without this scan, a player's data would only
// ever be refreshed once, at seed time.
func scanDueRefreshes(ctx context.Context, pool *pgxpool.Pool, jobs *jobqueue.Store, cfg *config.Config, log *slog.Logger) {
	enqueueDue(ctx, pool, jobs, log, "next_profile_fetch", jobqueue.KindProfile, 1)
	enqueueDue(ctx, pool, jobs, log, "next_stats_fetch", jobqueue.KindStats, 2)

	// Archive rescans only apply to chess.com; Lichess players have no
	// next_archives_scan column populated (store.UpsertLichessIngestionState
	// never sets it), so the WHERE clause naturally excludes them.
	enqueueDue(ctx, pool, jobs, log, "next_archives_scan", jobqueue.KindArchives, 3)
}

func enqueueDue(ctx context.Context, pool *pgxpool.Pool, jobs *jobqueue.Store, log *slog.Logger, column string, kind jobqueue.Kind, priority int) {
	rows, err := pool.Query(ctx, `
		SELECT p.id, p.platform, p.username, pis.`+column+`
		FROM `+config.PlayerIngestionStateTable+` pis
		JOIN `+config.PlayersTable+` p ON p.id = pis.player_id
		WHERE pis.`+column+` IS NOT NULL AND pis.`+column+` <= NOW()
		LIMIT 500`)
	if err != nil {
		log.Error("refresh scan query failed", "column", column, "error", err)
		return
	}
	defer rows.Close()

	enqueued := 0
	for rows.Next() {
		var playerID int64
		var platform, username string
		var due time.Time
		if err := rows.Scan(&playerID, &platform, &username, &due); err != nil {
			log.Error("refresh scan row scan failed", "column", column, "error", err)
			continue
		}

		// The due time goes into the scope so each refresh cycle gets its own
		// dedupe key; reusing the key of an already-succeeded job would make
		// Enqueue a no-op. Repeated scans within one cycle still merge.
		scope := map[string]any{"username": username, "refresh_due": due.Unix()}
		if _, err := jobs.Enqueue(ctx, jobqueue.EnqueueParams{
			PlayerID: playerID, Platform: platform, Kind: kind, Scope: scope, Priority: priority,
		}); err != nil {
			log.Error("refresh scan enqueue failed", "player_id", playerID, "kind", kind, "error", err)
			continue
		}
		enqueued++
	}
	if err := rows.Err(); err != nil {
		log.Error("refresh scan iteration failed", "column", column, "error", err)
		return
	}
	if enqueued > 0 {
		log.Info("refresh scan enqueued due jobs", "kind", kind, "count", enqueued)
	}
}

// cleanupFetchLog purges fetch_log rows older than FetchLogRetention. The
// fetch log is an append-only forensic trail (internal/ingestlog) with no
// read path beyond recent debugging, so it grows unbounded without this.
func cleanupFetchLog(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) {
	if cfg.FetchLogRetention <= 0 {
		return
	}
	cutoff := time.Now().Add(-cfg.FetchLogRetention)
	tag, err := pool.Exec(ctx, `DELETE FROM `+config.FetchLogTable+` WHERE fetched_at < $1`, cutoff)
	if err != nil {
		log.Warn("fetch log cleanup failed", "error", err)
		return
	}
	if tag.RowsAffected() > 0 {
		log.Info("fetch log cleanup purged old rows", "count", tag.RowsAffected())
	}
}
