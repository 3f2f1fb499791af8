// Package ingestlog appends one row per outbound HTTP call to the fetch
// log table — an append-only forensic trail, no read path, no COALESCE.
package ingestlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/platform"
)

// Sink appends fetch log rows to Postgres.
type Sink struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewSink builds a Sink backed by the given pool.
func NewSink(pool *pgxpool.Pool, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{pool: pool, log: log}
}

// Log satisfies platform.FetchLogFunc. A failure to record the row is
// logged and swallowed rather than propagated — a fetch log outage must
// never block the ingestion that triggered it.
func (s *Sink) Log(ctx context.Context, url string, statusCode int, etag, lastModified string, fetchErr error) {
	var errText *string
	if fetchErr != nil {
		s := fetchErr.Error()
		if len(s) > 500 {
			s = s[:500]
		}
		errText = &s
	}

	const q = `
		INSERT INTO ` + config.FetchLogTable + `
			(url, status_code, etag, last_modified, error, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var statusPtr *int
	if statusCode != 0 {
		statusPtr = &statusCode
	}

	_, execErr := s.pool.Exec(ctx, q, url, statusPtr, nullIfEmpty(etag), nullIfEmpty(lastModified), errText, time.Now())
	if execErr != nil {
		s.log.Warn("failed to record fetch log row", "url", url, "error", execErr)
	}
}

// Func returns a platform.FetchLogFunc bound to this sink.
func (s *Sink) Func() platform.FetchLogFunc {
	return s.Log
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
