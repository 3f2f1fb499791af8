// Package ingest implements job processing: dispatching a claimed
// jobqueue.Job to the platform adapter and upsert-layer calls that fulfill
// it, then cascading any follow-up jobs the result implies.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/jobqueue"
	"github.com/albapepper/chess-ingest/internal/platform/chesscom"
	"github.com/albapepper/chess-ingest/internal/platform/lichess"
)

// Processor fulfills ingestion jobs against the chess.com and Lichess
// adapters, writing results through the entity upsert layer and cascading
// follow-up jobs through the job store.
type Processor struct {
	pool     *pgxpool.Pool
	jobs     *jobqueue.Store
	chesscom *chesscom.Client
	lichess  *lichess.Client
	cfg      *config.Config
	log      *slog.Logger
}

// NewProcessor builds a Processor wired to both platform adapters.
func NewProcessor(pool *pgxpool.Pool, jobs *jobqueue.Store, chesscomClient *chesscom.Client, lichessClient *lichess.Client, cfg *config.Config, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{pool: pool, jobs: jobs, chesscom: chesscomClient, lichess: lichessClient, cfg: cfg, log: log}
}

// Process fulfills one claimed job, dispatching on (platform, kind).
func (p *Processor) Process(ctx context.Context, job *jobqueue.Job) error {
	switch job.Platform {
	case config.PlatformChesscom:
		return p.processChesscom(ctx, job)
	case config.PlatformLichess:
		return p.processLichess(ctx, job)
	default:
		return fmt.Errorf("unsupported platform: %s", job.Platform)
	}
}

func (p *Processor) processChesscom(ctx context.Context, job *jobqueue.Job) error {
	switch job.Kind {
	case jobqueue.KindProfile:
		return p.processChesscomProfile(ctx, job)
	case jobqueue.KindStats:
		return p.processChesscomStats(ctx, job)
	case jobqueue.KindArchives:
		return p.processChesscomArchives(ctx, job)
	case jobqueue.KindGames:
		return p.processChesscomGames(ctx, job)
	default:
		return fmt.Errorf("unsupported chesscom job kind: %s", job.Kind)
	}
}

func (p *Processor) processLichess(ctx context.Context, job *jobqueue.Job) error {
	switch job.Kind {
	case jobqueue.KindProfile:
		return p.processLichessProfile(ctx, job)
	case jobqueue.KindStats:
		return p.processLichessStats(ctx, job)
	default:
		// archives/games are intentionally not cascaded for Lichess.
		return fmt.Errorf("unsupported lichess job kind: %s", job.Kind)
	}
}

// currentUsername resolves the username a job operates on, preferring the
// job's own scope and falling back to a lookup by player id.
func currentUsername(ctx context.Context, pool *pgxpool.Pool, job *jobqueue.Job, lookup func(context.Context, *pgxpool.Pool, int64) (string, error)) (string, error) {
	if u := strings.ToLower(job.Username()); u != "" {
		return u, nil
	}
	if job.PlayerID == 0 {
		return "", fmt.Errorf("job %d missing username and player id", job.ID)
	}
	return lookup(ctx, pool, job.PlayerID)
}
