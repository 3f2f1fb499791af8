package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/jobqueue"
	"github.com/albapepper/chess-ingest/internal/store"
)

// EnqueueLichessSeedJobs enqueues the profile/stats pair for a Lichess
// username. Unlike chess.com, Lichess has no archives cascade: the
// `games` kind is never enqueued for this platform — full NDJSON
// game-stream ingestion is out of scope.
func (p *Processor) EnqueueLichessSeedJobs(ctx context.Context, username string) error {
	username = strings.ToLower(username)
	p.log.Info("enqueuing lichess seed jobs", "username", username)

	scope := map[string]any{"username": username}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		Platform: config.PlatformLichess, Kind: jobqueue.KindProfile, Scope: scope, Priority: 1,
	}); err != nil {
		return fmt.Errorf("enqueue lichess profile job: %w", err)
	}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		Platform: config.PlatformLichess, Kind: jobqueue.KindStats, Scope: scope, Priority: 2,
		Delay: p.cfg.BaseBackoff / 20,
	}); err != nil {
		return fmt.Errorf("enqueue lichess stats job: %w", err)
	}
	return nil
}

func (p *Processor) processLichessProfile(ctx context.Context, job *jobqueue.Job) error {
	username, err := currentUsername(ctx, p.pool, job, store.UsernameByPlayerID)
	if err != nil {
		return err
	}

	p.log.Info("refreshing lichess profile", "username", username)
	user, err := p.lichess.FetchUser(ctx, username)
	if err != nil {
		return fmt.Errorf("fetch lichess user %s: %w", username, err)
	}

	playerID, err := store.UpsertLichessPlayer(ctx, p.pool, user)
	if err != nil {
		return err
	}
	if err := store.UpsertLichessIngestionState(ctx, p.pool, playerID, p.cfg, true, "idle", ""); err != nil {
		return err
	}

	scope := map[string]any{"username": username}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		PlayerID: playerID, Platform: config.PlatformLichess, Kind: jobqueue.KindStats, Scope: scope, Priority: 2,
	}); err != nil {
		return fmt.Errorf("cascade lichess stats job for %s: %w", username, err)
	}
	return nil
}

func (p *Processor) processLichessStats(ctx context.Context, job *jobqueue.Job) error {
	username, err := currentUsername(ctx, p.pool, job, store.UsernameByPlayerID)
	if err != nil {
		return err
	}

	p.log.Info("refreshing lichess stats", "username", username)
	user, err := p.lichess.FetchUser(ctx, username)
	if err != nil {
		return fmt.Errorf("fetch lichess user %s: %w", username, err)
	}

	playerID := job.PlayerID
	if playerID == 0 {
		var ok bool
		playerID, ok, err = store.LichessPlayerIDByUsername(ctx, p.pool, username)
		if err != nil {
			return err
		}
		if !ok {
			playerID, err = store.UpsertLichessPlayer(ctx, p.pool, user)
			if err != nil {
				return err
			}
		}
	}

	if err := store.UpsertLichessPlayerStats(ctx, p.pool, playerID, user.Perfs); err != nil {
		return err
	}
	return store.UpsertLichessIngestionState(ctx, p.pool, playerID, p.cfg, false, "idle", "")
}
