package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/jobqueue"
	"github.com/albapepper/chess-ingest/internal/store"
)

// EnqueueSeedJobs enqueues the initial profile/stats/archives cascade for a
// chess.com username, staggered so the profile resolves the local player
// id before stats and archives need it.
func (p *Processor) EnqueueSeedJobs(ctx context.Context, username string) error {
	username = strings.ToLower(username)
	p.log.Info("enqueuing chesscom seed jobs", "username", username)

	scope := map[string]any{"username": username}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		Platform: config.PlatformChesscom, Kind: jobqueue.KindProfile, Scope: scope, Priority: 1,
	}); err != nil {
		return fmt.Errorf("enqueue chesscom profile job: %w", err)
	}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		Platform: config.PlatformChesscom, Kind: jobqueue.KindStats, Scope: scope, Priority: 2,
		Delay: p.cfg.BaseBackoff / 20, // ~15s at the default 300s base
	}); err != nil {
		return fmt.Errorf("enqueue chesscom stats job: %w", err)
	}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		Platform: config.PlatformChesscom, Kind: jobqueue.KindArchives, Scope: scope, Priority: 3,
		Delay: p.cfg.BaseBackoff / 10,
	}); err != nil {
		return fmt.Errorf("enqueue chesscom archives job: %w", err)
	}
	return nil
}

// ensurePlayer resolves a chess.com username to a local player id, lazily
// fetching and upserting the profile if the player has never been seen —
// the path taken when a username surfaces as a game opponent before any
// seed job for them has run.
func (p *Processor) ensurePlayer(ctx context.Context, username string) (int64, error) {
	username = strings.ToLower(username)
	if username == "" {
		return 0, fmt.Errorf("empty username")
	}
	if id, ok, err := store.PlayerIDByUsername(ctx, p.pool, username); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}

	p.log.Info("player missing locally; fetching profile lazily", "username", username)
	profile, err := p.chesscom.FetchProfile(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("lazily fetch profile for %s: %w", username, err)
	}
	id, err := store.UpsertPlayer(ctx, p.pool, profile)
	if err != nil {
		return 0, err
	}
	if err := store.UpsertIngestionState(ctx, p.pool, id, p.cfg, store.IngestionStateTouch{Status: "idle"}); err != nil {
		return 0, err
	}
	return id, nil
}

func (p *Processor) processChesscomProfile(ctx context.Context, job *jobqueue.Job) error {
	username, err := currentUsername(ctx, p.pool, job, store.UsernameByPlayerID)
	if err != nil {
		return err
	}

	p.log.Info("refreshing chesscom profile", "username", username)
	profile, err := p.chesscom.FetchProfile(ctx, username)
	if err != nil {
		return fmt.Errorf("fetch profile for %s: %w", username, err)
	}

	playerID, err := store.UpsertPlayer(ctx, p.pool, profile)
	if err != nil {
		return err
	}
	if err := store.UpsertIngestionState(ctx, p.pool, playerID, p.cfg, store.IngestionStateTouch{Profile: true, Status: "idle"}); err != nil {
		return err
	}

	scope := map[string]any{"username": username}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		PlayerID: playerID, Platform: config.PlatformChesscom, Kind: jobqueue.KindStats, Scope: scope, Priority: 2,
	}); err != nil {
		return fmt.Errorf("cascade stats job for %s: %w", username, err)
	}
	if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
		PlayerID: playerID, Platform: config.PlatformChesscom, Kind: jobqueue.KindArchives, Scope: scope, Priority: 3,
	}); err != nil {
		return fmt.Errorf("cascade archives job for %s: %w", username, err)
	}
	return nil
}

func (p *Processor) processChesscomStats(ctx context.Context, job *jobqueue.Job) error {
	username, err := currentUsername(ctx, p.pool, job, store.UsernameByPlayerID)
	if err != nil {
		return err
	}

	p.log.Info("refreshing chesscom stats", "username", username)
	stats, err := p.chesscom.FetchStats(ctx, username)
	if err != nil {
		return fmt.Errorf("fetch stats for %s: %w", username, err)
	}

	playerID := job.PlayerID
	if playerID == 0 {
		playerID, err = p.ensurePlayer(ctx, username)
		if err != nil {
			return err
		}
	}

	if err := store.UpsertPlayerStats(ctx, p.pool, playerID, stats); err != nil {
		return err
	}
	return store.UpsertIngestionState(ctx, p.pool, playerID, p.cfg, store.IngestionStateTouch{Stats: true, Status: "idle"})
}

func (p *Processor) processChesscomArchives(ctx context.Context, job *jobqueue.Job) error {
	username, err := currentUsername(ctx, p.pool, job, store.UsernameByPlayerID)
	if err != nil {
		return err
	}

	p.log.Info("refreshing chesscom archives", "username", username)
	archives, err := p.chesscom.FetchArchives(ctx, username)
	if err != nil {
		return fmt.Errorf("fetch archives for %s: %w", username, err)
	}

	total := len(archives)
	if limit := p.cfg.ArchiveMonthLimit; limit > 0 && total > limit {
		// Keep the trailing N (most recent), not the leading N.
		archives = archives[total-limit:]
		p.log.Info("limiting archive scan to most recent months",
			"username", username, "limit", limit, "available", total)
	}

	playerID := job.PlayerID
	if playerID == 0 {
		playerID, err = p.ensurePlayer(ctx, username)
		if err != nil {
			return err
		}
	}

	newJobs := 0
	for _, archiveURL := range archives {
		year, month, err := parseArchivePath(archiveURL)
		if err != nil {
			p.log.Warn("could not parse archive path", "url", archiveURL, "error", err)
			continue
		}

		_, inserted, err := store.UpsertMonthlyArchive(ctx, p.pool, playerID, year, month, archiveURL, p.cfg.ArchiveJobPriority)
		if err != nil {
			return err
		}
		if inserted {
			scope := map[string]any{
				"username":    username,
				"archive_url": archiveURL,
				"year":        year,
				"month":       month,
			}
			if _, err := p.jobs.Enqueue(ctx, jobqueue.EnqueueParams{
				PlayerID: playerID, Platform: config.PlatformChesscom, Kind: jobqueue.KindGames,
				Scope: scope, Priority: p.cfg.ArchiveJobPriority,
			}); err != nil {
				return fmt.Errorf("cascade games job for %s %d/%d: %w", username, year, month, err)
			}
			newJobs++
		}
	}

	p.log.Info("archive refresh complete", "username", username, "new_jobs", newJobs)
	return store.UpsertIngestionState(ctx, p.pool, playerID, p.cfg, store.IngestionStateTouch{Archives: true, Status: "idle"})
}

func (p *Processor) processChesscomGames(ctx context.Context, job *jobqueue.Job) error {
	username, err := currentUsername(ctx, p.pool, job, store.UsernameByPlayerID)
	if err != nil {
		return err
	}

	archiveURL, _ := job.Scope["archive_url"].(string)
	yearF, _ := job.Scope["year"].(float64)
	monthF, _ := job.Scope["month"].(float64)
	if archiveURL == "" || yearF == 0 || monthF == 0 {
		return fmt.Errorf("games job %d missing archive scope", job.ID)
	}
	year, month := int(yearF), int(monthF)

	p.log.Info("fetching chesscom games", "username", username, "year", year, "month", month)
	data, err := p.chesscom.FetchArchiveGames(ctx, archiveURL)
	if err != nil {
		return fmt.Errorf("fetch archive games %s: %w", archiveURL, err)
	}

	playerID := job.PlayerID
	if playerID == 0 {
		playerID, err = p.ensurePlayer(ctx, username)
		if err != nil {
			return err
		}
	}

	archiveID, err := store.ArchiveIDByMonth(ctx, p.pool, playerID, year, month)
	if err != nil {
		return err
	}

	rawGames, _ := data["games"].([]any)
	created := 0
	for _, rawGame := range rawGames {
		game, ok := rawGame.(map[string]any)
		if !ok {
			continue
		}

		var whiteID, blackID *int64
		if whiteUsername := opponentUsername(game, "white"); whiteUsername != "" {
			id, err := p.ensurePlayer(ctx, whiteUsername)
			if err != nil {
				p.log.Warn("could not resolve white opponent", "username", whiteUsername, "error", err)
			} else {
				whiteID = &id
			}
		}
		if blackUsername := opponentUsername(game, "black"); blackUsername != "" {
			id, err := p.ensurePlayer(ctx, blackUsername)
			if err != nil {
				p.log.Warn("could not resolve black opponent", "username", blackUsername, "error", err)
			} else {
				blackID = &id
			}
		}

		payload := store.GamePayloadFromRaw(game, archiveID)
		if err := store.UpsertGame(ctx, p.pool, payload, whiteID, blackID); err != nil {
			return err
		}
		created++
	}

	p.log.Info("stored chesscom games", "username", username, "year", year, "month", month, "count", created)
	return store.MarkArchiveSucceeded(ctx, p.pool, playerID, year, month)
}

func opponentUsername(game map[string]any, side string) string {
	side0, ok := game[side].(map[string]any)
	if !ok {
		return ""
	}
	u, _ := side0["username"].(string)
	return strings.ToLower(u)
}

func parseArchivePath(archiveURL string) (year, month int, err error) {
	cleaned := strings.TrimRight(archiveURL, "/")
	parts := strings.Split(cleaned, "/")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed archive url: %s", archiveURL)
	}
	year, err = strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, 0, fmt.Errorf("parse year from %s: %w", archiveURL, err)
	}
	month, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse month from %s: %w", archiveURL, err)
	}
	return year, month, nil
}
