package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/platform/lichess"
)

// UpsertLichessPlayer writes a Lichess profile, returning the local player
// id. Lichess's /api/user response nests bio/country under "profile".
func UpsertLichessPlayer(ctx context.Context, pool *pgxpool.Pool, user *lichess.User) (int64, error) {
	username := strings.ToLower(user.ID)
	if username == "" {
		return 0, fmt.Errorf("lichess profile missing id field")
	}

	var id int64
	row := pool.QueryRow(ctx, `
		INSERT INTO `+config.PlayersTable+` (
			platform, username, display_username, title, patron,
			tos_violation, disabled, verified,
			created_at, seen_at, play_time_total,
			url, bio, country, flair, updated_at
		) VALUES (
			'lichess', $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW()
		)
		ON CONFLICT (platform, username) DO UPDATE SET
			display_username = EXCLUDED.display_username,
			title = EXCLUDED.title,
			patron = EXCLUDED.patron,
			tos_violation = EXCLUDED.tos_violation,
			disabled = EXCLUDED.disabled,
			verified = EXCLUDED.verified,
			seen_at = EXCLUDED.seen_at,
			play_time_total = EXCLUDED.play_time_total,
			url = EXCLUDED.url,
			bio = COALESCE(EXCLUDED.bio, `+config.PlayersTable+`.bio),
			country = COALESCE(EXCLUDED.country, `+config.PlayersTable+`.country),
			flair = EXCLUDED.flair,
			updated_at = NOW()
		RETURNING id`,
		username, nilEmpty(user.Username), nilEmpty(user.Title), user.Patron,
		user.TOSViolation, user.Disabled, user.Verified,
		unixMillisPtr(user.CreatedAt), unixMillisPtr(user.SeenAt), nilZero(user.PlayTime.Total),
		nilEmpty(user.URL), nilEmpty(user.Profile.Bio), nilEmpty(user.Profile.Country), nilEmpty(user.Flair),
	)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert lichess player %s: %w", username, err)
	}
	return id, nil
}

// UpsertLichessPlayerStats fans a Lichess /api/user response's "perfs" map
// out to one row per rating performance (bullet, blitz, rapid, ...).
func UpsertLichessPlayerStats(ctx context.Context, pool *pgxpool.Pool, playerID int64, perfs map[string]json.RawMessage) error {
	for name, raw := range perfs {
		var perf lichess.Perf
		if err := json.Unmarshal(raw, &perf); err != nil {
			// Some perf entries (e.g. "storm") don't share this shape; skip rather
			// than fail the whole job over one unrelated key.
			continue
		}
		if perf.Rating == 0 {
			continue
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO `+config.PlayerStatsTable+` (
				player_id, platform, perf, rating, rd, prog, games, provisional, updated_at
			) VALUES ($1,'lichess',$2,$3,$4,$5,$6,$7,NOW())
			ON CONFLICT (player_id, platform, perf) DO UPDATE SET
				rating = EXCLUDED.rating,
				rd = EXCLUDED.rd,
				prog = EXCLUDED.prog,
				games = EXCLUDED.games,
				provisional = EXCLUDED.provisional,
				updated_at = NOW()`,
			playerID, name, perf.Rating, perf.RD, perf.Prog, perf.Games, perf.Provisional,
		)
		if err != nil {
			return fmt.Errorf("upsert lichess stats %s for player %d: %w", name, playerID, err)
		}
	}
	return nil
}

// UpsertLichessIngestionState advances the Lichess ingestion bookkeeping
// row. Lichess has no separate stats/archives cadence (one endpoint
// returns everything), so only the profile touch applies.
func UpsertLichessIngestionState(ctx context.Context, pool *pgxpool.Pool, playerID int64, refresh *config.Config, profileTouch bool, status, errMsg string) error {
	var lastProfile, nextProfile *time.Time
	if profileTouch {
		now := time.Now()
		lastProfile = &now
		next := now.Add(refresh.ProfileRefresh)
		nextProfile = &next
	}
	if status == "" {
		status = "idle"
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO `+config.PlayerIngestionStateTable+` (
			player_id, last_profile_fetch, next_profile_fetch, status, error, updated_at
		) VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (player_id) DO UPDATE SET
			last_profile_fetch = COALESCE(EXCLUDED.last_profile_fetch, `+config.PlayerIngestionStateTable+`.last_profile_fetch),
			next_profile_fetch = COALESCE(EXCLUDED.next_profile_fetch, `+config.PlayerIngestionStateTable+`.next_profile_fetch),
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			updated_at = NOW()`,
		playerID, lastProfile, nextProfile, status, nilEmpty(errMsg),
	)
	if err != nil {
		return fmt.Errorf("upsert lichess ingestion state for player %d: %w", playerID, err)
	}
	return nil
}

// LichessPlayerIDByUsername resolves a locally-known Lichess player id.
func LichessPlayerIDByUsername(ctx context.Context, pool *pgxpool.Pool, username string) (int64, bool, error) {
	var id int64
	err := pool.QueryRow(ctx, "player_id_by_username", config.PlatformLichess, strings.ToLower(username)).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("lookup lichess player id for %s: %w", username, err)
	}
	return id, true, nil
}

func unixMillisPtr(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
