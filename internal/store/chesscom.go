// Package store implements the idempotent entity upsert layer: translating
// platform-adapter payloads into the relational schema via COALESCE-merge
// upserts, so a partial re-fetch does not clobber the fields upstream
// sometimes omits (named on each upsert) with a null. Every other column
// takes the incoming value, null included.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/platform/chesscom"
)

// UpsertPlayer writes a chess.com profile, returning the local player id.
// Fields chess.com sometimes omits on a given fetch (avatar, twitch_url,
// joined) are preserved via COALESCE against the existing row.
func UpsertPlayer(ctx context.Context, pool *pgxpool.Pool, profile *chesscom.Profile) (int64, error) {
	username := strings.ToLower(profile.Username)
	if username == "" || profile.PlayerID == 0 {
		return 0, fmt.Errorf("profile missing username or player_id")
	}

	countryCode := extractCountryCode(profile.Country)
	twitchURL := extractTwitchURL(profile.StreamingPlatforms)
	if twitchURL == "" {
		twitchURL = profile.TwitchURL
	}

	var id int64
	row := pool.QueryRow(ctx, `
		INSERT INTO `+config.PlayersTable+` (
			platform, chesscom_player_id, username, display_username, name, title,
			status, league, country_url, country_code, avatar, twitch_url,
			followers, joined, last_online, is_streamer, verified, created_at, updated_at
		) VALUES (
			'chesscom', $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW()
		)
		ON CONFLICT (platform, chesscom_player_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_username = COALESCE(EXCLUDED.display_username, `+config.PlayersTable+`.display_username),
			name = EXCLUDED.name,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			league = EXCLUDED.league,
			country_url = EXCLUDED.country_url,
			country_code = EXCLUDED.country_code,
			avatar = COALESCE(EXCLUDED.avatar, `+config.PlayersTable+`.avatar),
			twitch_url = COALESCE(EXCLUDED.twitch_url, `+config.PlayersTable+`.twitch_url),
			followers = EXCLUDED.followers,
			joined = COALESCE(EXCLUDED.joined, `+config.PlayersTable+`.joined),
			last_online = EXCLUDED.last_online,
			is_streamer = EXCLUDED.is_streamer,
			verified = EXCLUDED.verified,
			updated_at = NOW()
		RETURNING id`,
		profile.PlayerID, username, nilEmpty(profile.Username), nilEmpty(profile.Name),
		nilEmpty(profile.Title), nilEmpty(profile.Status), nilEmpty(profile.League),
		nilEmpty(profile.Country), nilEmpty(countryCode), nilEmpty(profile.Avatar),
		nilEmpty(twitchURL), profile.Followers, nilZero(profile.Joined),
		nilZero(profile.LastOnline), profile.IsStreamer, profile.Verified,
	)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert player %s: %w", username, err)
	}
	return id, nil
}

// IngestionStateTouch describes which refresh timestamps to advance on the
// player_ingestion_state row. Only touched fields are written; the rest are
// preserved via COALESCE.
type IngestionStateTouch struct {
	Profile, Stats, Archives bool
	Status                   string
	Error                    string
}

// UpsertIngestionState advances the chess.com ingestion bookkeeping row.
func UpsertIngestionState(ctx context.Context, pool *pgxpool.Pool, playerID int64, refresh *config.Config, touch IngestionStateTouch) error {
	now := time.Now()
	var lastProfile, nextProfile, lastStats, nextStats, lastArchives, nextArchives *time.Time
	if touch.Profile {
		lastProfile, nextProfile = &now, addPtr(now, refresh.ProfileRefresh)
	}
	if touch.Stats {
		lastStats, nextStats = &now, addPtr(now, refresh.StatsRefresh)
	}
	if touch.Archives {
		lastArchives, nextArchives = &now, addPtr(now, refresh.ArchivesRefresh)
	}

	status := touch.Status
	if status == "" {
		status = "idle"
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO `+config.PlayerIngestionStateTable+` (
			player_id, last_profile_fetch, next_profile_fetch,
			last_stats_fetch, next_stats_fetch,
			last_archives_scan, next_archives_scan, status, error, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (player_id) DO UPDATE SET
			last_profile_fetch = COALESCE(EXCLUDED.last_profile_fetch, `+config.PlayerIngestionStateTable+`.last_profile_fetch),
			next_profile_fetch = COALESCE(EXCLUDED.next_profile_fetch, `+config.PlayerIngestionStateTable+`.next_profile_fetch),
			last_stats_fetch = COALESCE(EXCLUDED.last_stats_fetch, `+config.PlayerIngestionStateTable+`.last_stats_fetch),
			next_stats_fetch = COALESCE(EXCLUDED.next_stats_fetch, `+config.PlayerIngestionStateTable+`.next_stats_fetch),
			last_archives_scan = COALESCE(EXCLUDED.last_archives_scan, `+config.PlayerIngestionStateTable+`.last_archives_scan),
			next_archives_scan = COALESCE(EXCLUDED.next_archives_scan, `+config.PlayerIngestionStateTable+`.next_archives_scan),
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			updated_at = NOW()`,
		playerID, lastProfile, nextProfile, lastStats, nextStats, lastArchives, nextArchives,
		status, nilEmpty(touch.Error),
	)
	if err != nil {
		return fmt.Errorf("upsert ingestion state for player %d: %w", playerID, err)
	}
	return nil
}

// UpsertPlayerStats fans a chess.com /stats payload out across
// player_stats (one row per rules/time_class pair), plus the tactics,
// lessons, and puzzle rush side tables when present.
func UpsertPlayerStats(ctx context.Context, pool *pgxpool.Pool, playerID int64, stats map[string]any) error {
	for key, raw := range stats {
		if !strings.HasPrefix(key, "chess") {
			continue
		}
		payload, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		parts := strings.Split(key, "_")
		timeClass := parts[len(parts)-1]
		rules := "chess"
		if strings.Contains(key, "960") {
			rules = "chess960"
		}

		last := asMap(payload["last"])
		best := asMap(payload["best"])
		record := asMap(payload["record"])

		_, err := pool.Exec(ctx, `
			INSERT INTO `+config.PlayerStatsTable+` (
				player_id, rules, time_class,
				last_rating, last_rating_date, last_rd,
				best_rating, best_date, best_game_url,
				record_win, record_loss, record_draw,
				time_per_move, timeout_percent, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
			ON CONFLICT (player_id, rules, time_class) DO UPDATE SET
				last_rating = EXCLUDED.last_rating,
				last_rating_date = EXCLUDED.last_rating_date,
				last_rd = EXCLUDED.last_rd,
				best_rating = EXCLUDED.best_rating,
				best_date = EXCLUDED.best_date,
				best_game_url = EXCLUDED.best_game_url,
				record_win = EXCLUDED.record_win,
				record_loss = EXCLUDED.record_loss,
				record_draw = EXCLUDED.record_draw,
				time_per_move = EXCLUDED.time_per_move,
				timeout_percent = EXCLUDED.timeout_percent,
				updated_at = NOW()`,
			playerID, rules, timeClass,
			asInt(last["rating"]), asInt(last["date"]), asInt(last["rd"]),
			asInt(best["rating"]), asInt(best["date"]), asString(best["game"]),
			asInt(record["win"]), asInt(record["loss"]), asInt(record["draw"]),
			asFloat(payload["time_per_move"]), asFloat(payload["timeout_percent"]),
		)
		if err != nil {
			return fmt.Errorf("upsert player_stats %s for player %d: %w", key, playerID, err)
		}
	}

	if tactics := asMap(stats["tactics"]); tactics != nil {
		highest, lowest := asMap(tactics["highest"]), asMap(tactics["lowest"])
		_, err := pool.Exec(ctx, `
			INSERT INTO `+config.PlayerTacticsStatsTable+` (
				player_id, highest_rating, highest_date, lowest_rating, lowest_date, updated_at
			) VALUES ($1,$2,$3,$4,$5,NOW())
			ON CONFLICT (player_id) DO UPDATE SET
				highest_rating = EXCLUDED.highest_rating,
				highest_date = EXCLUDED.highest_date,
				lowest_rating = EXCLUDED.lowest_rating,
				lowest_date = EXCLUDED.lowest_date,
				updated_at = NOW()`,
			playerID, asInt(highest["rating"]), asInt(highest["date"]),
			asInt(lowest["rating"]), asInt(lowest["date"]),
		)
		if err != nil {
			return fmt.Errorf("upsert tactics stats for player %d: %w", playerID, err)
		}
	}

	if lessons := asMap(stats["lessons"]); lessons != nil {
		highest, lowest := asMap(lessons["highest"]), asMap(lessons["lowest"])
		_, err := pool.Exec(ctx, `
			INSERT INTO `+config.PlayerLessonsStatsTable+` (
				player_id, highest_rating, highest_date, lowest_rating, lowest_date, updated_at
			) VALUES ($1,$2,$3,$4,$5,NOW())
			ON CONFLICT (player_id) DO UPDATE SET
				highest_rating = EXCLUDED.highest_rating,
				highest_date = EXCLUDED.highest_date,
				lowest_rating = EXCLUDED.lowest_rating,
				lowest_date = EXCLUDED.lowest_date,
				updated_at = NOW()`,
			playerID, asInt(highest["rating"]), asInt(highest["date"]),
			asInt(lowest["rating"]), asInt(lowest["date"]),
		)
		if err != nil {
			return fmt.Errorf("upsert lessons stats for player %d: %w", playerID, err)
		}
	}

	if puzzleRush := asMap(stats["puzzle_rush"]); puzzleRush != nil {
		best, daily := asMap(puzzleRush["best"]), asMap(puzzleRush["daily"])
		if best != nil {
			if _, err := pool.Exec(ctx, `
				INSERT INTO `+config.PlayerPuzzleRushBestTable+` (
					player_id, total_attempts, score, updated_at
				) VALUES ($1,$2,$3,NOW())
				ON CONFLICT (player_id) DO UPDATE SET
					total_attempts = EXCLUDED.total_attempts,
					score = EXCLUDED.score,
					updated_at = NOW()`,
				playerID, asInt(best["total_attempts"]), asInt(best["score"]),
			); err != nil {
				return fmt.Errorf("upsert puzzle rush best for player %d: %w", playerID, err)
			}
		}
		if daily != nil {
			if _, err := pool.Exec(ctx, `
				INSERT INTO `+config.PlayerPuzzleRushDailyTable+` (
					player_id, total_attempts, score, updated_at
				) VALUES ($1,$2,$3,NOW())
				ON CONFLICT (player_id) DO UPDATE SET
					total_attempts = EXCLUDED.total_attempts,
					score = EXCLUDED.score,
					updated_at = NOW()`,
				playerID, asInt(daily["total_attempts"]), asInt(daily["score"]),
			); err != nil {
				return fmt.Errorf("upsert puzzle rush daily for player %d: %w", playerID, err)
			}
		}
	}

	return nil
}

// UpsertMonthlyArchive records a monthly archive URL, resetting its retry
// state unless it has already succeeded. Returns the row id and whether
// the row was newly inserted — callers use the latter to decide whether a
// games job needs to be cascaded.
func UpsertMonthlyArchive(ctx context.Context, pool *pgxpool.Pool, playerID int64, year, month int, url string, priority int) (id int64, inserted bool, err error) {
	row := pool.QueryRow(ctx, `
		INSERT INTO `+config.MonthlyArchivesTable+` (
			player_id, year, month, url, created_at, updated_at, fetch_status, retry_count, priority
		) VALUES ($1,$2,$3,$4,NOW(),NOW(),'pending',0,$5)
		ON CONFLICT (player_id, year, month) DO UPDATE SET
			url = EXCLUDED.url,
			updated_at = NOW(),
			fetch_status = CASE
				WHEN `+config.MonthlyArchivesTable+`.fetch_status = 'succeeded' THEN `+config.MonthlyArchivesTable+`.fetch_status
				ELSE 'pending' END,
			retry_count = CASE
				WHEN `+config.MonthlyArchivesTable+`.fetch_status = 'succeeded' THEN `+config.MonthlyArchivesTable+`.retry_count
				ELSE 0 END,
			priority = LEAST(`+config.MonthlyArchivesTable+`.priority, EXCLUDED.priority)
		RETURNING id, (xmax = 0) AS inserted`,
		playerID, year, month, url, priority,
	)
	if err := row.Scan(&id, &inserted); err != nil {
		return 0, false, fmt.Errorf("upsert monthly archive %d/%d for player %d: %w", year, month, playerID, err)
	}
	return id, inserted, nil
}

// MarkArchiveSucceeded records that every game in a monthly archive has
// been stored, so a sticky 'succeeded' status survives future archive
// rescans of the same month.
func MarkArchiveSucceeded(ctx context.Context, pool *pgxpool.Pool, playerID int64, year, month int) error {
	now := time.Now()
	_, err := pool.Exec(ctx, `
		UPDATE `+config.MonthlyArchivesTable+`
		SET fetch_status = 'succeeded',
			last_fetch_attempt = $4,
			last_success_at = $4,
			retry_count = 0,
			next_retry_at = NULL
		WHERE player_id = $1 AND year = $2 AND month = $3`,
		playerID, year, month, now,
	)
	if err != nil {
		return fmt.Errorf("mark archive %d/%d succeeded for player %d: %w", year, month, playerID, err)
	}
	return nil
}

// ArchiveIDByMonth looks up a stored archive's row id.
func ArchiveIDByMonth(ctx context.Context, pool *pgxpool.Pool, playerID int64, year, month int) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, "archive_id_lookup", playerID, year, month).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("archive %d/%d for player %d not found locally", year, month, playerID)
		}
		return 0, fmt.Errorf("lookup archive %d/%d for player %d: %w", year, month, playerID, err)
	}
	return id, nil
}

// GamePayload is the normalized row shape for a single finished game.
type GamePayload struct {
	URL            string
	PGN            string
	TimeControl    string
	StartTime      int64
	EndTime        int64
	Rated          bool
	TimeClass      string
	Rules          string
	ECOURL         string
	ECOCode        string
	FEN            string
	InitialSetup   string
	TCN            string
	WhiteRating    int
	WhiteResult    string
	WhiteUUID      string
	BlackRating    int
	BlackResult    string
	BlackUUID      string
	WhiteAccuracy  float64
	BlackAccuracy  float64
	ArchiveID      int64
}

// GamePayloadFromRaw builds a GamePayload from one element of a chess.com
// archive's "games" array.
func GamePayloadFromRaw(game map[string]any, archiveID int64) GamePayload {
	ecoURL := asString(game["eco_url"])
	if ecoURL == "" {
		ecoURL = asString(game["eco"])
	}
	ecoCode := extractTrailingSegment(ecoURL)
	// An opening slug can end in its ECO code ("Caro-Kann-B10"); keep just
	// the code when the last hyphen-separated token has that shape.
	if i := strings.LastIndex(ecoCode, "-"); i >= 0 {
		if tail := ecoCode[i+1:]; len(tail) == 3 && tail[0] >= 'A' && tail[0] <= 'E' &&
			tail[1] >= '0' && tail[1] <= '9' && tail[2] >= '0' && tail[2] <= '9' {
			ecoCode = tail
		}
	}

	white := asMap(game["white"])
	black := asMap(game["black"])
	accuracies := asMap(game["accuracies"])

	return GamePayload{
		URL:           asString(game["url"]),
		PGN:           asString(game["pgn"]),
		TimeControl:   asString(game["time_control"]),
		StartTime:     int64(asInt(game["start_time"])),
		EndTime:       int64(asInt(game["end_time"])),
		Rated:         asBool(game["rated"]),
		TimeClass:     asString(game["time_class"]),
		Rules:         asString(game["rules"]),
		ECOURL:        ecoURL,
		ECOCode:       ecoCode,
		FEN:           asString(game["fen"]),
		InitialSetup:  asString(game["initial_setup"]),
		TCN:           asString(game["tcn"]),
		WhiteRating:   asInt(white["rating"]),
		WhiteResult:   asString(white["result"]),
		WhiteUUID:     asString(white["uuid"]),
		BlackRating:   asInt(black["rating"]),
		BlackResult:   asString(black["result"]),
		BlackUUID:     asString(black["uuid"]),
		WhiteAccuracy: asFloat(accuracies["white"]),
		BlackAccuracy: asFloat(accuracies["black"]),
		ArchiveID:     archiveID,
	}
}

// UpsertGame writes one finished game. whitePlayerID/blackPlayerID are nil
// when the opponent could not be resolved locally.
func UpsertGame(ctx context.Context, pool *pgxpool.Pool, payload GamePayload, whitePlayerID, blackPlayerID *int64) error {
	if payload.URL == "" {
		return nil
	}
	_, err := pool.Exec(ctx, `
		INSERT INTO `+config.GamesTable+` (
			url, pgn, time_control, start_time, end_time, rated, time_class, rules,
			eco_url, eco_code, fen, initial_setup, tcn,
			white_accuracy, black_accuracy,
			white_player_id, white_rating, white_result, white_uuid,
			black_player_id, black_rating, black_result, black_uuid,
			archive_id, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,NOW()
		)
		ON CONFLICT (url) DO UPDATE SET
			pgn = EXCLUDED.pgn,
			time_control = EXCLUDED.time_control,
			end_time = EXCLUDED.end_time,
			rated = EXCLUDED.rated,
			time_class = EXCLUDED.time_class,
			rules = EXCLUDED.rules,
			eco_url = EXCLUDED.eco_url,
			eco_code = EXCLUDED.eco_code,
			fen = EXCLUDED.fen,
			initial_setup = EXCLUDED.initial_setup,
			tcn = EXCLUDED.tcn,
			white_accuracy = EXCLUDED.white_accuracy,
			black_accuracy = EXCLUDED.black_accuracy,
			white_player_id = COALESCE(EXCLUDED.white_player_id, `+config.GamesTable+`.white_player_id),
			black_player_id = COALESCE(EXCLUDED.black_player_id, `+config.GamesTable+`.black_player_id),
			white_rating = EXCLUDED.white_rating,
			black_rating = EXCLUDED.black_rating,
			white_result = EXCLUDED.white_result,
			black_result = EXCLUDED.black_result,
			archive_id = EXCLUDED.archive_id`,
		payload.URL, nilEmpty(payload.PGN), nilEmpty(payload.TimeControl),
		payload.StartTime, payload.EndTime, payload.Rated, nilEmpty(payload.TimeClass),
		nilEmpty(payload.Rules), nilEmpty(payload.ECOURL), nilEmpty(payload.ECOCode),
		nilEmpty(payload.FEN), nilEmpty(payload.InitialSetup), nilEmpty(payload.TCN),
		payload.WhiteAccuracy, payload.BlackAccuracy,
		whitePlayerID, payload.WhiteRating, nilEmpty(payload.WhiteResult), nilEmpty(payload.WhiteUUID),
		blackPlayerID, payload.BlackRating, nilEmpty(payload.BlackResult), nilEmpty(payload.BlackUUID),
		payload.ArchiveID,
	)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", payload.URL, err)
	}
	return nil
}

// PlayerIDByUsername resolves a locally-known chess.com player id.
func PlayerIDByUsername(ctx context.Context, pool *pgxpool.Pool, username string) (int64, bool, error) {
	var id int64
	err := pool.QueryRow(ctx, "player_id_by_username", config.PlatformChesscom, strings.ToLower(username)).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("lookup player id for %s: %w", username, err)
	}
	return id, true, nil
}

// UsernameByPlayerID resolves a local player row's username.
func UsernameByPlayerID(ctx context.Context, pool *pgxpool.Pool, playerID int64) (string, error) {
	var username string
	err := pool.QueryRow(ctx, "username_by_player_id", playerID).Scan(&username)
	if err != nil {
		return "", fmt.Errorf("lookup username for player %d: %w", playerID, err)
	}
	return username, nil
}

func extractCountryCode(countryURL string) string {
	code := extractTrailingSegment(countryURL)
	return strings.ToUpper(code)
}

func extractTwitchURL(platforms []struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}) string {
	for _, p := range platforms {
		if strings.EqualFold(p.Platform, "twitch") {
			return p.URL
		}
	}
	return ""
}

func extractTrailingSegment(s string) string {
	if s == "" || !strings.Contains(s, "/") {
		return s
	}
	parts := strings.Split(strings.TrimRight(s, "/"), "/")
	return parts[len(parts)-1]
}

func addPtr(t time.Time, d time.Duration) *time.Time {
	v := t.Add(d)
	return &v
}
