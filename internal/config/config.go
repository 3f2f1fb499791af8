// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/ingest and cmd/ingestapi.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Platform registry
// --------------------------------------------------------------------------

const (
	PlatformChesscom = "chesscom"
	PlatformLichess  = "lichess"
)

type PlatformConfig struct {
	ID        string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// --------------------------------------------------------------------------
// Table names — single source of truth, matches schema.sql
// --------------------------------------------------------------------------

const (
	PlayersTable              = "players"
	PlayerIngestionStateTable = "player_ingestion_state"
	PlayerStatsTable          = "player_stats"
	PlayerTacticsStatsTable   = "player_tactics_stats"
	PlayerLessonsStatsTable   = "player_lessons_stats"
	PlayerPuzzleRushBestTable = "player_puzzle_rush_best"
	PlayerPuzzleRushDailyTable = "player_puzzle_rush_daily"
	MonthlyArchivesTable      = "monthly_archives"
	GamesTable                = "games"
	IngestionJobsTable        = "ingestion_jobs"
	FetchLogTable             = "fetch_log"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Admin/status API
	APIHost string
	APIPort int

	Environment string // development, staging, production
	Debug       bool

	CORSAllowOrigins []string

	// Platforms
	Chesscom PlatformConfig
	Lichess  PlatformConfig

	// Refresh cadences (seconds, as durations)
	ProfileRefresh  time.Duration
	StatsRefresh    time.Duration
	ArchivesRefresh time.Duration

	// Archive enumeration
	ArchiveMonthLimit  int // 0 = unlimited
	ArchiveJobPriority int

	// Worker loop
	PollInterval time.Duration

	// Job defaults
	DefaultMaxAttempts int
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration

	// Lock sweeper
	SweepInterval  time.Duration
	StuckThreshold time.Duration

	// Refresh scheduler: periodically re-enqueues jobs for players whose
	// next_*_fetch timestamp has passed, and prunes old fetch_log rows.
	RefreshScanInterval time.Duration
	FetchLogRetention   time.Duration

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),

		Chesscom: PlatformConfig{
			ID:        PlatformChesscom,
			BaseURL:   envOr("CHESS_API_BASE_URL", "https://api.chess.com/pub"),
			UserAgent: envOr("CHESS_API_USER_AGENT", "ChessIngest/1.0 (contact@example.com)"),
			Timeout:   time.Duration(envInt("CHESS_API_TIMEOUT", 15)) * time.Second,
		},
		Lichess: PlatformConfig{
			ID:        PlatformLichess,
			BaseURL:   envOr("LICHESS_API_BASE_URL", "https://lichess.org/api"),
			UserAgent: envOr("LICHESS_API_USER_AGENT", "ChessIngest/1.0 (contact@example.com)"),
			Timeout:   time.Duration(envInt("LICHESS_API_TIMEOUT", 15)) * time.Second,
		},

		ProfileRefresh:  time.Duration(envInt("PROFILE_REFRESH_SECONDS", 6*3600)) * time.Second,
		StatsRefresh:    time.Duration(envInt("STATS_REFRESH_SECONDS", 2*3600)) * time.Second,
		ArchivesRefresh: time.Duration(envInt("ARCHIVE_REFRESH_SECONDS", 12*3600)) * time.Second,

		ArchiveMonthLimit:  envInt("ARCHIVE_MONTH_LIMIT", 0),
		ArchiveJobPriority: envInt("ARCHIVE_JOB_PRIORITY", 5),

		PollInterval: time.Duration(envInt("INGESTION_POLL_SECONDS", 5)) * time.Second,

		DefaultMaxAttempts: envInt("JOB_MAX_ATTEMPTS", 5),
		BaseBackoff:        time.Duration(envInt("JOB_BASE_BACKOFF_SECONDS", 300)) * time.Second,
		MaxBackoff:         time.Duration(envInt("JOB_MAX_BACKOFF_SECONDS", 3600)) * time.Second,

		SweepInterval:  time.Duration(envInt("LOCK_SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		StuckThreshold: time.Duration(envInt("LOCK_STUCK_THRESHOLD_SECONDS", 1800)) * time.Second,

		RefreshScanInterval: time.Duration(envInt("REFRESH_SCAN_INTERVAL_SECONDS", 300)) * time.Second,
		FetchLogRetention:   time.Duration(envInt("FETCH_LOG_RETENTION_DAYS", 30)) * 24 * time.Hour,

		LogLevel: envOr("LOG_LEVEL", "INFO"),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
