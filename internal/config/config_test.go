package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/chess_ingest")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 8000 {
		t.Errorf("APIPort = %d, want 8000", cfg.APIPort)
	}
	if cfg.BaseBackoff != 300*time.Second {
		t.Errorf("BaseBackoff = %v, want 300s", cfg.BaseBackoff)
	}
	if cfg.MaxBackoff != time.Hour {
		t.Errorf("MaxBackoff = %v, want 1h", cfg.MaxBackoff)
	}
	if cfg.Chesscom.BaseURL != "https://api.chess.com/pub" {
		t.Errorf("Chesscom.BaseURL = %q", cfg.Chesscom.BaseURL)
	}
	if cfg.Lichess.BaseURL != "https://lichess.org/api" {
		t.Errorf("Lichess.BaseURL = %q", cfg.Lichess.BaseURL)
	}
	if cfg.ArchiveMonthLimit != 0 {
		t.Errorf("ArchiveMonthLimit = %d, want 0 (unlimited)", cfg.ArchiveMonthLimit)
	}
}

func TestLoadPortFallsBackToPortEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/chess_ingest")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090 (from PORT)", cfg.APIPort)
	}
}

func TestLoadAPIPortTakesPrecedenceOverPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/chess_ingest")
	t.Setenv("PORT", "9090")
	t.Setenv("API_PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 9191 {
		t.Errorf("APIPort = %d, want 9191 (API_PORT wins over PORT)", cfg.APIPort)
	}
}

func TestIsProduction(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/chess_ingest")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected IsProduction() = true for ENVIRONMENT=production")
	}
}

func TestEnvListParsesAndTrims(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/chess_ingest")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example.com, https://b.example.com ,https://c.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	if len(cfg.CORSAllowOrigins) != len(want) {
		t.Fatalf("CORSAllowOrigins = %v, want %v", cfg.CORSAllowOrigins, want)
	}
	for i, v := range want {
		if cfg.CORSAllowOrigins[i] != v {
			t.Errorf("CORSAllowOrigins[%d] = %q, want %q", i, cfg.CORSAllowOrigins[i], v)
		}
	}
}
