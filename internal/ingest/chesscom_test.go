package ingest

import "testing"

func TestParseArchivePath(t *testing.T) {
	year, month, err := parseArchivePath("https://api.chess.com/pub/player/hikaru/games/2024/03")
	if err != nil {
		t.Fatalf("parseArchivePath: %v", err)
	}
	if year != 2024 || month != 3 {
		t.Fatalf("got year=%d month=%d, want 2024/3", year, month)
	}
}

func TestParseArchivePathTrailingSlash(t *testing.T) {
	year, month, err := parseArchivePath("https://api.chess.com/pub/player/hikaru/games/2024/03/")
	if err != nil {
		t.Fatalf("parseArchivePath: %v", err)
	}
	if year != 2024 || month != 3 {
		t.Fatalf("got year=%d month=%d, want 2024/3", year, month)
	}
}

func TestParseArchivePathMalformed(t *testing.T) {
	if _, _, err := parseArchivePath("not-a-url"); err == nil {
		t.Fatal("expected error for malformed archive url")
	}
	if _, _, err := parseArchivePath("https://api.chess.com/pub/player/hikaru/games/abcd/03"); err == nil {
		t.Fatal("expected error for non-numeric year")
	}
}

func TestOpponentUsername(t *testing.T) {
	game := map[string]any{
		"white": map[string]any{"username": "Hikaru"},
		"black": map[string]any{"username": "MagnusCarlsen"},
	}
	if got := opponentUsername(game, "white"); got != "hikaru" {
		t.Errorf("opponentUsername(white) = %q, want hikaru", got)
	}
	if got := opponentUsername(game, "black"); got != "magnuscarlsen" {
		t.Errorf("opponentUsername(black) = %q, want magnuscarlsen", got)
	}
	if got := opponentUsername(game, "missing"); got != "" {
		t.Errorf("opponentUsername(missing) = %q, want empty", got)
	}
}

func TestArchiveMonthLimitTrailingSlice(t *testing.T) {
	archives := []string{
		"https://api.chess.com/pub/player/x/games/2023/01",
		"https://api.chess.com/pub/player/x/games/2023/02",
		"https://api.chess.com/pub/player/x/games/2023/03",
		"https://api.chess.com/pub/player/x/games/2023/04",
	}
	limit := 2
	total := len(archives)
	if total > limit {
		archives = archives[total-limit:]
	}
	if len(archives) != 2 {
		t.Fatalf("expected 2 archives after trailing-slice, got %d", len(archives))
	}
	if archives[0] != "https://api.chess.com/pub/player/x/games/2023/03" {
		t.Fatalf("expected trailing (most recent) months kept, got %v", archives)
	}
}
