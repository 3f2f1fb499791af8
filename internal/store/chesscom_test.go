package store

import "testing"

func TestExtractCountryCode(t *testing.T) {
	cases := map[string]string{
		"https://api.chess.com/pub/country/US": "US",
		"https://api.chess.com/pub/country/NO": "NO",
		"":                                      "",
	}
	for in, want := range cases {
		if got := extractCountryCode(in); got != want {
			t.Errorf("extractCountryCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTrailingSegment(t *testing.T) {
	cases := map[string]string{
		"https://www.chess.com/openings/B20":  "B20",
		"https://www.chess.com/openings/B20/": "B20",
		"B20":                                  "B20",
		"":                                     "",
	}
	for in, want := range cases {
		if got := extractTrailingSegment(in); got != want {
			t.Errorf("extractTrailingSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTwitchURL(t *testing.T) {
	platforms := []struct {
		Platform string `json:"platform"`
		URL      string `json:"url"`
	}{
		{Platform: "YouTube", URL: "https://youtube.com/someone"},
		{Platform: "Twitch", URL: "https://twitch.tv/someone"},
	}
	if got := extractTwitchURL(platforms); got != "https://twitch.tv/someone" {
		t.Fatalf("extractTwitchURL = %q, want twitch url", got)
	}
	if got := extractTwitchURL(nil); got != "" {
		t.Fatalf("extractTwitchURL(nil) = %q, want empty", got)
	}
}

func TestGamePayloadFromRaw(t *testing.T) {
	game := map[string]any{
		"url":          "https://www.chess.com/game/live/123",
		"pgn":          "1. e4 e5",
		"time_control": "600",
		"start_time":   1700000000.0,
		"end_time":     1700000600.0,
		"rated":        true,
		"time_class":   "blitz",
		"rules":        "chess",
		"eco_url":      "https://www.chess.com/openings/Sicilian-Defense-B20",
		"fen":          "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"white": map[string]any{
			"rating": 2800.0,
			"result": "win",
			"uuid":   "white-uuid",
		},
		"black": map[string]any{
			"rating": 2750.0,
			"result": "checkmated",
			"uuid":   "black-uuid",
		},
		"accuracies": map[string]any{
			"white": 98.5,
			"black": 91.2,
		},
	}

	payload := GamePayloadFromRaw(game, 42)

	if payload.URL != "https://www.chess.com/game/live/123" {
		t.Errorf("URL = %q", payload.URL)
	}
	if payload.ECOCode != "B20" {
		t.Errorf("ECOCode = %q, want B20", payload.ECOCode)
	}
	if payload.StartTime != 1700000000 || payload.EndTime != 1700000600 {
		t.Errorf("start/end time = %d/%d", payload.StartTime, payload.EndTime)
	}
	if !payload.Rated {
		t.Errorf("Rated = false, want true")
	}
	if payload.WhiteRating != 2800 || payload.BlackRating != 2750 {
		t.Errorf("ratings = %d/%d", payload.WhiteRating, payload.BlackRating)
	}
	if payload.WhiteUUID != "white-uuid" || payload.BlackUUID != "black-uuid" {
		t.Errorf("uuids = %q/%q", payload.WhiteUUID, payload.BlackUUID)
	}
	if payload.WhiteAccuracy != 98.5 || payload.BlackAccuracy != 91.2 {
		t.Errorf("accuracies = %v/%v", payload.WhiteAccuracy, payload.BlackAccuracy)
	}
	if payload.ArchiveID != 42 {
		t.Errorf("ArchiveID = %d, want 42", payload.ArchiveID)
	}
}

func TestGamePayloadFromRawFallsBackToEco(t *testing.T) {
	game := map[string]any{
		"eco": "https://www.chess.com/openings/Caro-Kann-B10",
	}
	payload := GamePayloadFromRaw(game, 1)
	if payload.ECOCode != "B10" {
		t.Fatalf("ECOCode = %q, want B10", payload.ECOCode)
	}
}
