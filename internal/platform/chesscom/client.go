// Package chesscom implements the chess.com public API adapter:
// profile, stats, monthly archive listing, and per-archive game payloads.
package chesscom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/albapepper/chess-ingest/internal/platform"
)

// Client fetches chess.com's public, unauthenticated API.
type Client struct {
	core    *platform.Client
	baseURL string
}

// New builds a chess.com client around the shared HTTP core.
func New(core *platform.Client, baseURL string) *Client {
	return &Client{core: core, baseURL: strings.TrimRight(baseURL, "/")}
}

// Profile is the raw /player/{username} response shape this adapter cares
// about. Unknown fields are ignored rather than rejected — chess.com adds
// fields over time and the upsert layer only reads what it needs.
type Profile struct {
	PlayerID           int64  `json:"player_id"`
	Username           string `json:"username"`
	Name               string `json:"name"`
	Title              string `json:"title"`
	Status             string `json:"status"`
	League             string `json:"league"`
	Country            string `json:"country"`
	Avatar             string `json:"avatar"`
	Followers          int    `json:"followers"`
	Joined             int64  `json:"joined"`
	LastOnline         int64  `json:"last_online"`
	IsStreamer         bool   `json:"is_streamer"`
	Verified           bool   `json:"verified"`
	TwitchURL          string `json:"twitch_url"`
	StreamingPlatforms []struct {
		Platform string `json:"platform"`
		URL      string `json:"url"`
	} `json:"streaming_platforms"`
}

type archivesResponse struct {
	Archives []string `json:"archives"`
}

// FetchProfile fetches /player/{username}.
func (c *Client) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	url := fmt.Sprintf("%s/player/%s", c.baseURL, username)
	result, err := c.core.FetchJSON(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if result.StatusCode != 200 {
		return nil, &platform.UpstreamError{URL: url, Status: result.StatusCode}
	}

	var profile Profile
	if err := json.Unmarshal(result.Body, &profile); err != nil {
		return nil, &platform.DecodeError{URL: url, Err: err}
	}
	return &profile, nil
}

// FetchStats fetches /player/{username}/stats and returns it as a raw map,
// since its keys are dynamic (chess_blitz, chess_rapid, chess960_daily, ...)
// and best parsed by the upsert layer rather than a fixed struct.
func (c *Client) FetchStats(ctx context.Context, username string) (map[string]any, error) {
	url := fmt.Sprintf("%s/player/%s/stats", c.baseURL, username)
	result, err := c.core.FetchJSON(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if result.StatusCode != 200 {
		return nil, &platform.UpstreamError{URL: url, Status: result.StatusCode}
	}

	var stats map[string]any
	if err := json.Unmarshal(result.Body, &stats); err != nil {
		return nil, &platform.DecodeError{URL: url, Err: err}
	}
	return stats, nil
}

// FetchArchives fetches /player/{username}/games/archives and returns the
// list of monthly archive URLs in chronological order.
func (c *Client) FetchArchives(ctx context.Context, username string) ([]string, error) {
	url := fmt.Sprintf("%s/player/%s/games/archives", c.baseURL, username)
	result, err := c.core.FetchJSON(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if result.StatusCode != 200 {
		return nil, &platform.UpstreamError{URL: url, Status: result.StatusCode}
	}

	var archives archivesResponse
	if err := json.Unmarshal(result.Body, &archives); err != nil {
		return nil, &platform.DecodeError{URL: url, Err: err}
	}
	return archives.Archives, nil
}

// FetchArchiveGames fetches a single monthly archive URL and returns the
// raw games payload, each element parsed as a map by the upsert layer.
func (c *Client) FetchArchiveGames(ctx context.Context, archiveURL string) (map[string]any, error) {
	result, err := c.core.FetchJSON(ctx, archiveURL, nil)
	if err != nil {
		return nil, err
	}
	if result.StatusCode != 200 {
		return nil, &platform.UpstreamError{URL: archiveURL, Status: result.StatusCode}
	}

	var data map[string]any
	if err := json.Unmarshal(result.Body, &data); err != nil {
		return nil, &platform.DecodeError{URL: archiveURL, Err: err}
	}
	return data, nil
}
