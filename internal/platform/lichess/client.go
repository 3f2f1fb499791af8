// Package lichess implements the Lichess public API adapter. Lichess
// returns a player's profile and rating performances in a single response,
// unlike chess.com's separate profile/stats endpoints.
package lichess

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/albapepper/chess-ingest/internal/platform"
)

// Client fetches Lichess's public, unauthenticated API.
type Client struct {
	core    *platform.Client
	baseURL string
}

// New builds a Lichess client around the shared HTTP core.
func New(core *platform.Client, baseURL string) *Client {
	return &Client{core: core, baseURL: strings.TrimRight(baseURL, "/")}
}

// User is the raw /api/user/{username} response shape this adapter cares
// about. Perfs is left as a raw map since its keys vary by variant/speed
// (bullet, blitz, rapid, classical, chess960, ...).
type User struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Title     string         `json:"title"`
	Patron    bool           `json:"patron"`
	Verified  bool           `json:"verified"`
	Disabled  bool           `json:"disabled"`
	TOSViolation bool        `json:"tosViolation"`
	CreatedAt int64          `json:"createdAt"`
	SeenAt    int64          `json:"seenAt"`
	Flair     string         `json:"flair"`
	URL       string         `json:"url"`
	PlayTime  struct {
		Total int64 `json:"total"`
	} `json:"playTime"`
	Profile struct {
		Bio     string `json:"bio"`
		Country string `json:"country"`
	} `json:"profile"`
	Perfs map[string]json.RawMessage `json:"perfs"`
}

// Perf is one entry of User.Perfs, decoded on demand since not every key
// (e.g. "storm") shares this shape.
type Perf struct {
	Games      int     `json:"games"`
	Rating     int     `json:"rating"`
	RD         int     `json:"rd"`
	Prog       int     `json:"prog"`
	Provisional bool   `json:"prov"`
}

// FetchUser fetches /api/user/{username}, the combined profile+ratings call.
func (c *Client) FetchUser(ctx context.Context, username string) (*User, error) {
	url := fmt.Sprintf("%s/user/%s", c.baseURL, username)
	result, err := c.core.FetchJSON(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if result.StatusCode != 200 {
		return nil, &platform.UpstreamError{URL: url, Status: result.StatusCode}
	}

	var user User
	if err := json.Unmarshal(result.Body, &user); err != nil {
		return nil, &platform.DecodeError{URL: url, Err: err}
	}
	return &user, nil
}
