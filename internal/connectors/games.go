package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
)

// GamesProvider fetches raw game metrics (trivia sessions, diabetes
// game play data) from the gamified-health platform.
type GamesProvider struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewGamesProvider creates a provider client with a bounded HTTP
// timeout.
func NewGamesProvider(baseURL string) *GamesProvider {
	return &GamesProvider{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchTrivia returns the player's raw trivia metrics: answered and
// correct counts plus per-session engagement entries.
func (p *GamesProvider) FetchTrivia(ctx context.Context, playerID, token string) (map[string]any, error) {
	return p.getJSON(ctx, fmt.Sprintf("%s/v2/players/%s/games/trivia", p.BaseURL, url.PathEscape(playerID)), token)
}

// FetchSugarVita returns the player's raw diabetes-game metrics:
// sessions, play minutes and per-player-type accumulators.
func (p *GamesProvider) FetchSugarVita(ctx context.Context, playerID, token string) (map[string]any, error) {
	return p.getJSON(ctx, fmt.Sprintf("%s/v2/players/%s/games/sugarvita", p.BaseURL, url.PathEscape(playerID)), token)
}

func (p *GamesProvider) getJSON(ctx context.Context, endpoint, token string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("connectors: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gateerr.New(gateerr.CodeTimeout, "games provider timed out")
		}
		return nil, gateerr.New(gateerr.CodeUpstream, "games provider unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, gateerr.New(gateerr.CodeUpstream, "games provider read: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, gateerr.New(gateerr.CodeUpstream,
			"games provider returned %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, gateerr.New(gateerr.CodeUpstream, "games provider returned malformed payload")
	}
	return payload, nil
}
