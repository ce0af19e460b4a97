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
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/vault"
)

// WalkProvider fetches day-level activity from a wearable-style
// provider's REST API and normalizes it into walk records.
type WalkProvider struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewWalkProvider creates a provider client with a bounded HTTP
// timeout.
func NewWalkProvider(baseURL string) *WalkProvider {
	return &WalkProvider{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// walkDay is the provider's wire shape for one day of activity.
type walkDay struct {
	Date           string   `json:"date"`
	Steps          int      `json:"steps"`
	DistanceMeters *float64 `json:"distance_meters"`
	DurationMin    *float64 `json:"duration_min"`
	Kcalories      *float64 `json:"kcalories"`
}

// FetchDays returns the player's walk days in the inclusive window.
func (p *WalkProvider) FetchDays(ctx context.Context, playerID, token, from, to string) ([]vault.WalkRecord, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	endpoint := fmt.Sprintf("%s/v2/players/%s/activities/walk", p.BaseURL, url.PathEscape(playerID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	body, err := p.get(ctx, endpoint, token)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Days []walkDay `json:"days"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, gateerr.New(gateerr.CodeUpstream, "walk provider returned malformed payload")
	}

	records := make([]vault.WalkRecord, 0, len(payload.Days))
	for _, d := range payload.Days {
		records = append(records, vault.WalkRecord{
			Date:           d.Date,
			Steps:          d.Steps,
			DistanceMeters: d.DistanceMeters,
			DurationMin:    d.DurationMin,
			Kcalories:      d.Kcalories,
		})
	}
	return records, nil
}

func (p *WalkProvider) get(ctx context.Context, endpoint, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("connectors: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gateerr.New(gateerr.CodeTimeout, "walk provider timed out")
		}
		return nil, gateerr.New(gateerr.CodeUpstream, "walk provider unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, gateerr.New(gateerr.CodeUpstream, "walk provider read: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, gateerr.New(gateerr.CodeUpstream,
			"walk provider returned %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	return body, nil
}
