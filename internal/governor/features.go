package governor

import (
	"context"
	"math"
	"time"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
)

// activeDayThreshold marks a day as active for the feature aggregates.
const activeDayThreshold = 5000

// FeaturesRequest describes one walk-features call.
type FeaturesRequest struct {
	UserID  int
	From    string
	To      string
	Purpose policy.Purpose
}

// WalkFeatures reduces a user's walk history to aggregate statistics
// for the modeling lane. It refuses any other purpose and never
// surfaces per-day records: the internal elevated fetch stays inside
// this method.
func (g *Governor) WalkFeatures(ctx context.Context, req FeaturesRequest) (map[string]any, error) {
	start := time.Now()
	ctx, cc := corr.Ensure(ctx)

	features, err := g.walkFeatures(ctx, req)

	event := telemetry.Event{
		Kind:      "governor",
		Name:      "walk_features",
		ClientID:  g.clientID,
		RequestID: cc.RequestID,
		CorrID:    cc.CorrID,
		Args: map[string]any{
			"user_id": req.UserID,
			"purpose": string(req.Purpose),
		},
		OK: err == nil,
		MS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Err = gateerr.CodeOf(err)
	}
	g.audit.Record(event)

	return features, err
}

func (g *Governor) walkFeatures(ctx context.Context, req FeaturesRequest) (map[string]any, error) {
	if req.Purpose != policy.PurposeModeling {
		return nil, gateerr.New(gateerr.CodeBadRequest,
			"walk features serve the modeling lane only")
	}

	// Elevated internal fetch: full per-day detail, reduced to
	// aggregates below before anything leaves this method. It uses the
	// unaudited inner pipeline so the operation emits exactly one
	// governor event, the walk_features one.
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.fetchWalk(ctx, WalkRequest{
		UserID:       req.UserID,
		From:         req.From,
		To:           req.To,
		PreferSource: SourceAuto,
		Purpose:      policy.PurposeInternal,
	})
	if err != nil {
		return nil, err
	}

	features := map[string]any{
		"user_id": req.UserID,
		"days":    len(resp.Records),
	}
	if len(resp.Records) == 0 {
		return features, nil
	}

	var totalSteps, maxSteps, activeDays int
	minSteps := math.MaxInt
	var totalDistance, totalKcal float64
	for _, r := range resp.Records {
		totalSteps += r.Steps
		if r.Steps > maxSteps {
			maxSteps = r.Steps
		}
		if r.Steps < minSteps {
			minSteps = r.Steps
		}
		if r.Steps >= activeDayThreshold {
			activeDays++
		}
		if r.DistanceMeters != nil {
			totalDistance += *r.DistanceMeters
		}
		if r.Kcalories != nil {
			totalKcal += *r.Kcalories
		}
	}
	mean := float64(totalSteps) / float64(len(resp.Records))
	var variance float64
	for _, r := range resp.Records {
		d := float64(r.Steps) - mean
		variance += d * d
	}
	variance /= float64(len(resp.Records))

	features["total_steps"] = totalSteps
	features["avg_steps"] = math.Round(mean*10) / 10
	features["max_steps"] = maxSteps
	features["min_steps"] = minSteps
	features["steps_stddev"] = math.Round(math.Sqrt(variance)*10) / 10
	features["active_days"] = activeDays
	features["total_distance_m"] = totalDistance
	features["total_kcalories"] = totalKcal
	features["first_date"] = resp.Records[0].Date
	features["last_date"] = resp.Records[len(resp.Records)-1].Date
	return features, nil
}
