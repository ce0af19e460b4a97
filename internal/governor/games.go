package governor

import (
	"context"
	"time"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/connectors"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/scoring"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
)

// GameRequest describes one trivia or sugarvita fetch.
type GameRequest struct {
	UserID  int
	Purpose policy.Purpose
}

// FetchTrivia returns the user's trivia metrics enriched with a
// normalized literacy score. Single upstream connector, no vault.
func (g *Governor) FetchTrivia(ctx context.Context, req GameRequest) (map[string]any, error) {
	return g.fetchGame(ctx, "fetch_trivia", "trivia_fetch", req, func(payload map[string]any) {
		correct := intArg(payload, "correct")
		answered := intArg(payload, "answered")
		payload["literacy_score"] = scoring.LiteracyScore(correct, answered)
	})
}

// FetchSugarVita returns the user's diabetes-game metrics enriched
// with a normalized player-type profile. Single upstream connector, no
// vault.
func (g *Governor) FetchSugarVita(ctx context.Context, req GameRequest) (map[string]any, error) {
	return g.fetchGame(ctx, "fetch_sugarvita", "sugarvita_fetch", req, func(payload map[string]any) {
		if raw, ok := payload["player_type_accumulators"].(map[string]any); ok {
			acc := make(map[string]float64, len(raw))
			for k, v := range raw {
				if f, ok := v.(float64); ok {
					acc[k] = f
				}
			}
			payload["player_types"] = scoring.PlayerTypes(acc)
		}
	})
}

// fetchGame is the shared single-connector path for game tools.
func (g *Governor) fetchGame(ctx context.Context, opName, toolName string, req GameRequest, enrich func(map[string]any)) (map[string]any, error) {
	start := time.Now()
	ctx, cc := corr.Ensure(ctx)
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload, attempts, err := g.fetchGameInner(ctx, toolName, req, enrich)

	event := telemetry.Event{
		Kind:      "governor",
		Name:      opName,
		ClientID:  g.clientID,
		RequestID: cc.RequestID,
		CorrID:    cc.CorrID,
		Args: map[string]any{
			"user_id":  req.UserID,
			"purpose":  string(req.Purpose),
			"attempts": attemptsArg(attempts),
		},
		OK: err == nil,
		MS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Err = gateerr.CodeOf(err)
	}
	g.audit.Record(event)

	return payload, err
}

func (g *Governor) fetchGameInner(ctx context.Context, toolName string, req GameRequest, enrich func(map[string]any)) (map[string]any, []Attempt, error) {
	if !validPurpose(req.Purpose) {
		return nil, nil, gateerr.New(gateerr.CodeBadRequest, "unknown purpose %q", req.Purpose)
	}
	if req.Purpose == policy.PurposeModeling {
		return nil, nil, gateerr.New(gateerr.CodeNotSupported,
			"raw game metrics are not available for modeling")
	}

	conn, err := g.dir.Lookup(req.UserID, connectors.CategoryDiabetesGame, "")
	if err != nil {
		return nil, []Attempt{{Source: "gamehub", OK: false, Error: gateerr.CodeOf(err)}}, err
	}

	payload, err := g.sources.CallTool(ctx, toolName, map[string]any{
		"application": conn.Application,
		"player_id":   conn.PlayerID,
		"token":       conn.Token,
	})
	if err != nil {
		attempt := Attempt{Source: conn.Application, OK: false, Error: gateerr.CodeOf(err)}
		return nil, []Attempt{attempt}, err
	}

	if enrich != nil {
		enrich(payload)
	}
	payload["provenance"] = map[string]any{
		"application":        conn.Application,
		"external_player_id": conn.PlayerID,
	}
	if req.Purpose == policy.PurposeAnalytics {
		payload["provenance"] = stripProvenance(payload["provenance"].(map[string]any))
	}
	return payload, []Attempt{{Source: conn.Application, OK: true}}, nil
}

func intArg(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
