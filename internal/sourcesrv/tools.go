package sourcesrv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/vault"
)

// WalkFetcher fetches normalized walk days from one provider.
type WalkFetcher interface {
	FetchDays(ctx context.Context, playerID, token, from, to string) ([]vault.WalkRecord, error)
}

// GameFetcher fetches raw game metrics from the gamified provider.
type GameFetcher interface {
	FetchTrivia(ctx context.Context, playerID, token string) (map[string]any, error)
	FetchSugarVita(ctx context.Context, playerID, token string) (map[string]any, error)
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errResult(gateerr.New(gateerr.CodeInternal, "encode response")), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errResult renders err as the wire error envelope in an IsError
// result, so raw failure text never crosses the transport uncontrolled.
func errResult(err error) *mcp.CallToolResult {
	data, merr := json.Marshal(gateerr.Envelope(err))
	if merr != nil {
		return mcp.NewToolResultError(`{"error":{"code":"internal","message":"encode error"}}`)
	}
	return mcp.NewToolResultError(string(data))
}

// --- corr_set ---

// CorrSetTool is the correlation handshake: the gateway pushes its
// correlation context here before data calls so both processes' audit
// events can be joined.
type CorrSetTool struct {
	state *State
}

func NewCorrSetTool(state *State) *CorrSetTool {
	return &CorrSetTool{state: state}
}

func (t *CorrSetTool) Definition() mcp.Tool {
	return mcp.NewTool("corr_set",
		mcp.WithDescription("Set the correlation context for subsequent calls in this session."),
		mcp.WithString("corr_id", mcp.Required(), mcp.Description("Correlation id shared by all audit events of one logical request")),
		mcp.WithString("request_id", mcp.Description("Optional request id from the caller")),
	)
}

func (t *CorrSetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	corrID := req.GetString("corr_id", "")
	if corrID == "" {
		return errResult(gateerr.New(gateerr.CodeBadRequest, "'corr_id' is required")), nil
	}
	t.state.Set(corr.Context{CorrID: corrID, RequestID: req.GetString("request_id", "")})
	return jsonResult(map[string]any{"ok": true})
}

// --- walk_fetch ---

// WalkFetchTool serves normalized walk days from the provider matching
// the requested application.
type WalkFetchTool struct {
	fetchers map[string]WalkFetcher
	audit    *telemetry.Log
	state    *State
}

func NewWalkFetchTool(fetchers map[string]WalkFetcher, audit *telemetry.Log, state *State) *WalkFetchTool {
	return &WalkFetchTool{fetchers: fetchers, audit: audit, state: state}
}

func (t *WalkFetchTool) Definition() mcp.Tool {
	return mcp.NewTool("walk_fetch",
		mcp.WithDescription("Fetch day-level walk activity for one external player from the named provider."),
		mcp.WithString("application", mcp.Required(), mcp.Description("Provider application name")),
		mcp.WithString("player_id", mcp.Required(), mcp.Description("External player id at the provider")),
		mcp.WithString("token", mcp.Required(), mcp.Description("Provider credential")),
		mcp.WithString("from", mcp.Description("Inclusive window start, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Inclusive window end, YYYY-MM-DD")),
	)
}

func (t *WalkFetchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	app := req.GetString("application", "")
	playerID := req.GetString("player_id", "")
	token := req.GetString("token", "")

	var records []vault.WalkRecord
	var err error
	switch {
	case app == "" || playerID == "":
		err = gateerr.New(gateerr.CodeBadRequest, "'application' and 'player_id' are required")
	case token == "":
		err = gateerr.New(gateerr.CodeMissingToken, "no credential supplied for %s", app)
	default:
		fetcher, ok := t.fetchers[app]
		if !ok {
			err = gateerr.New(gateerr.CodeBadRequest, "unknown application %q", app)
		} else {
			records, err = fetcher.FetchDays(ctx, playerID, token,
				req.GetString("from", ""), req.GetString("to", ""))
		}
	}

	t.auditCall("walk_fetch", app, playerID, err, start)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(map[string]any{"records": records})
}

func (t *WalkFetchTool) auditCall(name, app, playerID string, err error, start time.Time) {
	cc := t.state.Current()
	event := telemetry.Event{
		Kind:      "sources",
		Name:      name,
		ClientID:  "hdt-sources",
		RequestID: cc.RequestID,
		CorrID:    cc.CorrID,
		Args:      map[string]any{"application": app, "player_id": playerID},
		OK:        err == nil,
		MS:        time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Err = gateerr.CodeOf(err)
	}
	t.audit.Record(event)
}

// --- trivia_fetch / sugarvita_fetch ---

// GameFetchTool serves raw metrics for one game from the gamified
// provider. One instance per game tool.
type GameFetchTool struct {
	name  string
	fetch func(ctx context.Context, playerID, token string) (map[string]any, error)
	audit *telemetry.Log
	state *State
}

func NewTriviaFetchTool(games GameFetcher, audit *telemetry.Log, state *State) *GameFetchTool {
	return &GameFetchTool{name: "trivia_fetch", fetch: games.FetchTrivia, audit: audit, state: state}
}

func NewSugarVitaFetchTool(games GameFetcher, audit *telemetry.Log, state *State) *GameFetchTool {
	return &GameFetchTool{name: "sugarvita_fetch", fetch: games.FetchSugarVita, audit: audit, state: state}
}

func (t *GameFetchTool) Definition() mcp.Tool {
	return mcp.NewTool(t.name,
		mcp.WithDescription("Fetch raw game metrics for one external player from the gamified provider."),
		mcp.WithString("application", mcp.Required(), mcp.Description("Provider application name")),
		mcp.WithString("player_id", mcp.Required(), mcp.Description("External player id at the provider")),
		mcp.WithString("token", mcp.Required(), mcp.Description("Provider credential")),
	)
}

func (t *GameFetchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	playerID := req.GetString("player_id", "")
	token := req.GetString("token", "")

	var payload map[string]any
	var err error
	switch {
	case playerID == "":
		err = gateerr.New(gateerr.CodeBadRequest, "'player_id' is required")
	case token == "":
		err = gateerr.New(gateerr.CodeMissingToken, "no credential supplied")
	default:
		payload, err = t.fetch(ctx, playerID, token)
	}

	cc := t.state.Current()
	event := telemetry.Event{
		Kind:      "sources",
		Name:      t.name,
		ClientID:  "hdt-sources",
		RequestID: cc.RequestID,
		CorrID:    cc.CorrID,
		Args:      map[string]any{"player_id": playerID},
		OK:        err == nil,
		MS:        time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Err = gateerr.CodeOf(err)
	}
	t.audit.Record(event)

	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(payload)
}
