package gatetools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/governor"
)

// GameTool serves one game's metrics through the governor. One
// instance per tool name.
type GameTool struct {
	deps  Deps
	name  string
	what  string
	fetch func(ctx context.Context, req governor.GameRequest) (map[string]any, error)
}

func NewTriviaTool(deps Deps) *GameTool {
	return &GameTool{
		deps:  deps,
		name:  "get_trivia_data",
		what:  "diabetes-trivia metrics with a normalized literacy score",
		fetch: deps.Governor.FetchTrivia,
	}
}

func NewSugarVitaTool(deps Deps) *GameTool {
	return &GameTool{
		deps:  deps,
		name:  "get_sugarvita_data",
		what:  "SugarVita play metrics with a normalized player-type profile",
		fetch: deps.Governor.FetchSugarVita,
	}
}

func (t *GameTool) Definition() mcp.Tool {
	return mcp.NewTool(t.name,
		mcp.WithDescription("Fetch "+t.what+" for one user."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Internal user id")),
		mcp.WithString("purpose", mcp.Required(), mcp.Description("Access lane: analytics, modeling or coaching")),
	)
}

func (t *GameTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	ctx, cc := corr.Ensure(ctx)
	userID := req.GetInt("user_id", 0)

	purpose, err := parsePurpose(req)
	if err != nil {
		t.deps.auditToolEvent(t.name, cc, map[string]any{"user_id": userID}, err, start)
		return errResult(err), nil
	}
	if err := t.deps.denyFast(purpose, t.name); err != nil {
		t.deps.auditToolEvent(t.name, cc,
			map[string]any{"user_id": userID, "purpose": string(purpose)}, err, start)
		return errResult(err), nil
	}

	payload, err := t.fetch(ctx, governor.GameRequest{UserID: userID, Purpose: purpose})
	if err != nil {
		return errResult(err), nil
	}
	shaped, err := t.deps.redact(purpose, t.name, payload)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(shaped)
}
