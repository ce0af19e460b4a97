package gatetools

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/governor"
)

// WalkTool serves per-day walk records through the governor.
type WalkTool struct {
	deps Deps
}

func NewWalkTool(deps Deps) *WalkTool {
	return &WalkTool{deps: deps}
}

func (t *WalkTool) Definition() mcp.Tool {
	return mcp.NewTool("get_walk_data",
		mcp.WithDescription("Fetch day-level walk activity for one user, vault-first with ordered live fallback."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Internal user id")),
		mcp.WithString("purpose", mcp.Required(), mcp.Description("Access lane: analytics, modeling or coaching")),
		mcp.WithString("from", mcp.Description("Inclusive window start, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Inclusive window end, YYYY-MM-DD")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
		mcp.WithNumber("per_page", mcp.Description("Page size; 0 disables paging")),
		mcp.WithString("prefer_source", mcp.Description("auto, vault or live")),
		mcp.WithString("prefer_connectors", mcp.Description("Comma-separated connector order for live fallback")),
	)
}

func (t *WalkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	ctx, cc := corr.Ensure(ctx)
	userID := req.GetInt("user_id", 0)

	purpose, err := parsePurpose(req)
	if err != nil {
		t.deps.auditToolEvent("get_walk_data", cc, map[string]any{"user_id": userID}, err, start)
		return errResult(err), nil
	}
	if err := t.deps.denyFast(purpose, "get_walk_data"); err != nil {
		t.deps.auditToolEvent("get_walk_data", cc,
			map[string]any{"user_id": userID, "purpose": string(purpose)}, err, start)
		return errResult(err), nil
	}

	resp, err := t.deps.Governor.FetchWalk(ctx, governor.WalkRequest{
		UserID:           userID,
		From:             req.GetString("from", ""),
		To:               req.GetString("to", ""),
		Page:             req.GetInt("page", 0),
		PerPage:          req.GetInt("per_page", 0),
		PreferSource:     req.GetString("prefer_source", ""),
		PreferConnectors: splitConnectors(req.GetString("prefer_connectors", "")),
		Purpose:          purpose,
	})
	if err != nil {
		return errResult(err), nil
	}

	payload, err := toMap(resp)
	if err != nil {
		return errResult(gateerr.New(gateerr.CodeInternal, "shape response")), nil
	}
	shaped, err := t.deps.redact(purpose, "get_walk_data", payload)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(shaped)
}

func splitConnectors(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
