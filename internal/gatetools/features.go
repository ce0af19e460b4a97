package gatetools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/governor"
)

// FeaturesTool serves aggregate walk features for the modeling lane.
type FeaturesTool struct {
	deps Deps
}

func NewFeaturesTool(deps Deps) *FeaturesTool {
	return &FeaturesTool{deps: deps}
}

func (t *FeaturesTool) Definition() mcp.Tool {
	return mcp.NewTool("get_walk_features",
		mcp.WithDescription("Compute aggregate walk features for one user. Modeling lane only; never returns per-day records."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Internal user id")),
		mcp.WithString("purpose", mcp.Required(), mcp.Description("Must be modeling")),
		mcp.WithString("from", mcp.Description("Inclusive window start, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Inclusive window end, YYYY-MM-DD")),
	)
}

func (t *FeaturesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	ctx, cc := corr.Ensure(ctx)
	userID := req.GetInt("user_id", 0)

	purpose, err := parsePurpose(req)
	if err != nil {
		t.deps.auditToolEvent("get_walk_features", cc, map[string]any{"user_id": userID}, err, start)
		return errResult(err), nil
	}
	if err := t.deps.denyFast(purpose, "get_walk_features"); err != nil {
		t.deps.auditToolEvent("get_walk_features", cc,
			map[string]any{"user_id": userID, "purpose": string(purpose)}, err, start)
		return errResult(err), nil
	}

	features, err := t.deps.Governor.WalkFeatures(ctx, governor.FeaturesRequest{
		UserID:  userID,
		From:    req.GetString("from", ""),
		To:      req.GetString("to", ""),
		Purpose: purpose,
	})
	if err != nil {
		return errResult(err), nil
	}
	shaped, err := t.deps.redact(purpose, "get_walk_features", features)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(shaped)
}
