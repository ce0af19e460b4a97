package gatetools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
)

// AuditQueryTool reads back the gateway's audit trail with filters.
// Events are scrubbed on the way out, same as on the way in.
type AuditQueryTool struct {
	deps Deps
}

func NewAuditQueryTool(deps Deps) *AuditQueryTool {
	return &AuditQueryTool{deps: deps}
}

func (t *AuditQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_query",
		mcp.WithDescription("Query the gateway audit log, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum events to return, default 50")),
		mcp.WithNumber("since_minutes", mcp.Description("Lookback window in minutes; 0 means unbounded")),
		mcp.WithString("client_id", mcp.Description("Only events for this client")),
		mcp.WithString("purpose", mcp.Description("Only events declaring this purpose")),
		mcp.WithString("ok", mcp.Description("'true' or 'false' to filter by outcome")),
		mcp.WithString("error_code", mcp.Description("Only events failing with this code")),
		mcp.WithString("corr_id", mcp.Description("Only events in this correlation trail")),
	)
}

func (t *AuditQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	_, cc := corr.Ensure(ctx)

	limit := req.GetInt("limit", 50)
	if limit <= 0 {
		limit = 50
	}
	filter := telemetry.Filter{
		Since:     time.Duration(req.GetInt("since_minutes", 0)) * time.Minute,
		ClientID:  req.GetString("client_id", ""),
		Purpose:   req.GetString("purpose", ""),
		ErrorCode: req.GetString("error_code", ""),
		CorrID:    req.GetString("corr_id", ""),
	}
	switch req.GetString("ok", "") {
	case "true":
		v := true
		filter.OK = &v
	case "false":
		v := false
		filter.OK = &v
	case "":
	default:
		err := gateerr.New(gateerr.CodeBadRequest, "'ok' must be 'true' or 'false'")
		t.deps.auditToolEvent("audit_query", cc, nil, err, start)
		return errResult(err), nil
	}

	events, err := t.deps.Audit.Query(limit, filter)
	if err != nil {
		err = gateerr.New(gateerr.CodeInternal, "audit query failed: %v", err)
		t.deps.auditToolEvent("audit_query", cc, nil, err, start)
		return errResult(err), nil
	}

	t.deps.auditToolEvent("audit_query", cc, map[string]any{"limit": limit}, nil, start)
	return jsonResult(map[string]any{"events": events, "count": len(events)})
}
