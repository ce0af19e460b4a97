package gatetools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
)

// PolicyExplainTool reports the effective rule for a purpose/tool pair
// without executing anything.
type PolicyExplainTool struct {
	deps Deps
}

func NewPolicyExplainTool(deps Deps) *PolicyExplainTool {
	return &PolicyExplainTool{deps: deps}
}

func (t *PolicyExplainTool) Definition() mcp.Tool {
	return mcp.NewTool("policy_explain",
		mcp.WithDescription("Show the effective policy rule for a purpose and tool after tier merging."),
		mcp.WithString("purpose", mcp.Required(), mcp.Description("Access lane to resolve")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name to resolve")),
		mcp.WithString("client_id", mcp.Description("Client id; defaults to this gateway's")),
	)
}

func (t *PolicyExplainTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	_, cc := corr.Ensure(ctx)

	purpose := policy.Purpose(req.GetString("purpose", ""))
	toolName := req.GetString("tool", "")
	clientID := req.GetString("client_id", t.deps.ClientID)

	var err error
	var rule policy.EffectiveRule
	switch {
	case !policy.Known(purpose):
		err = gateerr.New(gateerr.CodeBadRequest, "unknown purpose %q", purpose)
	case toolName == "":
		err = gateerr.New(gateerr.CodeBadRequest, "'tool' is required")
	default:
		rule, err = t.deps.Policy.Explain(purpose, toolName, clientID)
		if err != nil {
			err = gateerr.New(gateerr.CodeInternal, "policy resolution failed: %v", err)
		}
	}

	t.deps.auditToolEvent("policy_explain", cc,
		map[string]any{"purpose": string(purpose), "tool": toolName, "target_client_id": clientID},
		err, start)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(map[string]any{
		"purpose":   purpose,
		"tool":      toolName,
		"client_id": clientID,
		"allow":     rule.Allow,
		"redact":    rule.Redact,
	})
}

// PolicyReloadTool drops the cached policy document so the next call
// re-reads it from disk.
type PolicyReloadTool struct {
	deps Deps
}

func NewPolicyReloadTool(deps Deps) *PolicyReloadTool {
	return &PolicyReloadTool{deps: deps}
}

func (t *PolicyReloadTool) Definition() mcp.Tool {
	return mcp.NewTool("policy_reload",
		mcp.WithDescription("Invalidate the cached policy document, forcing a reload on the next call."),
	)
}

func (t *PolicyReloadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	_, cc := corr.Ensure(ctx)
	t.deps.Policy.Invalidate()
	t.deps.auditToolEvent("policy_reload", cc, nil, nil, start)
	return jsonResult(map[string]any{"ok": true})
}
