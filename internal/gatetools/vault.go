package gatetools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
)

// VaultMaintainTool prunes cache rows past the retention window.
type VaultMaintainTool struct {
	deps     Deps
	keepDays int
}

func NewVaultMaintainTool(deps Deps, defaultKeepDays int) *VaultMaintainTool {
	return &VaultMaintainTool{deps: deps, keepDays: defaultKeepDays}
}

func (t *VaultMaintainTool) Definition() mcp.Tool {
	return mcp.NewTool("vault_maintain",
		mcp.WithDescription("Delete cached records older than the retention window and compact the store."),
		mcp.WithNumber("keep_days", mcp.Description("Retention window in days; defaults to the configured value")),
	)
}

func (t *VaultMaintainTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	_, cc := corr.Ensure(ctx)

	keepDays := req.GetInt("keep_days", t.keepDays)

	var deleted int
	var err error
	switch {
	case t.deps.Vault == nil:
		err = gateerr.New(gateerr.CodeVaultDisabled, "vault store is not configured")
	case keepDays <= 0:
		err = gateerr.New(gateerr.CodeBadRequest, "'keep_days' must be positive")
	default:
		deleted, err = t.deps.Vault.Maintain(keepDays)
		if err != nil {
			err = gateerr.New(gateerr.CodeInternal, "vault maintenance failed: %v", err)
		}
	}

	t.deps.auditToolEvent("vault_maintain", cc,
		map[string]any{"keep_days": keepDays, "deleted": deleted}, err, start)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(map[string]any{"deleted": deleted, "keep_days": keepDays})
}
