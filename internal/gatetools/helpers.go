// Package gatetools implements the gateway's MCP tools.
//
// Each tool is a struct receiving its dependencies via constructor and
// exposing Definition/Handle for registration. Every handler follows
// the same discipline: validate the declared purpose, deny-fast
// against the policy engine, delegate to the governor, then apply the
// policy engine's generic redaction to the response.
package gatetools

import (
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/governor"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
)

// Maintainer is the slice of the vault the maintenance tool needs.
type Maintainer interface {
	Maintain(keepDays int) (int, error)
}

// Deps bundles what the gateway tools share. Vault may be nil when the
// store is disabled.
type Deps struct {
	Governor *governor.Governor
	Policy   *policy.Engine
	Audit    *telemetry.Log
	Vault    Maintainer
	ClientID string
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
// result.
func errResult(err error) *mcp.CallToolResult {
	data, merr := json.Marshal(gateerr.Envelope(err))
	if merr != nil {
		return mcp.NewToolResultError(`{"error":{"code":"internal","message":"encode error"}}`)
	}
	return mcp.NewToolResultError(string(data))
}

// toMap converts a typed response into a JSON object for redaction.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// parsePurpose reads and validates the caller-visible purpose.
func parsePurpose(req mcp.CallToolRequest) (policy.Purpose, error) {
	p := policy.Purpose(req.GetString("purpose", ""))
	if !policy.Known(p) {
		return "", gateerr.New(gateerr.CodeBadRequest, "unknown purpose %q", p)
	}
	return p, nil
}

// auditToolEvent records a tool-layer event. Used for calls that never
// reach the governor (invalid purpose, deny-fast) and for admin tools
// — data operations are audited by the governor itself, one event per
// call.
func (d Deps) auditToolEvent(name string, cc corr.Context, args map[string]any, err error, start time.Time) {
	event := telemetry.Event{
		Kind:      "tool",
		Name:      name,
		ClientID:  d.ClientID,
		RequestID: cc.RequestID,
		CorrID:    cc.CorrID,
		Args:      args,
		OK:        err == nil,
		MS:        time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Err = gateerr.CodeOf(err)
	}
	d.Audit.Record(event)
}

// denyFast resolves the effective rule and returns a typed error when
// the lane is not allowed to call the tool. This runs before any
// downstream work.
func (d Deps) denyFast(p policy.Purpose, toolName string) error {
	rule, err := d.Policy.Resolve(p, toolName, d.ClientID)
	if err != nil {
		return gateerr.New(gateerr.CodeInternal, "policy resolution failed")
	}
	if !rule.Allow {
		return gateerr.New(gateerr.CodeDenied,
			"purpose %q is not allowed to call %s", p, toolName)
	}
	return nil
}

// redact applies the policy engine's generic redaction to a response
// payload.
func (d Deps) redact(p policy.Purpose, toolName string, payload map[string]any) (map[string]any, error) {
	shaped, _, err := d.Policy.Apply(p, toolName, d.ClientID, payload)
	return shaped, err
}
