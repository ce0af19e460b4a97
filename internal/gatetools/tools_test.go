package gatetools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/connectors"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/governor"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/vault"
)

type fakeSources struct {
	payload map[string]any
	err     error
}

func (f *fakeSources) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	return f.payload, f.err
}

type fakeVault struct {
	records  []vault.WalkRecord
	deleted  int
	maintain error
}

func (f *fakeVault) Upsert(userID int, records []vault.WalkRecord, source string) (int, error) {
	return len(records), nil
}

func (f *fakeVault) Fetch(userID int, opts vault.FetchOptions) (*vault.FetchResult, error) {
	stats := vault.Stats{Days: len(f.records)}
	for _, r := range f.records {
		stats.TotalSteps += r.Steps
	}
	if stats.Days > 0 {
		stats.AvgSteps = float64(stats.TotalSteps) / float64(stats.Days)
	}
	return &vault.FetchResult{Records: f.records, Stats: stats, Total: len(f.records)}, nil
}

func (f *fakeVault) Maintain(keepDays int) (int, error) {
	return f.deleted, f.maintain
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultPayload(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content items = %d", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Content[0])
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &m); err != nil {
		t.Fatalf("decode %q: %v", tc.Text, err)
	}
	return m
}

func errorCode(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if !res.IsError {
		t.Fatalf("expected an error result")
	}
	m := resultPayload(t, res)
	inner, _ := m["error"].(map[string]any)
	code, _ := inner["code"].(string)
	return code
}

func writePolicy(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func testDeps(t *testing.T, policyPath string, fv *fakeVault, fs *fakeSources) Deps {
	t.Helper()
	dir := connectors.StaticDirectory{
		7: {
			{Category: connectors.CategoryWalk, Application: "wearable", PlayerID: "w-7", Token: "tok"},
			{Category: connectors.CategoryDiabetesGame, Application: "gamehub", PlayerID: "g-7", Token: "tok"},
		},
	}
	audit := telemetry.NewLog(filepath.Join(t.TempDir(), "audit.jsonl"), "test-salt")
	var vs governor.VaultStore
	var maint Maintainer
	if fv != nil {
		vs = fv
		maint = fv
	}
	gov := governor.New(governor.Options{
		Vault:     vs,
		Sources:   fs,
		Directory: dir,
		Audit:     audit,
		ClientID:  "test-client",
	})
	return Deps{
		Governor: gov,
		Policy:   policy.NewEngine(policyPath),
		Audit:    audit,
		Vault:    maint,
		ClientID: "test-client",
	}
}

func TestWalkTool_VaultHit(t *testing.T) {
	fv := &fakeVault{records: []vault.WalkRecord{
		{Date: "2026-03-01", Steps: 4000, Source: "wearable"},
		{Date: "2026-03-02", Steps: 9000, Source: "wearable"},
	}}
	deps := testDeps(t, "", fv, &fakeSources{})
	tool := NewWalkTool(deps)

	res, err := tool.Handle(context.Background(), callReq("get_walk_data",
		map[string]any{"user_id": 7, "purpose": "coaching"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["selected_source"] != "vault" {
		t.Errorf("selected_source = %v", payload["selected_source"])
	}
	records, _ := payload["records"].([]any)
	if len(records) != 2 {
		t.Errorf("records = %d", len(records))
	}
}

func TestWalkTool_UnknownPurpose(t *testing.T) {
	deps := testDeps(t, "", &fakeVault{}, &fakeSources{})
	tool := NewWalkTool(deps)

	res, _ := tool.Handle(context.Background(), callReq("get_walk_data",
		map[string]any{"user_id": 7, "purpose": "marketing"}))
	if code := errorCode(t, res); code != gateerr.CodeBadRequest {
		t.Errorf("code = %s", code)
	}

	// The rejection is audited at the tool layer with kind "tool".
	events, err := deps.Audit.Recent(5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "tool" || events[0].Err != gateerr.CodeBadRequest {
		t.Errorf("events = %+v", events)
	}
}

func TestWalkTool_DenyFast(t *testing.T) {
	path := writePolicy(t, `{
		"defaults": {"coaching": {"allow": false}}
	}`)
	fv := &fakeVault{records: []vault.WalkRecord{{Date: "2026-03-01", Steps: 100}}}
	deps := testDeps(t, path, fv, &fakeSources{})
	tool := NewWalkTool(deps)

	res, _ := tool.Handle(context.Background(), callReq("get_walk_data",
		map[string]any{"user_id": 7, "purpose": "coaching"}))
	if code := errorCode(t, res); code != gateerr.CodeDenied {
		t.Errorf("code = %s", code)
	}

	// Denied before the governor: exactly one tool-layer event, none
	// from the governor.
	events, err := deps.Audit.Recent(5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "tool" {
		t.Errorf("events = %+v", events)
	}
}

func TestWalkTool_PolicyRedaction(t *testing.T) {
	path := writePolicy(t, `{
		"defaults": {"analytics": {"allow": true, "redact": ["records.steps"]}}
	}`)
	fv := &fakeVault{records: []vault.WalkRecord{{Date: "2026-03-01", Steps: 4000}}}
	deps := testDeps(t, path, fv, &fakeSources{})
	tool := NewWalkTool(deps)

	res, err := tool.Handle(context.Background(), callReq("get_walk_data",
		map[string]any{"user_id": 7, "purpose": "analytics"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	payload := resultPayload(t, res)
	records, _ := payload["records"].([]any)
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	day, _ := records[0].(map[string]any)
	if day["steps"] != policy.RedactedToken {
		t.Errorf("steps = %v, want redacted", day["steps"])
	}
}

func TestGameTool_TriviaLiteracyScore(t *testing.T) {
	fs := &fakeSources{payload: map[string]any{
		"correct": float64(7), "answered": float64(10),
	}}
	deps := testDeps(t, "", nil, fs)
	tool := NewTriviaTool(deps)

	res, err := tool.Handle(context.Background(), callReq("get_trivia_data",
		map[string]any{"user_id": 7, "purpose": "coaching"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["literacy_score"] != float64(70) {
		t.Errorf("literacy_score = %v", payload["literacy_score"])
	}
	prov, _ := payload["provenance"].(map[string]any)
	if prov["external_player_id"] != "g-7" {
		t.Errorf("provenance = %v", prov)
	}
}

func TestFeaturesTool_ModelingOnly(t *testing.T) {
	fv := &fakeVault{records: []vault.WalkRecord{
		{Date: "2026-03-01", Steps: 6000},
		{Date: "2026-03-02", Steps: 2000},
	}}
	deps := testDeps(t, "", fv, &fakeSources{})
	tool := NewFeaturesTool(deps)

	res, _ := tool.Handle(context.Background(), callReq("get_walk_features",
		map[string]any{"user_id": 7, "purpose": "coaching"}))
	if code := errorCode(t, res); code != gateerr.CodeBadRequest {
		t.Errorf("code = %s", code)
	}

	res, err := tool.Handle(context.Background(), callReq("get_walk_features",
		map[string]any{"user_id": 7, "purpose": "modeling"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["days"] != float64(2) || payload["active_days"] != float64(1) {
		t.Errorf("features = %v", payload)
	}
	if _, ok := payload["records"]; ok {
		t.Errorf("features must never carry per-day records")
	}
}

func TestPolicyExplainTool(t *testing.T) {
	path := writePolicy(t, `{
		"defaults": {"analytics": {"allow": true, "redact": ["provenance"]}}
	}`)
	deps := testDeps(t, path, nil, &fakeSources{})
	tool := NewPolicyExplainTool(deps)

	res, err := tool.Handle(context.Background(), callReq("policy_explain",
		map[string]any{"purpose": "analytics", "tool": "get_walk_data"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["allow"] != true {
		t.Errorf("allow = %v", payload["allow"])
	}
	redact, _ := payload["redact"].([]any)
	if len(redact) != 1 || redact[0] != "provenance" {
		t.Errorf("redact = %v", redact)
	}
}

func TestPolicyReloadTool(t *testing.T) {
	deps := testDeps(t, "", nil, &fakeSources{})
	tool := NewPolicyReloadTool(deps)

	res, err := tool.Handle(context.Background(), callReq("policy_reload", nil))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if payload := resultPayload(t, res); payload["ok"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestAuditQueryTool_Filters(t *testing.T) {
	deps := testDeps(t, "", nil, &fakeSources{})
	deps.Audit.Record(telemetry.Event{Kind: "governor", Name: "fetch_walk",
		ClientID: "a", Args: map[string]any{"purpose": "coaching"}, OK: true})
	deps.Audit.Record(telemetry.Event{Kind: "governor", Name: "fetch_walk",
		ClientID: "b", Args: map[string]any{"purpose": "analytics"}, OK: false, Err: "denied_by_policy"})

	tool := NewAuditQueryTool(deps)
	res, err := tool.Handle(context.Background(), callReq("audit_query",
		map[string]any{"error_code": "denied_by_policy"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	payload := resultPayload(t, res)
	// The matching event plus nothing else; the query itself is audited
	// after the read.
	if payload["count"] != float64(1) {
		t.Errorf("count = %v", payload["count"])
	}

	res, _ = tool.Handle(context.Background(), callReq("audit_query",
		map[string]any{"ok": "maybe"}))
	if code := errorCode(t, res); code != gateerr.CodeBadRequest {
		t.Errorf("code = %s", code)
	}
}

func TestVaultMaintainTool(t *testing.T) {
	fv := &fakeVault{deleted: 12}
	deps := testDeps(t, "", fv, &fakeSources{})
	tool := NewVaultMaintainTool(deps, 90)

	res, err := tool.Handle(context.Background(), callReq("vault_maintain", nil))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	payload := resultPayload(t, res)
	if payload["deleted"] != float64(12) || payload["keep_days"] != float64(90) {
		t.Errorf("payload = %v", payload)
	}
}

func TestVaultMaintainTool_Disabled(t *testing.T) {
	deps := testDeps(t, "", nil, &fakeSources{})
	tool := NewVaultMaintainTool(deps, 90)

	res, _ := tool.Handle(context.Background(), callReq("vault_maintain", nil))
	if code := errorCode(t, res); code != gateerr.CodeVaultDisabled {
		t.Errorf("code = %s", code)
	}
}
