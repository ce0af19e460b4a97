// Package governor orchestrates policy-governed access to health
// streams: it validates the declared purpose, consults the vault
// before live connectors, falls back in the caller's declared
// preference order, writes live results back into the vault, shapes
// the response per purpose, and emits one audit event per operation.
package governor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/connectors"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/vault"
)

// Source preference values for FetchWalk.
const (
	SourceAuto  = "auto"
	SourceVault = "vault"
	SourceLive  = "live"
)

// sourceVaultFallback labels the post-live vault re-query.
const sourceVaultFallback = "vault_fallback"

// defaultConnectorOrder is used when the caller declares no preference.
var defaultConnectorOrder = []string{"wearable", "gamehub"}

// SourcesCaller is the slice of the remote sources client the governor
// needs.
type SourcesCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// VaultStore is the slice of the vault the governor needs.
type VaultStore interface {
	Upsert(userID int, records []vault.WalkRecord, source string) (int, error)
	Fetch(userID int, opts vault.FetchOptions) (*vault.FetchResult, error)
}

// Attempt is one ordered entry in a call's source-resolution trail.
type Attempt struct {
	Source string `json:"source"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// WalkRequest describes one fetchWalk call.
type WalkRequest struct {
	UserID           int
	From             string
	To               string
	Page             int
	PerPage          int
	PreferConnectors []string
	PreferSource     string // auto | vault | live; empty means auto
	Purpose          policy.Purpose
}

// WalkResponse is the governor's walk payload before generic policy
// redaction.
type WalkResponse struct {
	Records        []vault.WalkRecord `json:"records"`
	Stats          vault.Stats        `json:"stats"`
	SelectedSource string             `json:"selected_source"`
	Attempts       []Attempt          `json:"attempts"`
	Provenance     map[string]any     `json:"provenance,omitempty"`
}

// Options configures a Governor. Vault may be nil (vault disabled).
type Options struct {
	Vault       VaultStore
	Sources     SourcesCaller
	Directory   connectors.Directory
	Audit       *telemetry.Log
	ClientID    string
	CallTimeout time.Duration
}

// Governor is the access orchestrator.
type Governor struct {
	vault    VaultStore
	sources  SourcesCaller
	dir      connectors.Directory
	audit    *telemetry.Log
	clientID string
	timeout  time.Duration
}

// New creates a Governor from opts.
func New(opts Options) *Governor {
	timeout := opts.CallTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Governor{
		vault:    opts.Vault,
		sources:  opts.Sources,
		dir:      opts.Directory,
		audit:    opts.Audit,
		clientID: opts.ClientID,
		timeout:  timeout,
	}
}

// validPurpose accepts the caller-visible lanes plus the governor's own
// internal elevated lane.
func validPurpose(p policy.Purpose) bool {
	return policy.Known(p) || p == policy.PurposeInternal
}

// FetchWalk resolves walk records for one user, vault-first with
// ordered live fallback.
func (g *Governor) FetchWalk(ctx context.Context, req WalkRequest) (*WalkResponse, error) {
	start := time.Now()
	ctx, cc := corr.Ensure(ctx)
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.fetchWalk(ctx, req)

	event := telemetry.Event{
		Kind:      "governor",
		Name:      "fetch_walk",
		ClientID:  g.clientID,
		RequestID: cc.RequestID,
		CorrID:    cc.CorrID,
		Args: map[string]any{
			"user_id":       req.UserID,
			"purpose":       string(req.Purpose),
			"prefer_source": preferSourceOf(req),
		},
		OK: err == nil,
		MS: time.Since(start).Milliseconds(),
	}
	if resp != nil {
		event.Args["selected_source"] = resp.SelectedSource
		event.Args["attempts"] = attemptsArg(resp.Attempts)
	}
	if err != nil {
		event.Err = gateerr.CodeOf(err)
	}
	g.audit.Record(event)

	return resp, err
}

func preferSourceOf(req WalkRequest) string {
	if req.PreferSource == "" {
		return SourceAuto
	}
	return req.PreferSource
}

func (g *Governor) fetchWalk(ctx context.Context, req WalkRequest) (*WalkResponse, error) {
	if !validPurpose(req.Purpose) {
		return nil, gateerr.New(gateerr.CodeBadRequest, "unknown purpose %q", req.Purpose)
	}
	// Raw per-record data never serves the modeling lane; only the
	// aggregate feature tools may.
	if req.Purpose == policy.PurposeModeling {
		return nil, gateerr.New(gateerr.CodeNotSupported,
			"raw walk records are not available for modeling; use walk features")
	}
	prefer := preferSourceOf(req)
	switch prefer {
	case SourceAuto, SourceVault, SourceLive:
	default:
		return nil, gateerr.New(gateerr.CodeBadRequest, "prefer_source must be auto, vault or live")
	}

	var attempts []Attempt

	// 1. Vault first, unless the caller insists on live.
	if prefer == SourceAuto || prefer == SourceVault {
		if g.vault == nil {
			if prefer == SourceVault {
				return nil, gateerr.New(gateerr.CodeVaultDisabled, "vault store is not configured")
			}
			attempts = append(attempts, Attempt{Source: SourceVault, OK: false, Error: gateerr.CodeVaultDisabled})
		} else {
			result, err := g.vaultFetch(req)
			switch {
			case err != nil:
				attempts = append(attempts, Attempt{Source: SourceVault, OK: false, Error: err.Error()})
				if prefer == SourceVault {
					return nil, gateerr.New(gateerr.CodeInternal, "vault fetch failed: %v", err)
				}
			case len(result.Records) > 0:
				attempts = append(attempts, Attempt{Source: SourceVault, OK: true})
				return g.shapeWalk(req, result.Records, result.Stats, SourceVault, attempts, nil), nil
			default:
				attempts = append(attempts, Attempt{Source: SourceVault, OK: false, Error: gateerr.CodeVaultEmpty})
				if prefer == SourceVault {
					// Fail fast: a vault-only miss never falls through
					// to live connectors.
					return nil, gateerr.New(gateerr.CodeVaultEmpty,
						"no cached walk records for user %d", req.UserID).
						WithDetails(map[string]any{"attempts": attemptsArg(attempts)})
				}
			}
		}
	}

	// 2. Live connectors in the caller's declared order.
	order := req.PreferConnectors
	if len(order) == 0 {
		order = defaultConnectorOrder
	}
	for _, app := range order {
		records, attempt := g.liveFetch(ctx, req, app)
		attempts = append(attempts, attempt)
		if !attempt.OK {
			continue
		}

		// Best-effort write-back: a failed write is an attempt entry,
		// never a failed call.
		if g.vault != nil {
			if _, err := g.vault.Upsert(req.UserID, records, app); err != nil {
				attempts = append(attempts, Attempt{Source: "vault_write", OK: false, Error: err.Error()})
			}
		}

		records, stats := paginate(records, req.Page, req.PerPage)
		prov := map[string]any{"application": app}
		if conn, err := g.dir.Lookup(req.UserID, connectors.CategoryWalk, app); err == nil {
			prov["external_player_id"] = conn.PlayerID
		}
		return g.shapeWalk(req, records, stats, app, attempts, prov), nil
	}

	// 3. Every live connector failed. Under auto, re-check the vault
	// once more before giving up — a concurrent call may have written
	// records since the first query.
	if prefer == SourceAuto && g.vault != nil {
		result, err := g.vaultFetch(req)
		if err == nil && len(result.Records) > 0 {
			attempts = append(attempts, Attempt{Source: sourceVaultFallback, OK: true})
			return g.shapeWalk(req, result.Records, result.Stats, sourceVaultFallback, attempts, nil), nil
		}
		attempts = append(attempts, Attempt{Source: sourceVaultFallback, OK: false, Error: gateerr.CodeVaultEmpty})
	}

	if ctx.Err() != nil {
		return nil, gateerr.New(gateerr.CodeTimeout, "fetch_walk timed out").
			WithDetails(map[string]any{"attempts": attemptsArg(attempts)})
	}
	return nil, gateerr.New(gateerr.CodeAllSourcesFailed,
		"every configured source failed for user %d", req.UserID).
		WithDetails(map[string]any{"attempts": attemptsArg(attempts)})
}

// vaultFetch queries the cache with the caller's window and paging.
func (g *Governor) vaultFetch(req WalkRequest) (*vault.FetchResult, error) {
	return g.vault.Fetch(req.UserID, vault.FetchOptions{
		From:    req.From,
		To:      req.To,
		Page:    req.Page,
		PerPage: req.PerPage,
	})
}

// liveFetch resolves the user's connector for app and calls the
// sources subprocess.
func (g *Governor) liveFetch(ctx context.Context, req WalkRequest, app string) ([]vault.WalkRecord, Attempt) {
	conn, err := g.dir.Lookup(req.UserID, connectors.CategoryWalk, app)
	if err != nil {
		return nil, Attempt{Source: app, OK: false, Error: gateerr.CodeOf(err)}
	}

	payload, err := g.sources.CallTool(ctx, "walk_fetch", map[string]any{
		"application": conn.Application,
		"player_id":   conn.PlayerID,
		"token":       conn.Token,
		"from":        req.From,
		"to":          req.To,
	})
	if err != nil {
		return nil, Attempt{Source: app, OK: false, Error: gateerr.CodeOf(err)}
	}

	records, err := decodeRecords(payload, app)
	if err != nil {
		return nil, Attempt{Source: app, OK: false, Error: gateerr.CodeUpstream}
	}
	return records, Attempt{Source: app, OK: true}
}

// decodeRecords extracts normalized walk records from a sources
// payload, tagging each with its provenance source.
func decodeRecords(payload map[string]any, source string) ([]vault.WalkRecord, error) {
	raw, err := json.Marshal(payload["records"])
	if err != nil {
		return nil, err
	}
	var records []vault.WalkRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Source = source
	}
	return records, nil
}

// paginate slices live records and computes stats over the full set,
// mirroring the vault's stats-before-pagination behavior.
func paginate(records []vault.WalkRecord, page, perPage int) ([]vault.WalkRecord, vault.Stats) {
	stats := computeStats(records)
	if perPage <= 0 {
		return records, stats
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(records) {
		return nil, stats
	}
	end := start + perPage
	if end > len(records) {
		end = len(records)
	}
	return records[start:end], stats
}

func computeStats(records []vault.WalkRecord) vault.Stats {
	var stats vault.Stats
	stats.Days = len(records)
	for _, r := range records {
		stats.TotalSteps += r.Steps
	}
	if stats.Days > 0 {
		stats.AvgSteps = float64(stats.TotalSteps) / float64(stats.Days)
	}
	return stats
}

// shapeWalk applies the governor's purpose-dependent privacy boundary.
// This runs after source selection and before the policy engine's
// generic redaction.
func (g *Governor) shapeWalk(req WalkRequest, records []vault.WalkRecord, stats vault.Stats, selected string, attempts []Attempt, prov map[string]any) *WalkResponse {
	resp := &WalkResponse{
		Records:        records,
		Stats:          stats,
		SelectedSource: selected,
		Attempts:       attempts,
		Provenance:     prov,
	}
	if req.Purpose == policy.PurposeAnalytics {
		resp.Provenance = stripProvenance(resp.Provenance)
	}
	return resp
}

// stripProvenance removes connector-identifying fields for the
// analytics lane.
func stripProvenance(prov map[string]any) map[string]any {
	if prov == nil {
		return nil
	}
	out := make(map[string]any, len(prov))
	for k, v := range prov {
		switch k {
		case "external_player_id", "email", "access_token", "token":
			continue
		}
		out[k] = v
	}
	return out
}

func attemptsArg(attempts []Attempt) []any {
	out := make([]any, 0, len(attempts))
	for _, a := range attempts {
		m := map[string]any{"source": a.Source, "ok": a.OK}
		if a.Error != "" {
			m["error"] = a.Error
		}
		out = append(out, m)
	}
	return out
}
