// Package policy implements the purpose-based access policy engine.
//
// A JSON rule document defines allow/redact rules at three precedence
// tiers — defaults (per purpose), clients (per client id x purpose) and
// tools (per tool name x purpose). Resolution merges the tiers lowest
// to highest into one effective rule per (purpose, tool, client).
//
// The document is loaded lazily and cached keyed by a cheap file
// signature (modification time + size), so edits take effect on the
// next resolution without any file-watching primitive.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
)

// Purpose is a declared access lane. The caller-visible set is closed;
// PurposeInternal exists only for the governor's own feature sub-calls
// and is never accepted from a client.
type Purpose string

const (
	PurposeAnalytics Purpose = "analytics"
	PurposeModeling  Purpose = "modeling"
	PurposeCoaching  Purpose = "coaching"
	PurposeInternal  Purpose = "internal_features"
)

// Known reports whether p is a caller-visible lane.
func Known(p Purpose) bool {
	switch p {
	case PurposeAnalytics, PurposeModeling, PurposeCoaching:
		return true
	}
	return false
}

// Rule is one tier's contribution to an effective rule. Pointer fields
// distinguish "unset" (inherit from the lower tier) from an explicit
// value: an absent allow defaults to true, an absent redact inherits.
type Rule struct {
	Allow  *bool     `json:"allow,omitempty"`
	Redact *[]string `json:"redact,omitempty"`
}

// Document is the on-disk policy shape.
type Document struct {
	Defaults map[string]Rule            `json:"defaults"`
	Clients  map[string]map[string]Rule `json:"clients"`
	Tools    map[string]map[string]Rule `json:"tools"`
}

// EffectiveRule is the fully merged rule for one (purpose, tool, client).
type EffectiveRule struct {
	Allow  bool     `json:"allow"`
	Redact []string `json:"redact"`
}

// Decision records what a policy application did. It is returned
// explicitly alongside the shaped payload — there is no ambient
// per-call state to consult afterwards.
type Decision struct {
	Allowed    bool    `json:"allowed"`
	Redactions int     `json:"redactions"`
	Purpose    Purpose `json:"purpose"`
	Tool       string  `json:"tool"`
}

// Engine resolves and applies policy rules from a document file.
// An Engine with an empty path is permissive: every resolution yields
// {allow: true, redact: []}.
type Engine struct {
	path string

	mu       sync.Mutex
	doc      *Document
	sigMTime time.Time
	sigSize  int64
}

// NewEngine creates an engine reading its rules from path. The file is
// not touched until the first resolution.
func NewEngine(path string) *Engine {
	return &Engine{path: path}
}

// Invalidate drops the cached document so the next resolution reloads
// from disk regardless of the file signature. Exposed for the
// policy_reload tool and for tests.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = nil
	e.sigMTime = time.Time{}
	e.sigSize = 0
}

// document returns the current rule document, reloading it when the
// file signature changed since the last load.
func (e *Engine) document() (*Document, error) {
	if e.path == "" {
		return &Document{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := os.Stat(e.path)
	if err != nil {
		return nil, fmt.Errorf("policy: stat %s: %w", e.path, err)
	}
	if e.doc != nil && info.ModTime().Equal(e.sigMTime) && info.Size() == e.sigSize {
		return e.doc, nil
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", e.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", e.path, err)
	}

	e.doc = &doc
	e.sigMTime = info.ModTime()
	e.sigSize = info.Size()
	return e.doc, nil
}

// Resolve merges the three tiers into the effective rule for
// (purpose, toolName, clientID). Merge order: defaults, then the
// client tier, then the tool tier — the most specific tier wins.
func (e *Engine) Resolve(p Purpose, toolName, clientID string) (EffectiveRule, error) {
	doc, err := e.document()
	if err != nil {
		return EffectiveRule{}, err
	}

	eff := EffectiveRule{Allow: true, Redact: []string{}}
	merge := func(r Rule, ok bool) {
		if !ok {
			return
		}
		if r.Allow != nil {
			eff.Allow = *r.Allow
		}
		if r.Redact != nil {
			// Replaced wholesale by the more specific tier; absence
			// means inherit.
			eff.Redact = append([]string(nil), (*r.Redact)...)
		}
	}

	r, ok := doc.Defaults[string(p)]
	merge(r, ok)
	if byPurpose, found := doc.Clients[clientID]; found {
		r, ok = byPurpose[string(p)]
		merge(r, ok)
	}
	if byPurpose, found := doc.Tools[toolName]; found {
		r, ok = byPurpose[string(p)]
		merge(r, ok)
	}
	return eff, nil
}

// Explain exposes the resolved rule for introspection tooling.
func (e *Engine) Explain(p Purpose, toolName, clientID string) (EffectiveRule, error) {
	return e.Resolve(p, toolName, clientID)
}

// Apply resolves the rule and shapes payload accordingly. It is pure:
// the returned payload is a deep copy with redactions applied, and the
// caller's payload is never touched — in particular a denied call
// returns the payload byte-for-byte unchanged (nil result, typed
// denied_by_policy error, zero redactions).
func (e *Engine) Apply(p Purpose, toolName, clientID string, payload map[string]any) (map[string]any, Decision, error) {
	dec := Decision{Purpose: p, Tool: toolName}

	rule, err := e.Resolve(p, toolName, clientID)
	if err != nil {
		return nil, dec, err
	}
	if !rule.Allow {
		return nil, dec, gateerr.New(gateerr.CodeDenied,
			"purpose %q is not allowed to call %s", p, toolName)
	}
	dec.Allowed = true

	shaped, ok := deepCopy(payload).(map[string]any)
	if !ok {
		shaped = map[string]any{}
	}
	for _, path := range rule.Redact {
		dec.Redactions += redactPath(shaped, splitPath(path))
	}
	return shaped, dec, nil
}
