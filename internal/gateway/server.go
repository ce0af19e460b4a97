// Package gateway wires the gateway's MCP components and creates the
// server instance.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools that depend on abstractions. No
// business logic lives here — only wiring.
package gateway

import (
	"log"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/config"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gatetools"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/governor"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/sources"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/vault"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the gateway MCP server with all tools
// registered. The returned cleanup function closes the vault store and
// the sources subprocess session and must be called on shutdown
// (typically via defer). It is always non-nil and safe to call even if
// the vault failed to open.
func New(cfg *config.Config) (*server.MCPServer, func(), error) {
	deps, cleanup := Build(cfg)

	s := server.NewMCPServer(
		"hdt-gateway",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	walkTool := gatetools.NewWalkTool(deps)
	s.AddTool(walkTool.Definition(), walkTool.Handle)

	triviaTool := gatetools.NewTriviaTool(deps)
	s.AddTool(triviaTool.Definition(), triviaTool.Handle)

	sugarVitaTool := gatetools.NewSugarVitaTool(deps)
	s.AddTool(sugarVitaTool.Definition(), sugarVitaTool.Handle)

	featuresTool := gatetools.NewFeaturesTool(deps)
	s.AddTool(featuresTool.Definition(), featuresTool.Handle)

	explainTool := gatetools.NewPolicyExplainTool(deps)
	s.AddTool(explainTool.Definition(), explainTool.Handle)

	reloadTool := gatetools.NewPolicyReloadTool(deps)
	s.AddTool(reloadTool.Definition(), reloadTool.Handle)

	auditTool := gatetools.NewAuditQueryTool(deps)
	s.AddTool(auditTool.Definition(), auditTool.Handle)

	maintainTool := gatetools.NewVaultMaintainTool(deps, cfg.Vault.RetentionDays)
	s.AddTool(maintainTool.Definition(), maintainTool.Handle)

	return s, cleanup, nil
}

// Build assembles the governor and the shared tool dependencies
// without an MCP server around them. The HTTP surface reuses it to
// serve the same governed pipeline over a different transport.
func Build(cfg *config.Config) (gatetools.Deps, func()) {
	audit := telemetry.NewLog(cfg.Audit.Path, cfg.Audit.Salt)
	engine := policy.NewEngine(cfg.PolicyPath)

	// The vault is an independent subsystem: if it fails to open, live
	// fetching continues working. We log a warning and run with the
	// cache disabled.
	var store *vault.Store
	if cfg.Vault.Enabled {
		var err error
		store, err = vault.Open(cfg.Vault.Path)
		if err != nil {
			log.Printf("WARNING: vault store disabled: %v", err)
			store = nil
		}
	}

	remote := sources.New(cfg.Sources.Command, cfg.Sources.Args...)
	if cfg.Sources.TimeoutSeconds > 0 {
		remote.SetTimeout(time.Duration(cfg.Sources.TimeoutSeconds) * time.Second)
	}

	var vs governor.VaultStore
	var maint gatetools.Maintainer
	if store != nil {
		vs = store
		maint = store
	}
	gov := governor.New(governor.Options{
		Vault:       vs,
		Sources:     remote,
		Directory:   cfg.Directory(),
		Audit:       audit,
		ClientID:    cfg.ClientID,
		CallTimeout: time.Duration(cfg.Sources.TimeoutSeconds) * time.Second,
	})

	cleanup := func() {
		if err := remote.Close(); err != nil {
			log.Printf("WARNING: sources session close: %v", err)
		}
		if store != nil {
			if err := store.Close(); err != nil {
				log.Printf("WARNING: vault store close: %v", err)
			}
		}
	}

	deps := gatetools.Deps{
		Governor: gov,
		Policy:   engine,
		Audit:    audit,
		Vault:    maint,
		ClientID: cfg.ClientID,
	}
	return deps, cleanup
}

// serverInstructions tells a connected client how to use the gateway.
func serverInstructions() string {
	return `This server is a policy-governed gateway to health data streams.

Every data tool requires a declared purpose: analytics, modeling or
coaching. The purpose decides what you may call and what fields come
back redacted.

- analytics: aggregate-friendly access; connector identifiers are
  stripped from responses.
- coaching: per-user access with provenance, for user-facing guidance.
- modeling: aggregate features only. Raw records are never served to
  this lane; use get_walk_features.

Data tools:
- get_walk_data: day-level walk activity, served vault-first with
  ordered live fallback. Use prefer_source=vault for cache-only reads
  and prefer_source=live to force a refresh.
- get_trivia_data / get_sugarvita_data: game metrics with normalized
  scores.
- get_walk_features: aggregate walk statistics for modeling.

Admin tools:
- policy_explain shows the effective rule before you call.
- audit_query reads the privacy-scrubbed audit trail; corr_id links
  all events of one logical request across processes.

Errors come back as {"error":{"code","message","details"}}. The code
is stable; the message is not.`
}
