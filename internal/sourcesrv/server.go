package sourcesrv

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/config"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/connectors"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/telemetry"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the connector-facing MCP server. The gateway spawns it
// over stdio and drives it through the walk_fetch, trivia_fetch,
// sugarvita_fetch and corr_set tools.
func New(cfg *config.Config) *server.MCPServer {
	audit := telemetry.NewLog(cfg.Audit.SourcesPath, cfg.Audit.Salt)
	state := &State{}

	fetchers := map[string]WalkFetcher{
		"wearable": connectors.NewWalkProvider(cfg.Providers.WearableBaseURL),
		"gamehub":  connectors.NewWalkProvider(cfg.Providers.GamehubBaseURL),
	}
	games := connectors.NewGamesProvider(cfg.Providers.GamehubBaseURL)

	s := server.NewMCPServer(
		"hdt-sources",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	corrTool := NewCorrSetTool(state)
	s.AddTool(corrTool.Definition(), corrTool.Handle)

	walkTool := NewWalkFetchTool(fetchers, audit, state)
	s.AddTool(walkTool.Definition(), walkTool.Handle)

	triviaTool := NewTriviaFetchTool(games, audit, state)
	s.AddTool(triviaTool.Definition(), triviaTool.Handle)

	sugarVitaTool := NewSugarVitaFetchTool(games, audit, state)
	s.AddTool(sugarVitaTool.Definition(), sugarVitaTool.Handle)

	return s
}
