// hdt-sources: connector-facing MCP server.
//
// The gateway spawns this binary as a subprocess and talks to it over
// stdio. It fronts the external wearable and gamified providers; it
// holds provider credentials only for the duration of a call and never
// persists anything.
//
// Usage:
//
//	hdt-sources serve [-config path]    # Start MCP server (stdio transport)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/config"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/sourcesrv"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("hdt-sources v%s\n", sourcesrv.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	return server.ServeStdio(sourcesrv.New(cfg))
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `hdt-sources v%s — connector-facing MCP server

Usage:
  hdt-sources serve [-config path]   Start the MCP server (stdio transport)

This binary is normally spawned by hdt-gateway; running it by hand is
useful for debugging connector behavior with an MCP inspector.
`, sourcesrv.Version)
}
