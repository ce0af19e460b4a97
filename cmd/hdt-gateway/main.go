// hdt-gateway: policy-governed health-data gateway (MCP server).
//
// The gateway exposes purpose-gated access to health streams over
// MCP's stdio transport. It spawns hdt-sources as a subprocess for
// live connector calls and caches walk data in an embedded vault.
//
// Usage:
//
//	hdt-gateway serve [-config path]    # Start MCP server (stdio transport)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/config"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateway"
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
		fmt.Printf("hdt-gateway v%s\n", gateway.Version)
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

	s, cleanup, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// stdout belongs to the stdio transport; everything else goes to
	// stderr.
	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `hdt-gateway v%s — policy-governed health-data gateway

Usage:
  hdt-gateway serve [-config path]   Start the MCP server (stdio transport)

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "hdt": {
        "command": "hdt-gateway",
        "args": ["serve"]
      }
    }
  }
`, gateway.Version)
}
