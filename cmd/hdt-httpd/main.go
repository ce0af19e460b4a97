// hdt-httpd: read-only HTTP surface over the governed pipeline.
//
// Serves the same purpose-gated walk data as the MCP gateway for
// dashboards that speak plain HTTP. It builds the same governor stack,
// including the sources subprocess, so responses go through identical
// policy checks.
//
// Usage:
//
//	hdt-httpd serve [-config path]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/config"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateway"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/httpapi"
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
		fmt.Printf("hdt-httpd v%s\n", gateway.Version)
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

	deps, cleanup := gateway.Build(cfg)
	defer cleanup()

	r := httpapi.New(deps.Governor, deps.Policy, cfg.ClientID)
	log.Printf("listening on %s", cfg.HTTP.Addr)
	return r.Run(cfg.HTTP.Addr)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `hdt-httpd v%s — read-only HTTP surface

Usage:
  hdt-httpd serve [-config path]   Start the HTTP server
`, gateway.Version)
}
