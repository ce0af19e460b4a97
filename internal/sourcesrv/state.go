// Package sourcesrv implements the connector-facing MCP server that
// the gateway spawns as a subprocess. It fronts the external providers
// and keeps the correlation context pushed by the gateway so its own
// audit events join the caller's trail.
package sourcesrv

import (
	"sync"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
)

// State holds the ambient correlation context for the subprocess.
// The gateway updates it through the corr_set tool before data calls.
type State struct {
	mu sync.Mutex
	cc corr.Context
}

// Set replaces the current correlation context.
func (s *State) Set(cc corr.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cc = cc
}

// Current returns the last pushed correlation context.
func (s *State) Current() corr.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cc
}
