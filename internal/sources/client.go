// Package sources owns the persistent session to the connector
// subprocess (hdt-sources), an MCP server on its standard streams.
//
// The transport is a single shared channel, so all tool calls are
// serialized through one admission lock; connecting and reconnecting
// are serialized through a second lock so concurrent first use cannot
// spawn duplicate subprocesses. On a transport failure the client
// closes the session, reconnects exactly once, and retries the same
// call; a second failure keeps the typed envelope but wraps the
// transport error. A call that exhausts its deadline is a timeout,
// not a transport failure, and is never retried.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/corr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
)

// corrSetTool is the subprocess's correlation handshake tool. It is
// the one call that never triggers a correlation push of its own.
const corrSetTool = "corr_set"

// State is the session lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateCalling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateCalling:
		return "calling"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// session is the slice of the MCP client the sources client needs.
// It is a package-level seam so tests can inject a fake transport.
type session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	Close() error
}

// newSession is a package-level var to allow test injection. The
// default spawns the subprocess over stdio.
var newSession = func(command string, args []string) (session, error) {
	return client.NewStdioMCPClient(command, nil, args...)
}

// Client maintains one persistent session with the connector
// subprocess.
type Client struct {
	command string
	args    []string
	timeout time.Duration

	// callMu is the admission lock: arrival order equals transport
	// order. connMu guards the session handle and state transitions.
	callMu sync.Mutex
	connMu sync.Mutex

	sess     session
	state    State
	lastCorr corr.Context
	pushed   bool
}

// New creates a client that will spawn command args... on first use.
func New(command string, args ...string) *Client {
	return &Client{
		command: command,
		args:    args,
		timeout: 30 * time.Second,
		state:   StateDisconnected,
	}
}

// SetTimeout bounds each individual tool call.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// State reports the current session state.
func (c *Client) State() State {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.state
}

// Close terminates the session and the subprocess. The client cannot
// be reused afterwards.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	var err error
	if c.sess != nil {
		err = c.sess.Close()
		c.sess = nil
	}
	c.state = StateClosed
	return err
}

// connect spawns the subprocess and performs the handshake. Any step's
// failure returns the client to Disconnected.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	switch c.state {
	case StateClosed:
		return gateerr.New(gateerr.CodeInternal, "sources client is closed")
	case StateReady, StateCalling:
		return nil
	}

	c.state = StateConnecting
	sess, err := newSession(c.command, c.args)
	if err != nil {
		c.state = StateDisconnected
		return gateerr.New(gateerr.CodeUpstream, "spawn sources subprocess: %v", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "hdt-gateway", Version: "1.0.0"}
	if _, err := sess.Initialize(ctx, initReq); err != nil {
		_ = sess.Close()
		c.state = StateDisconnected
		return gateerr.New(gateerr.CodeUpstream, "sources handshake: %v", err)
	}

	c.sess = sess
	c.state = StateReady
	c.pushed = false
	return nil
}

// disconnect drops the session after a transport failure.
func (c *Client) disconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
	c.pushed = false
}

// CallTool invokes a named tool on the subprocess and decodes its JSON
// response. Tool-level errors (the subprocess executed the call and
// returned an error envelope) are returned as typed errors and do not
// trigger a reconnect; transport errors do, once.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	c.syncCorrelation(ctx, name)

	result, err := c.doCall(ctx, name, args)
	if err == nil {
		return decodeResult(result)
	}
	if isTimeout(err) {
		return nil, err
	}

	// Transport failure: reconnect exactly once and retry the same
	// call.
	log.Printf("WARNING: sources transport failed on %s, reconnecting: %v", name, err)
	c.disconnect()
	if cerr := c.connect(ctx); cerr != nil {
		return nil, cerr
	}
	c.syncCorrelation(ctx, name)

	result, err = c.doCall(ctx, name, args)
	if err != nil {
		if isTimeout(err) {
			return nil, err
		}
		return nil, gateerr.Wrap(gateerr.CodeUpstream, err, "sources call %s: %v", name, err)
	}
	return decodeResult(result)
}

// isTimeout reports whether err is the typed deadline failure doCall
// produces when a call's context expires.
func isTimeout(err error) bool {
	var ge *gateerr.Error
	return errors.As(err, &ge) && ge.Code == gateerr.CodeTimeout
}

// doCall performs one transport round-trip under the per-call timeout.
func (c *Client) doCall(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c.connMu.Lock()
	sess := c.sess
	if c.state == StateReady {
		c.state = StateCalling
	}
	c.connMu.Unlock()
	if sess == nil {
		return nil, fmt.Errorf("no session")
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := sess.CallTool(callCtx, req)

	c.connMu.Lock()
	if c.state == StateCalling {
		c.state = StateReady
	}
	c.connMu.Unlock()

	// Expiry of either deadline (per-call or the caller's own) is a
	// timeout, not a broken transport.
	if err != nil && callCtx.Err() != nil {
		return nil, gateerr.New(gateerr.CodeTimeout, "sources call %s timed out", name)
	}
	return result, err
}

// syncCorrelation pushes the caller's correlation context into the
// subprocess's ambient state when it changed since the last push, so
// the subprocess's own audit events join the caller's trail. The push
// is best-effort: a failed push must not fail the data call.
func (c *Client) syncCorrelation(ctx context.Context, forTool string) {
	if forTool == corrSetTool {
		return
	}
	cc := corr.From(ctx)
	if cc.IsZero() {
		return
	}

	c.connMu.Lock()
	upToDate := c.pushed && cc == c.lastCorr
	c.connMu.Unlock()
	if upToDate {
		return
	}

	_, err := c.doCall(ctx, corrSetTool, map[string]any{
		"corr_id":    cc.CorrID,
		"request_id": cc.RequestID,
	})
	if err != nil {
		log.Printf("WARNING: correlation push failed: %v", err)
		return
	}
	c.connMu.Lock()
	c.lastCorr = cc
	c.pushed = true
	c.connMu.Unlock()
}

// ListTools returns the names of the tools the subprocess exposes.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	c.connMu.Lock()
	sess := c.sess
	c.connMu.Unlock()

	result, err := sess.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, gateerr.New(gateerr.CodeUpstream, "sources list tools: %v", err)
	}
	names := make([]string, 0, len(result.Tools))
	for _, t := range result.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// decodeResult turns an MCP tool result into a JSON object. A result
// flagged IsError carries the wire error envelope and becomes a typed
// error.
func decodeResult(result *mcp.CallToolResult) (map[string]any, error) {
	text := resultText(result)
	if result != nil && result.IsError {
		return nil, envelopeError(text)
	}
	if text == "" {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, gateerr.New(gateerr.CodeUpstream, "sources returned malformed payload")
	}
	return payload, nil
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// envelopeError parses {"error": {"code", "message", "details"}} from
// the subprocess into a typed error, falling back to upstream_error
// for free-form text.
func envelopeError(text string) error {
	var wire struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err == nil && wire.Error.Code != "" {
		e := gateerr.New(wire.Error.Code, "%s", wire.Error.Message)
		if len(wire.Error.Details) > 0 {
			e = e.WithDetails(wire.Error.Details)
		}
		return e
	}
	return gateerr.New(gateerr.CodeUpstream, "%s", text)
}
