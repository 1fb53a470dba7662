package mcpclient

// Package mcpclient implements the client side of the line-delimited
// JSON-RPC protocol spoken by stdio tool servers: subprocess transport,
// initialize handshake, capability discovery, and tool invocation.
import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/types"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "openflux"
	clientVersion   = "1.0.0"
)

type handshakeState int

const (
	stateUninitialized handshakeState = iota
	stateInitializing
	stateInitialized
)

// Client wraps one tool server connection: transport, handshake state,
// and the tool catalog discovered from it. Not safe for concurrent use;
// the supervisor serializes access.
type Client struct {
	transport *StdioTransport
	conn      *Conn
	state     handshakeState

	serverInfo *types.MCPInitializeResult
	tools      map[string]*types.Tool
}

// NewClient spawns the tool server subprocess and wraps it. The
// handshake is a separate step so spawn and protocol failures stay
// distinguishable.
func NewClient(cfg types.ToolServerConfig) (*Client, error) {
	transport, err := NewStdioTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		transport: transport,
		conn:      transport.Conn(),
		tools:     make(map[string]*types.Tool),
	}, nil
}

// Initialize performs the initialize/initialized exchange. Required
// before any tool call.
func (c *Client) Initialize(ctx context.Context) error {
	if c.state == stateInitialized {
		return nil
	}
	c.state = stateInitializing

	req := &types.MCPRequest{
		JSONRPC: "2.0",
		ID:      c.conn.NextID(),
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"roots":    map[string]interface{}{"listChanged": true},
				"sampling": map[string]interface{}{},
			},
			"clientInfo": map[string]interface{}{
				"name":    clientName,
				"version": clientVersion,
			},
		},
	}

	resp, err := c.conn.Call(ctx, req)
	if err != nil {
		c.state = stateUninitialized
		return fmt.Errorf("%w: initialize: %v", ErrHandshakeFailed, err)
	}
	if resp.Error != nil {
		c.state = stateUninitialized
		return fmt.Errorf("%w: server rejected initialize: %s", ErrHandshakeFailed, resp.Error.Message)
	}

	if resp.Result != nil {
		var info types.MCPInitializeResult
		if raw, err := json.Marshal(resp.Result); err == nil {
			if err := json.Unmarshal(raw, &info); err == nil {
				c.serverInfo = &info
			}
		}
	}

	if err := c.conn.Notify(&types.MCPRequest{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	}); err != nil {
		c.state = stateUninitialized
		return fmt.Errorf("%w: initialized notification: %v", ErrHandshakeFailed, err)
	}

	c.state = stateInitialized
	if c.serverInfo != nil {
		log.Info().
			Str("server", c.serverInfo.ServerInfo.Name).
			Str("version", c.serverInfo.ServerInfo.Version).
			Msg("Tool server handshake complete")
	} else {
		log.Info().Msg("Tool server handshake complete")
	}
	return nil
}

// DiscoverTools queries tools/list and rebuilds the catalog. Discovery
// failure is non-fatal: it degrades to an empty catalog and downstream
// resolution reports the capability gap per operation.
func (c *Client) DiscoverTools(ctx context.Context) error {
	if c.state != stateInitialized {
		return fmt.Errorf("%w: discovery before handshake", ErrHandshakeFailed)
	}

	resp, err := c.conn.Call(ctx, &types.MCPRequest{
		JSONRPC: "2.0",
		ID:      c.conn.NextID(),
		Method:  "tools/list",
	})
	if err != nil {
		log.Warn().Err(err).Msg("Tool discovery failed, continuing with empty catalog")
		c.tools = make(map[string]*types.Tool)
		return err
	}
	if resp.Error != nil {
		log.Warn().Str("error", resp.Error.Message).Msg("Server rejected tools/list, continuing with empty catalog")
		c.tools = make(map[string]*types.Tool)
		return fmt.Errorf("tools/list: %s", resp.Error.Message)
	}

	catalog := make(map[string]*types.Tool)
	if result, ok := resp.Result.(map[string]interface{}); ok {
		if raw, err := json.Marshal(result["tools"]); err == nil {
			var tools []*types.Tool
			if err := json.Unmarshal(raw, &tools); err == nil {
				for _, tool := range tools {
					if tool != nil && tool.Name != "" {
						catalog[tool.Name] = tool
					}
				}
			}
		}
	}
	c.tools = catalog

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	log.Info().Strs("tools", names).Msg("Tool catalog discovered")
	return nil
}

// Tools returns the discovered catalog. Read-only until the next
// reconnect rebuilds it.
func (c *Client) Tools() map[string]*types.Tool {
	return c.tools
}

// ServerInfo returns the initialize result, if the server sent one.
func (c *Client) ServerInfo() *types.MCPInitializeResult {
	return c.serverInfo
}

// CallTool invokes a tool by its concrete catalog name with a fresh
// request id and classifies the outcome.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	if c.state != stateInitialized {
		return nil, fmt.Errorf("%w: tool call before handshake", ErrHandshakeFailed)
	}

	log.Debug().Str("tool", name).Interface("args", args).Msg("Calling tool")

	resp, err := c.conn.Call(ctx, &types.MCPRequest{
		JSONRPC: "2.0",
		ID:      c.conn.NextID(),
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		return nil, err
	}
	return ClassifyCallResult(resp)
}

// Alive reports whether the underlying subprocess is still running.
func (c *Client) Alive() bool {
	return c.transport.Alive()
}

// Ping is a best-effort liveness write with no response wait.
func (c *Client) Ping() error {
	return c.transport.Ping()
}

// PID returns the subprocess id.
func (c *Client) PID() int {
	return c.transport.PID()
}

// StderrTail returns captured subprocess stderr for diagnostics.
func (c *Client) StderrTail() string {
	return c.transport.StderrTail()
}

// Close tears the subprocess down. Idempotent.
func (c *Client) Close() error {
	c.state = stateUninitialized
	c.tools = make(map[string]*types.Tool)
	return c.transport.Close()
}
