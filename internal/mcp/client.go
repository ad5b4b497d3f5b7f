package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client runs the MCP handshake over a Transport and issues tool calls.
// A Client is bound to one transport for its whole life.
type Client struct {
	info      Implementation
	transport Transport
	server    InitializeResult
}

func NewClient(info Implementation) *Client {
	return &Client{info: info}
}

// Connect starts t and performs the initialize handshake. On failure the
// transport is closed.
func (c *Client) Connect(ctx context.Context, t Transport) error {
	if err := t.Start(ctx); err != nil {
		return fmt.Errorf("Connect: %w", err)
	}

	resp, err := t.Send(ctx, &Request{
		JSONRPC: JSONRPCVersion,
		ID:      uuid.NewString(),
		Method:  MethodInitialize,
		Params: InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{},
			ClientInfo:      c.info,
		},
	})
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("Connect: initialize: %w", err)
	}
	if resp.Error != nil {
		_ = t.Close()
		return fmt.Errorf("Connect: initialize: %w", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &c.server); err != nil {
		_ = t.Close()
		return fmt.Errorf("Connect: initialize: %w: %v", ErrMalformedResult, err)
	}

	if err := t.Notify(ctx, &Request{JSONRPC: JSONRPCVersion, Method: MethodInitialized}); err != nil {
		_ = t.Close()
		return fmt.Errorf("Connect: %w", err)
	}

	c.transport = t
	return nil
}

// ServerInfo returns what the endpoint reported during initialize.
func (c *Client) ServerInfo() InitializeResult {
	return c.server
}

// CallTool invokes a tool. A non-empty callID is sent in params._meta; every
// request gets its own JSON-RPC id so callers reusing a call id never share
// a reply. A JSON-RPC error is returned as *RPCError.
func (c *Client) CallTool(ctx context.Context, callID string, params CallToolParams) (*CallToolResult, error) {
	if c.transport == nil {
		return nil, ErrNotConnected
	}
	if callID != "" {
		params.Meta = &CallMeta{CallID: callID}
	}

	resp, err := c.transport.Send(ctx, &Request{
		JSONRPC: JSONRPCVersion,
		ID:      uuid.NewString(),
		Method:  MethodToolsCall,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("CallTool: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("CallTool: %w: %v", ErrMalformedResult, err)
	}
	return &result, nil
}

func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}
