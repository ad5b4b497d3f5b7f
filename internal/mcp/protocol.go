// Package mcp implements the client side of the Model Context Protocol
// tool-calling exchange: JSON-RPC 2.0 envelopes, the initialize handshake,
// tools/call, and the streamable HTTP and event-stream transports.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	JSONRPCVersion  = "2.0"
	ProtocolVersion = "2025-03-26"

	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsCall   = "tools/call"
)

// ErrNotConnected is returned when a client is used before Connect succeeds.
var ErrNotConnected = errors.New("mcp: client not connected")

// ErrDuplicateID is returned when a request id is already awaiting a reply.
var ErrDuplicateID = errors.New("mcp: request id already in flight")

// ErrMalformedResult is returned when a result cannot be decoded.
var ErrMalformedResult = errors.New("mcp: malformed result")

// Request is an outgoing JSON-RPC 2.0 request. An empty ID makes it a
// notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an incoming JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IDString returns the response id as a string. Numeric ids keep their JSON text.
func (r *Response) IDString() string {
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	return string(r.ID)
}

// message is any JSON-RPC message read from a stream; Method is set for
// server-initiated requests and notifications.
type message struct {
	Response
	Method string `json:"method,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Implementation identifies a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ServerInfo      Implementation `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// CallToolParams is the tools/call payload.
type CallToolParams struct {
	Name      string    `json:"name"`
	Arguments any       `json:"arguments"`
	Meta      *CallMeta `json:"_meta,omitempty"`
}

// CallMeta travels in params._meta. CallID is for correlation only; the
// JSON-RPC request id is chosen by the client.
type CallMeta struct {
	CallID string `json:"callId,omitempty"`
}

// ContentBlock is one entry of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the tools/call result. Error is not part of the MCP
// result shape but some endpoints report their error payload there.
type CallToolResult struct {
	Content           []ContentBlock  `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
	Error             json.RawMessage `json:"error,omitempty"`
}
