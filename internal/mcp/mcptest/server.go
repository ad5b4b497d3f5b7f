// Package mcptest provides an in-process MCP endpoint that speaks both the
// streamable HTTP and event-stream transports.
package mcptest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"

	"github.com/triage-ai/mcpstore/internal/mcp"
)

// Handler answers a tools/call. Returning a non-nil *mcp.RPCError sends a
// JSON-RPC error instead of a result.
type Handler func(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, *mcp.RPCError)

// Call is one recorded tools/call.
type Call struct {
	ID        string // JSON-RPC request id
	CallID    string // params._meta.callId
	Name      string
	Arguments json.RawMessage
	Header    http.Header
}

type Option func(*Server)

// WithStreamedResponses makes the streamable endpoint answer requests with
// an event stream rather than a JSON body.
func WithStreamedResponses() Option {
	return func(s *Server) { s.streamed = true }
}

// WithAuthorizer rejects requests with 401 when fn returns false.
func WithAuthorizer(fn func(http.Header) bool) Option {
	return func(s *Server) { s.authorize = fn }
}

// Server is a fake MCP endpoint backed by httptest.
type Server struct {
	*httptest.Server

	handler   Handler
	streamed  bool
	authorize func(http.Header) bool
	closing   chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	initHeaders []http.Header
	calls       []Call
	deletes     int
	streams     map[string]chan []byte
}

func NewServer(h Handler, opts ...Option) *Server {
	s := &Server{
		handler: h,
		closing: make(chan struct{}),
		streams: make(map[string]chan []byte),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.serveStreamable)
	mux.HandleFunc("/sse", s.serveEventStream)
	mux.HandleFunc("/messages", s.serveMessages)
	s.Server = httptest.NewServer(mux)
	return s
}

// StreamableURL is the endpoint for mcp.KindStreamable.
func (s *Server) StreamableURL() string { return s.URL + "/mcp" }

// EventStreamURL is the endpoint for mcp.KindEventStream.
func (s *Server) EventStreamURL() string { return s.URL + "/sse" }

// Initializes returns how many initialize requests were served.
func (s *Server) Initializes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.initHeaders)
}

// InitializeHeaders returns the headers of each initialize request.
func (s *Server) InitializeHeaders() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.initHeaders...)
}

// Calls returns the recorded tools/call requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Deletes returns how many session DELETE requests were received.
func (s *Server) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Close ends open event streams before shutting the server down.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	s.Server.Close()
}

type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type outgoing struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *mcp.RPCError   `json:"error,omitempty"`
}

// handle returns nil for notifications.
func (s *Server) handle(ctx context.Context, in incoming, header http.Header) *outgoing {
	if len(in.ID) == 0 {
		return nil
	}
	out := &outgoing{JSONRPC: mcp.JSONRPCVersion, ID: in.ID}

	switch in.Method {
	case mcp.MethodInitialize:
		s.mu.Lock()
		s.initHeaders = append(s.initHeaders, header.Clone())
		s.mu.Unlock()
		out.Result = mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      mcp.Implementation{Name: "mcptest", Version: "0.0.0"},
		}
	case mcp.MethodToolsCall:
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
			Meta      struct {
				CallID string `json:"callId"`
			} `json:"_meta"`
		}
		if err := json.Unmarshal(in.Params, &params); err != nil {
			out.Error = &mcp.RPCError{Code: -32602, Message: err.Error()}
			return out
		}
		var id string
		_ = json.Unmarshal(in.ID, &id)
		s.mu.Lock()
		s.calls = append(s.calls, Call{ID: id, CallID: params.Meta.CallID, Name: params.Name, Arguments: params.Arguments, Header: header.Clone()})
		s.mu.Unlock()

		res, rpcErr := s.handler(ctx, params.Name, params.Arguments)
		if rpcErr != nil {
			out.Error = rpcErr
		} else {
			out.Result = res
		}
	default:
		out.Error = &mcp.RPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", in.Method)}
	}
	return out
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if s.authorize != nil && !s.authorize(r.Header) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) serveStreamable(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	switch r.Method {
	case http.MethodDelete:
		s.mu.Lock()
		s.deletes++
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in incoming
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Method == mcp.MethodInitialize {
		w.Header().Set("Mcp-Session-Id", uuid.NewString())
	}

	out := s.handle(r.Context(), in, r.Header)
	if out == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	body, _ := json.Marshal(out)

	if s.streamed {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) serveEventStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := uuid.NewString()
	ch := make(chan []byte, 16)
	s.mu.Lock()
	s.streams[sessionID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, sessionID)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", sessionID)
	flusher.Flush()

	for {
		select {
		case msg := <-ch:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		}
	}
}

func (s *Server) serveMessages(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	ch, ok := s.streams[r.URL.Query().Get("sessionId")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var in incoming
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if out := s.handle(r.Context(), in, r.Header); out != nil {
		body, _ := json.Marshal(out)
		select {
		case ch <- body:
		case <-r.Context().Done():
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

// TextResult wraps v as the JSON text of a single content block.
func TextResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: string(b)}}}
}

// ErrorResult builds an isError result carrying message as text.
func ErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.ContentBlock{{Type: "text", Text: message}},
	}
}
