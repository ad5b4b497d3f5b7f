package datastore_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/mcpstore/internal/datastore"
	"github.com/triage-ai/mcpstore/internal/mcp"
	"github.com/triage-ai/mcpstore/internal/mcp/mcptest"
	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/query"
	"github.com/triage-ai/mcpstore/internal/schema"
	"github.com/triage-ai/mcpstore/internal/session"
	"github.com/triage-ai/mcpstore/internal/storeerr"
)

var widgets = model.Descriptor{
	Namespace:  "acct",
	PluralName: "Widgets",
	Properties: map[string]model.Property{
		"id":   {Kind: model.KindUniqueID},
		"name": {Kind: model.KindText, Required: true},
	},
}

// memoryStore implements the widget tools over a map, validating every
// argument payload against the compiled input schema.
type memoryStore struct {
	mu    sync.Mutex
	rows  map[string]map[string]any
	next  int
	tools map[string]*schema.ToolDescriptor
}

func newMemoryStore(t *testing.T) *memoryStore {
	t.Helper()
	tools, err := schema.ToolsForModel(widgets, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := &memoryStore{rows: map[string]map[string]any{}, tools: map[string]*schema.ToolDescriptor{}}
	for _, td := range tools {
		s.tools[td.Name] = td
	}
	return s
}

func (s *memoryStore) handle(_ context.Context, name string, raw json.RawMessage) (*mcp.CallToolResult, *mcp.RPCError) {
	td, ok := s.tools[name]
	if !ok {
		return nil, &mcp.RPCError{Code: -32602, Message: "unknown tool " + name}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &mcp.RPCError{Code: -32602, Message: err.Error()}
	}
	if err := schema.Validate(td.InputSchema, args); err != nil {
		return mcptest.ErrorResult(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.HasSuffix(name, "_save"):
		return mcptest.TextResult(s.put(args)), nil
	case strings.HasSuffix(name, "_retrieve"):
		row, ok := s.rows[args["id"].(string)]
		if !ok {
			return &mcp.CallToolResult{IsError: true, Error: json.RawMessage(`"not found"`)}, nil
		}
		return mcptest.TextResult(row), nil
	case strings.HasSuffix(name, "_delete"):
		delete(s.rows, args["id"].(string))
		return &mcp.CallToolResult{}, nil
	case strings.HasSuffix(name, "_search"):
		out := []map[string]any{}
		for _, row := range s.rows {
			out = append(out, row)
		}
		return mcptest.TextResult(map[string]any{"instances": out}), nil
	case strings.HasSuffix(name, "_bulkinsert"):
		for _, item := range args["items"].([]any) {
			s.put(item.(map[string]any))
		}
		return &mcp.CallToolResult{}, nil
	case strings.HasSuffix(name, "_bulkdelete"):
		for _, id := range args["ids"].([]any) {
			delete(s.rows, id.(string))
		}
		return &mcp.CallToolResult{}, nil
	}
	return nil, &mcp.RPCError{Code: -32601, Message: "unhandled " + name}
}

func (s *memoryStore) put(obj map[string]any) map[string]any {
	row := map[string]any{}
	for k, v := range obj {
		row[k] = v
	}
	id, _ := row["id"].(string)
	if id == "" {
		s.next++
		id = "w" + strconv.Itoa(s.next)
		row["id"] = id
	}
	s.rows[id] = row
	return row
}

func newEndpointDispatcher(t *testing.T, kind mcp.Kind) (*datastore.Dispatcher, *mcptest.Server) {
	t.Helper()
	store := newMemoryStore(t)
	srv := mcptest.NewServer(store.handle)
	t.Cleanup(srv.Close)

	url := srv.StreamableURL()
	if kind == mcp.KindEventStream {
		url = srv.EventStreamURL()
	}
	sessions, err := session.NewManager(session.Config{
		Transport:   kind,
		URL:         url,
		DirectToken: "secret",
	}, session.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sessions.Close() })

	d, err := datastore.NewDispatcher(datastore.Config{Sessions: sessions, Logger: zap.NewNop()})
	if err != nil {
		t.Fatal(err)
	}
	return d, srv
}

func TestDispatcher_AgainstEndpoint(t *testing.T) {
	for _, kind := range []mcp.Kind{mcp.KindStreamable, mcp.KindEventStream} {
		t.Run(string(kind), func(t *testing.T) {
			d, srv := newEndpointDispatcher(t, kind)
			ctx := context.Background()

			saved, err := d.Save(ctx, model.NewRecord(widgets, map[string]any{"name": "Foo"}))
			if err != nil {
				t.Fatal(err)
			}
			id, _ := saved["id"].(string)
			if id == "" {
				t.Fatalf("expected generated id, got %v", saved)
			}

			got, err := d.Retrieve(ctx, widgets, id)
			if err != nil {
				t.Fatal(err)
			}
			if got["name"] != "Foo" {
				t.Fatalf("unexpected retrieve result %v", got)
			}

			err = d.BulkInsert(ctx, widgets, []model.Instance{
				model.NewRecord(widgets, map[string]any{"id": "b1", "name": "Bar"}),
				model.NewRecord(widgets, map[string]any{"id": "b2", "name": "Baz"}),
			})
			if err != nil {
				t.Fatal(err)
			}

			q := query.New(query.Property("name", query.Eq, "Bar")).WithTake(10)
			res, err := d.Search(ctx, widgets, q)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Instances) != 3 {
				t.Fatalf("expected 3 instances, got %d", len(res.Instances))
			}

			if err := d.BulkDelete(ctx, widgets, []string{"b1", "b2"}); err != nil {
				t.Fatal(err)
			}
			if err := d.Delete(ctx, widgets, id); err != nil {
				t.Fatal(err)
			}

			_, err = d.Retrieve(ctx, widgets, id)
			if !errors.Is(err, storeerr.ErrToolInvocation) || !strings.Contains(err.Error(), "not found") {
				t.Fatalf("expected not found ToolInvocationError, got %v", err)
			}

			if srv.Initializes() != 1 {
				t.Fatalf("expected one handshake for the whole sequence, got %d", srv.Initializes())
			}
			for _, c := range srv.Calls() {
				if c.Header.Get("Authorization") != "Bearer secret" {
					t.Fatalf("call %s missing bearer header", c.Name)
				}
			}
		})
	}
}

func TestDispatcher_RemoteValidationFailure(t *testing.T) {
	d, _ := newEndpointDispatcher(t, mcp.KindStreamable)

	// name is required; the endpoint rejects the payload as a tool error.
	_, err := d.Save(context.Background(), model.NewRecord(widgets, map[string]any{"id": "x"}))
	if !errors.Is(err, storeerr.ErrToolInvocation) {
		t.Fatalf("expected ToolInvocationError, got %v", err)
	}
}
