// Package datastore maps model operations onto remote tool calls.
//
// Each Dispatcher method compiles the tool descriptor for the model and
// operation, makes sure the session is connected, sends the call envelope
// and decodes the first content entry of the response as JSON.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/mcpstore/internal/mcp"
	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/schema"
	"github.com/triage-ai/mcpstore/internal/session"
	"github.com/triage-ai/mcpstore/internal/storage"
	"github.com/triage-ai/mcpstore/internal/storeerr"
)

// Sessions is the part of session.Manager the dispatcher needs.
type Sessions interface {
	EnsureConnected(ctx context.Context) (session.Client, error)
	Invalidate(c session.Client)
}

type Config struct {
	Sessions Sessions
	// Naming overrides DefaultToolName.
	Naming schema.NameStrategy
	Events storage.EventWriter
	Logger *zap.Logger
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	sessions Sessions
	naming   schema.NameStrategy
	events   storage.EventWriter
	logger   *zap.Logger
}

// SearchResult is the decoded output of a search call.
type SearchResult struct {
	Instances []map[string]any `json:"instances"`
	Page      map[string]any   `json:"page,omitempty"`
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("datastore: sessions are required")
	}
	d := &Dispatcher{
		sessions: cfg.Sessions,
		naming:   cfg.Naming,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}
	if d.naming == nil {
		d.naming = schema.DefaultToolName
	}
	if d.events == nil {
		d.events = storage.Nop{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d, nil
}

type callIDKey struct{}

// WithCallID makes the next call issued with ctx use id as its correlation id.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

func callIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(callIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Save creates or updates inst and returns the stored object.
func (d *Dispatcher) Save(ctx context.Context, inst model.Instance) (map[string]any, error) {
	obj, err := inst.ToObject(ctx)
	if err != nil {
		return nil, fmt.Errorf("Save: %w", err)
	}
	raw, err := d.invoke(ctx, inst.Model(), schema.OpSave, obj, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw, false)
}

// Retrieve returns the instance with id, or nil when the endpoint reports none.
func (d *Dispatcher) Retrieve(ctx context.Context, m model.Descriptor, id string) (map[string]any, error) {
	raw, err := d.invoke(ctx, m, schema.OpRetrieve, map[string]any{"id": id}, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw, true)
}

func (d *Dispatcher) Delete(ctx context.Context, m model.Descriptor, id string) error {
	_, err := d.invoke(ctx, m, schema.OpDelete, map[string]any{"id": id}, false)
	return err
}

// Search sends query as the tool arguments without inspecting it. A nil
// query is sent as an empty object.
func (d *Dispatcher) Search(ctx context.Context, m model.Descriptor, query any) (*SearchResult, error) {
	if q, isMap := query.(map[string]any); query == nil || (isMap && q == nil) {
		query = map[string]any{}
	}
	raw, err := d.invoke(ctx, m, schema.OpSearch, query, true)
	if err != nil {
		return nil, err
	}
	var out SearchResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, storeerr.Wrap(storeerr.MalformedResponse, "decode search result", err)
	}
	if out.Instances == nil {
		out.Instances = []map[string]any{}
	}
	return &out, nil
}

// BulkInsert saves every instance in one call. All instances must belong to m.
func (d *Dispatcher) BulkInsert(ctx context.Context, m model.Descriptor, instances []model.Instance) error {
	items := make([]map[string]any, 0, len(instances))
	for i, inst := range instances {
		if inst.Model().Key() != m.Key() {
			return fmt.Errorf("BulkInsert: item %d is a %s, not %s", i, inst.Model().Key(), m.Key())
		}
		obj, err := inst.ToObject(ctx)
		if err != nil {
			return fmt.Errorf("BulkInsert: item %d: %w", i, err)
		}
		items = append(items, obj)
	}
	_, err := d.invoke(ctx, m, schema.OpBulkInsert, map[string]any{"items": items}, false)
	return err
}

func (d *Dispatcher) BulkDelete(ctx context.Context, m model.Descriptor, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	_, err := d.invoke(ctx, m, schema.OpBulkDelete, map[string]any{"ids": ids}, false)
	return err
}

// invoke runs one call. When wantResult is false the response payload is
// ignored and nil is returned on success.
func (d *Dispatcher) invoke(ctx context.Context, m model.Descriptor, op schema.Operation, args any, wantResult bool) (json.RawMessage, error) {
	start := time.Now()
	callID := callIDFrom(ctx)
	event := &storage.CallEvent{
		CallID:    callID,
		Timestamp: start.UTC(),
		Namespace: m.Namespace,
		Model:     m.PluralName,
		Operation: string(op),
	}

	raw, err := d.call(ctx, event, m, op, args, wantResult)

	event.LatencyMs = float32(time.Since(start).Microseconds()) / 1000
	if err != nil {
		event.Outcome = storage.OutcomeError
		event.ErrorKind = string(storeerr.KindOf(err))
		event.Error = err.Error()
		d.logger.Warn("tool call failed",
			zap.String("call_id", callID),
			zap.String("tool", event.ToolName),
			zap.String("error_kind", event.ErrorKind),
			zap.Error(err),
		)
	} else {
		event.Outcome = storage.OutcomeOK
		d.logger.Debug("tool call completed",
			zap.String("call_id", callID),
			zap.String("tool", event.ToolName),
			zap.Float32("latency_ms", event.LatencyMs),
		)
	}
	d.events.Write(event)
	return raw, err
}

func (d *Dispatcher) call(ctx context.Context, event *storage.CallEvent, m model.Descriptor, op schema.Operation, args any, wantResult bool) (json.RawMessage, error) {
	tool, err := schema.CompileToolDescriptor(m, op, d.naming)
	if err != nil {
		return nil, err
	}
	event.ToolName = tool.Name

	client, err := d.sessions.EnsureConnected(ctx)
	if err != nil {
		if storeerr.KindOf(err) == "" {
			err = storeerr.Wrap(storeerr.Connection, "session unavailable", err)
		}
		return nil, err
	}

	res, err := client.CallTool(ctx, event.CallID, mcp.CallToolParams{
		Name:      tool.Name,
		Arguments: args,
	})
	if err != nil {
		var rpcErr *mcp.RPCError
		switch {
		case errors.As(err, &rpcErr):
			return nil, storeerr.Wrap(storeerr.ToolInvocation, tool.Name+": "+rpcErr.Message, err).WithPayload(rpcErr)
		case errors.Is(err, mcp.ErrMalformedResult):
			return nil, storeerr.Wrap(storeerr.MalformedResponse, tool.Name, err)
		default:
			d.sessions.Invalidate(client)
			return nil, storeerr.Wrap(storeerr.Connection, tool.Name, err)
		}
	}

	if res.IsError {
		return nil, toolError(tool.Name, res)
	}
	if !wantResult {
		return nil, nil
	}
	return resultPayload(tool.Name, res)
}

// toolError builds the ToolInvocationError for an isError response. The
// payload is the decoded "error" member when present, else the content text.
func toolError(toolName string, res *mcp.CallToolResult) error {
	var payload any
	if len(res.Error) > 0 {
		if err := json.Unmarshal(res.Error, &payload); err != nil {
			payload = string(res.Error)
		}
	} else if len(res.Content) > 0 {
		payload = res.Content[0].Text
	}

	msg := "remote error"
	switch p := payload.(type) {
	case string:
		if p != "" {
			msg = p
		}
	case nil:
	default:
		if b, err := json.Marshal(p); err == nil {
			msg = string(b)
		}
	}
	return storeerr.New(storeerr.ToolInvocation, toolName+": "+msg).WithPayload(payload)
}

func resultPayload(toolName string, res *mcp.CallToolResult) (json.RawMessage, error) {
	if len(res.Content) > 0 {
		text := res.Content[0].Text
		if text == "" {
			return nil, storeerr.Newf(storeerr.MalformedResponse, "%s: first content entry has no text", toolName)
		}
		if !json.Valid([]byte(text)) {
			return nil, storeerr.Newf(storeerr.MalformedResponse, "%s: content text is not JSON", toolName)
		}
		return json.RawMessage(text), nil
	}
	if len(res.StructuredContent) > 0 {
		return res.StructuredContent, nil
	}
	return nil, storeerr.Newf(storeerr.MalformedResponse, "%s: response has no content", toolName)
}

func decodeObject(raw json.RawMessage, allowNull bool) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, storeerr.Wrap(storeerr.MalformedResponse, "result is not an object", err)
	}
	if out == nil && !allowNull {
		return nil, storeerr.New(storeerr.MalformedResponse, "result is null")
	}
	return out, nil
}
