// Package server exposes the datastore dispatcher over gRPC.
package server

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/mcpstore/internal/auth"
	"github.com/triage-ai/mcpstore/internal/datastore"
	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/registry"
	"github.com/triage-ai/mcpstore/internal/schema"
	"github.com/triage-ai/mcpstore/internal/storeerr"
)

// CallIDHeader lets a caller choose the correlation id of the tool call.
const CallIDHeader = "x-call-id"

// Datastore is the operation set of datastore.Dispatcher.
type Datastore interface {
	Save(ctx context.Context, inst model.Instance) (map[string]any, error)
	Retrieve(ctx context.Context, m model.Descriptor, id string) (map[string]any, error)
	Delete(ctx context.Context, m model.Descriptor, id string) error
	Search(ctx context.Context, m model.Descriptor, query any) (*datastore.SearchResult, error)
	BulkInsert(ctx context.Context, m model.Descriptor, instances []model.Instance) error
	BulkDelete(ctx context.Context, m model.Descriptor, ids []string) error
}

// DatastoreServer implements DatastoreService.
//
// Model operations take "namespace" and "model" (the plural name) plus:
//
//	Save        instance: object        -> {instance: object}
//	Retrieve    id: string              -> {instance: object|null}
//	Delete      id: string              -> {}
//	Search      query: object           -> {instances: [object], page?: object}
//	BulkInsert  items: [object]         -> {}
//	BulkDelete  ids: [string]           -> {}
//
// ListTools takes an optional "namespace" and returns {tools: [...]};
// DescribeTool takes "name" and returns one tool.
type DatastoreServer struct {
	store    Datastore
	catalog  *model.Catalog
	registry registry.ToolRegistry
	naming   schema.NameStrategy
	auth     auth.Authenticator
	logger   *zap.Logger
}

type Config struct {
	Store   Datastore
	Catalog *model.Catalog
	// Registry serves ListTools and DescribeTool when set. Otherwise the
	// descriptors are compiled from Catalog.
	Registry      registry.ToolRegistry
	Naming        schema.NameStrategy
	Authenticator auth.Authenticator
	Logger        *zap.Logger
}

func NewDatastoreServer(cfg Config) (*DatastoreServer, error) {
	if cfg.Store == nil || cfg.Catalog == nil || cfg.Authenticator == nil {
		return nil, errors.New("server: store, catalog and authenticator are required")
	}
	s := &DatastoreServer{
		store:    cfg.Store,
		catalog:  cfg.Catalog,
		registry: cfg.Registry,
		naming:   cfg.Naming,
		auth:     cfg.Authenticator,
		logger:   cfg.Logger,
	}
	if s.naming == nil {
		s.naming = schema.DefaultToolName
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

func (s *DatastoreServer) ListTools(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	namespace := stringField(req, "namespace")

	var defs []*registry.ToolDefinition
	if s.registry != nil {
		var err error
		defs, err = s.registry.ListTools(ctx, namespace)
		if err != nil {
			s.logger.Warn("registry list failed", zap.String("namespace", namespace), zap.Error(err))
			return nil, status.Errorf(codes.Unavailable, "tool registry: %v", err)
		}
	} else {
		all, err := s.compiled()
		if err != nil {
			return nil, statusFromError(err)
		}
		for _, d := range all {
			if namespace == "" || d.Namespace == namespace {
				defs = append(defs, d)
			}
		}
	}

	tools := make([]any, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, definitionMap(d))
	}
	return toStruct(map[string]any{"tools": tools})
}

func (s *DatastoreServer) DescribeTool(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	name := stringField(req, "name")
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	var def *registry.ToolDefinition
	if s.registry != nil {
		var err error
		def, err = s.registry.GetTool(ctx, name)
		if err != nil {
			s.logger.Warn("registry lookup failed", zap.String("tool_name", name), zap.Error(err))
			return nil, status.Errorf(codes.Unavailable, "tool registry: %v", err)
		}
	} else {
		all, err := s.compiled()
		if err != nil {
			return nil, statusFromError(err)
		}
		for _, d := range all {
			if d.ToolName == name {
				def = d
				break
			}
		}
	}
	if def == nil {
		return nil, status.Errorf(codes.NotFound, "tool %q not found", name)
	}
	return toStruct(definitionMap(def))
}

func (s *DatastoreServer) Save(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, m, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	values, ok := req.AsMap()["instance"].(map[string]any)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "instance must be an object")
	}
	saved, err := s.store.Save(ctx, model.NewRecord(m, values))
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(map[string]any{"instance": saved})
}

func (s *DatastoreServer) Retrieve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, m, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	id, err := requiredString(req, "id")
	if err != nil {
		return nil, err
	}
	inst, err := s.store.Retrieve(ctx, m, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(map[string]any{"instance": inst})
}

func (s *DatastoreServer) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, m, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	id, err := requiredString(req, "id")
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, m, id); err != nil {
		return nil, statusFromError(err)
	}
	return &structpb.Struct{}, nil
}

func (s *DatastoreServer) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, m, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	query, ok := req.AsMap()["query"].(map[string]any)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "query must be an object")
	}
	res, err := s.store.Search(ctx, m, query)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(res)
}

func (s *DatastoreServer) BulkInsert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, m, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	raw, ok := req.AsMap()["items"].([]any)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "items must be a list")
	}
	items := make([]model.Instance, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "items[%d] must be an object", i)
		}
		items = append(items, model.NewRecord(m, obj))
	}
	if err := s.store.BulkInsert(ctx, m, items); err != nil {
		return nil, statusFromError(err)
	}
	return &structpb.Struct{}, nil
}

func (s *DatastoreServer) BulkDelete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, m, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	raw, ok := req.AsMap()["ids"].([]any)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "ids must be a list")
	}
	ids := make([]string, 0, len(raw))
	for i, v := range raw {
		id, ok := v.(string)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "ids[%d] must be a string", i)
		}
		ids = append(ids, id)
	}
	if err := s.store.BulkDelete(ctx, m, ids); err != nil {
		return nil, statusFromError(err)
	}
	return &structpb.Struct{}, nil
}

func (s *DatastoreServer) authenticate(ctx context.Context) error {
	if _, err := s.auth.Authenticate(ctx); err != nil {
		return status.Errorf(codes.Unauthenticated, "authentication failed: %v", err)
	}
	return nil
}

// begin authenticates, resolves the target model and carries the caller's
// call id into ctx.
func (s *DatastoreServer) begin(ctx context.Context, req *structpb.Struct) (context.Context, model.Descriptor, error) {
	if err := s.authenticate(ctx); err != nil {
		return ctx, model.Descriptor{}, err
	}
	m, err := s.catalog.Get(stringField(req, "namespace"), stringField(req, "model"))
	if err != nil {
		return ctx, model.Descriptor{}, statusFromError(err)
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(CallIDHeader); len(ids) > 0 && ids[0] != "" {
			ctx = datastore.WithCallID(ctx, ids[0])
		}
	}
	return ctx, m, nil
}

func (s *DatastoreServer) compiled() ([]*registry.ToolDefinition, error) {
	return registry.DefinitionsForCatalog(s.catalog, s.naming)
}

// statusFromError maps datastore errors onto gRPC codes.
func statusFromError(err error) error {
	if errors.Is(err, model.ErrUnknownModel) {
		return status.Error(codes.NotFound, err.Error())
	}
	switch storeerr.KindOf(err) {
	case storeerr.UnsupportedPropertyKind:
		return status.Error(codes.InvalidArgument, err.Error())
	case storeerr.Connection:
		return status.Error(codes.Unavailable, err.Error())
	case storeerr.ToolInvocation:
		return status.Error(codes.Aborted, err.Error())
	case storeerr.MalformedResponse:
		return status.Error(codes.DataLoss, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func definitionMap(d *registry.ToolDefinition) map[string]any {
	out := map[string]any{
		"name":        d.ToolName,
		"namespace":   d.Namespace,
		"model":       d.Model,
		"operation":   d.Operation,
		"description": d.Description,
		"inputSchema": d.InputSchema,
		"schemaHash":  d.SchemaHash,
	}
	if d.OutputSchema != nil {
		out["outputSchema"] = d.OutputSchema
	}
	return out
}

// toStruct converts v through its JSON form so typed maps and slices become
// the generic values structpb accepts.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func requiredString(req *structpb.Struct, name string) (string, error) {
	v := stringField(req, name)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return v, nil
}
