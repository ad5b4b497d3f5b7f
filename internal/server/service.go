package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mcpstore.v1.DatastoreService"

// DatastoreServiceServer is the gateway contract. Requests and responses are
// free-form structs; the field names each method reads are documented on
// DatastoreServer.
type DatastoreServiceServer interface {
	ListTools(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DescribeTool(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Save(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retrieve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BulkInsert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BulkDelete(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(DatastoreServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DatastoreServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DatastoreServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes DatastoreService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DatastoreServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("ListTools", DatastoreServiceServer.ListTools),
		methodDesc("DescribeTool", DatastoreServiceServer.DescribeTool),
		methodDesc("Save", DatastoreServiceServer.Save),
		methodDesc("Retrieve", DatastoreServiceServer.Retrieve),
		methodDesc("Delete", DatastoreServiceServer.Delete),
		methodDesc("Search", DatastoreServiceServer.Search),
		methodDesc("BulkInsert", DatastoreServiceServer.BulkInsert),
		methodDesc("BulkDelete", DatastoreServiceServer.BulkDelete),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mcpstore/v1/datastore.proto",
}

func RegisterDatastoreServiceServer(s grpc.ServiceRegistrar, srv DatastoreServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// DatastoreServiceClient calls the gateway.
type DatastoreServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDatastoreServiceClient(cc grpc.ClientConnInterface) *DatastoreServiceClient {
	return &DatastoreServiceClient{cc: cc}
}

func (c *DatastoreServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DatastoreServiceClient) ListTools(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListTools", in, opts...)
}

func (c *DatastoreServiceClient) DescribeTool(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DescribeTool", in, opts...)
}

func (c *DatastoreServiceClient) Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Save", in, opts...)
}

func (c *DatastoreServiceClient) Retrieve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Retrieve", in, opts...)
}

func (c *DatastoreServiceClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Delete", in, opts...)
}

func (c *DatastoreServiceClient) Search(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Search", in, opts...)
}

func (c *DatastoreServiceClient) BulkInsert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "BulkInsert", in, opts...)
}

func (c *DatastoreServiceClient) BulkDelete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "BulkDelete", in, opts...)
}
