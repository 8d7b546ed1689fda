// Package directory exposes the account directory over gRPC and consumes it from other
// nodes with discovery and failover.
package directory

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"credential-authority/internal/platform/rpc"
)

// ServiceName is the gRPC service the directory is served under.
const ServiceName = "directory.v1.DirectoryService"

// Method names.
const (
	MethodGet    = "Get"
	MethodCreate = "Create"
	MethodUpdate = "Update"
)

// DirectoryServer is the server side of ServiceName. Requests and replies are Structs:
// Get {filter, select} -> {data}; Create {data} -> {data}; Update {filter, updates} -> {data}.
type DirectoryServer interface {
	Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc registers a DirectoryServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Method[DirectoryServer](ServiceName, MethodGet, DirectoryServer.Get),
		rpc.Method[DirectoryServer](ServiceName, MethodCreate, DirectoryServer.Create),
		rpc.Method[DirectoryServer](ServiceName, MethodUpdate, DirectoryServer.Update),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "directory/v1/directory.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv DirectoryServer) {
	s.RegisterService(&ServiceDesc, srv)
}
