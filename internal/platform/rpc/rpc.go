// Package rpc builds gRPC services whose messages are google.protobuf.Struct values, so
// services can be declared in Go without generated stubs.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler is the signature of every unary method on a Struct service.
type Handler[S any] func(srv S, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// Method returns the MethodDesc for one unary method of service. S is the server
// interface registered as HandlerType.
func Method[S any](service, method string, h Handler[S]) grpc.MethodDesc {
	fullMethod := FullMethod(service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(srv.(S), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// FullMethod returns "/service/method".
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("rpc: encode %T: not an object", v)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from s through its JSON form. A nil s leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Field decodes the named field of s into v. A missing field leaves v untouched.
func Field(s *structpb.Struct, name string, v any) error {
	if s == nil {
		return nil
	}
	f, ok := s.GetFields()[name]
	if !ok {
		return nil
	}
	b, err := f.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Envelope builds a Struct whose top-level fields are the JSON forms of fields' values.
func Envelope(fields map[string]any) (*structpb.Struct, error) {
	return Encode(fields)
}
