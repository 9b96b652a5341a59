// Package gatewayrpc declares the wire contract of the hosted payment
// gateway: a unary gRPC service whose messages are protobuf Structs.
//
//	service PaymentGateway {
//	  rpc ClientToken(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Authorize(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
package gatewayrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "storefront.payment.v1.PaymentGateway"

	ClientTokenMethod = "/" + ServiceName + "/ClientToken"
	AuthorizeMethod   = "/" + ServiceName + "/Authorize"
)

// Server is implemented by gateway backends (the sandbox in this repo).
type Server interface {
	ClientToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ClientToken", Handler: clientTokenHandler},
		{MethodName: "Authorize", Handler: authorizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/payment/v1/gateway.proto",
}

func clientTokenHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).ClientToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClientTokenMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).ClientToken(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func authorizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Authorize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AuthorizeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Authorize(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
