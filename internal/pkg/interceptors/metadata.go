// Package interceptors carries request correlation values (request id and
// idempotency key) from the HTTP edge through gRPC calls.
package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/jcmexdev/storefront/internal/pkg/interceptors/constants"
)

// WithRequestMetadata stores the correlation values on ctx. Empty values are
// left unset.
func WithRequestMetadata(ctx context.Context, requestID, idempotencyKey string) context.Context {
	if requestID != "" {
		ctx = context.WithValue(ctx, constants.ContextKeyRequestID, requestID)
	}
	if idempotencyKey != "" {
		ctx = context.WithValue(ctx, constants.ContextKeyIdempotencyKey, idempotencyKey)
	}
	return ctx
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(constants.ContextKeyRequestID).(string)
	return id
}

func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(constants.ContextKeyIdempotencyKey).(string)
	return key
}

// UnaryClientInterceptor copies the correlation values from ctx into
// outgoing gRPC metadata.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if id := RequestIDFrom(ctx); id != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, constants.HeaderXRequestId, id)
		}
		if key := IdempotencyKeyFrom(ctx); key != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, constants.HeaderXIdempotencyKey, key)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor restores the correlation values from incoming
// metadata so handlers can log them.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var requestID, idempotencyKey string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(constants.HeaderXRequestId); len(ids) > 0 {
				requestID = ids[0]
			}
			if keys := md.Get(constants.HeaderXIdempotencyKey); len(keys) > 0 {
				idempotencyKey = keys[0]
			}
		}
		ctx = WithRequestMetadata(ctx, requestID, idempotencyKey)

		slog.DebugContext(ctx, "grpc call", "method", info.FullMethod, "request_id", requestID, "idempotency_key", idempotencyKey)
		return handler(ctx, req)
	}
}
