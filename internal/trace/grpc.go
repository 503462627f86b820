package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor continues the caller's trace from incoming metadata
// and logs each call with its status code.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		tc := Continue(first(md, TraceIDKey), first(md, SpanIDKey))
		ctx = WithContext(ctx, tc)

		resp, err := handler(ctx, req)
		Logger(ctx).Debug("grpc call", "method", info.FullMethod, "code", status.Code(err).String())
		return resp, err
	}
}

// UnaryClientInterceptor injects trace context into outgoing calls.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, tc := EnsureContext(ctx)
		pairs := []string{TraceIDKey, tc.TraceID, SpanIDKey, tc.SpanID}
		if tc.ParentSpanID != "" {
			pairs = append(pairs, ParentSpanIDKey, tc.ParentSpanID)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

