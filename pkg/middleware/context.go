package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
	LanguageKey contextKey = "language"
)

// ContextInterceptor copies caller identity headers set by the upstream
// gateway from incoming metadata into the request context.
func ContextInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(FromMetadata(ctx), req)
	}
}

func FromMetadata(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	if v := md.Get("x-user-id"); len(v) > 0 {
		ctx = context.WithValue(ctx, UserIDKey, v[0])
	}
	if v := md.Get("x-user-role"); len(v) > 0 {
		ctx = context.WithValue(ctx, UserRoleKey, v[0])
	}
	if v := md.Get("accept-language"); len(v) > 0 {
		ctx = context.WithValue(ctx, LanguageKey, v[0])
	}
	return ctx
}
