package auth

import (
	"context"
	"strings"

	"github.com/fekuna/omnipos-lending-service/pkg/middleware"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleStaff    Role = "STAFF"
	RoleBorrower Role = "BORROWER"
)

// Actor is the caller identity supplied by the identity provider. The core
// trusts it; role gating happens at the transport edge.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsZero() bool {
	return a.ID == ""
}

// HasRole reports whether the actor holds any of roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func WithActor(ctx context.Context, a Actor) context.Context {
	ctx = context.WithValue(ctx, middleware.UserIDKey, a.ID)
	return context.WithValue(ctx, middleware.UserRoleKey, string(a.Role))
}

// GetActor reads the actor placed in ctx by the interceptor, falling back to
// raw incoming metadata.
func GetActor(ctx context.Context) Actor {
	var a Actor
	if val, ok := ctx.Value(middleware.UserIDKey).(string); ok {
		a.ID = val
	}
	if val, ok := ctx.Value(middleware.UserRoleKey).(string); ok {
		a.Role = Role(strings.ToUpper(val))
	}
	if !a.IsZero() {
		return a
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get("x-user-id"); len(val) > 0 {
			a.ID = val[0]
		}
		if val := md.Get("x-user-role"); len(val) > 0 {
			a.Role = Role(strings.ToUpper(val[0]))
		}
	}
	return a
}

func GetLanguage(ctx context.Context) string {
	if val, ok := ctx.Value(middleware.LanguageKey).(string); ok {
		return val
	}
	return ""
}

// Require reads the caller and checks it holds one of roles. The error is a
// gRPC status ready to return from a handler.
func Require(ctx context.Context, roles ...Role) (Actor, error) {
	actor := GetActor(ctx)
	if actor.IsZero() {
		return actor, status.Error(codes.Unauthenticated, "missing user context")
	}
	if !actor.HasRole(roles...) {
		return actor, status.Errorf(codes.PermissionDenied, "role %q may not call this method", string(actor.Role))
	}
	return actor, nil
}
