package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/fekuna/omnipos-lending-service/internal/auth"
	"github.com/fekuna/omnipos-lending-service/pkg/middleware"
)

func Test_GetActor_FromInterceptorContext(t *testing.T) {
	md := metadata.Pairs("x-user-id", "staff-1", "x-user-role", "staff", "accept-language", "id")
	ctx := middleware.FromMetadata(metadata.NewIncomingContext(context.Background(), md))

	actor := auth.GetActor(ctx)

	assert.Equal(t, auth.Actor{ID: "staff-1", Role: auth.RoleStaff}, actor)
	assert.True(t, actor.HasRole(auth.RoleAdmin, auth.RoleStaff))
	assert.Equal(t, "id", auth.GetLanguage(ctx))
}

func Test_GetActor_FallsBackToMetadata(t *testing.T) {
	md := metadata.Pairs("x-user-id", "b-7", "x-user-role", "BORROWER")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	actor := auth.GetActor(ctx)

	assert.Equal(t, "b-7", actor.ID)
	assert.False(t, actor.HasRole(auth.RoleStaff))
}

func Test_GetActor_Empty(t *testing.T) {
	assert.True(t, auth.GetActor(context.Background()).IsZero())
}

func Test_Require(t *testing.T) {
	staffCtx := auth.WithActor(context.Background(), auth.Actor{ID: "s-1", Role: auth.RoleStaff})

	actor, err := auth.Require(staffCtx, auth.RoleStaff, auth.RoleAdmin)
	assert.NoError(t, err)
	assert.Equal(t, "s-1", actor.ID)

	_, err = auth.Require(staffCtx, auth.RoleBorrower)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = auth.Require(context.Background(), auth.RoleBorrower)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
