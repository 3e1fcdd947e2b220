package auth

import (
	"context"

	"github.com/ayush/scrollable/internal/models"
)

type contextKey struct{ name string }

var (
	userCtxKey     = &contextKey{"user"}
	identityCtxKey = &contextKey{"identity"}
)

// WithUser attaches the authenticated user and the token identity.
func WithUser(ctx context.Context, u *models.User, id *Identity) context.Context {
	ctx = context.WithValue(ctx, userCtxKey, u)
	return context.WithValue(ctx, identityCtxKey, id)
}

// UserFromContext returns nil on anonymous requests.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userCtxKey).(*models.User)
	return u
}

func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey).(*Identity)
	return id
}

// UserID returns "" when nobody is authenticated.
func UserID(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}
