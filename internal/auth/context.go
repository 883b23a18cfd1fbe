package auth

import (
	"context"

	"github.com/lensai/lensai/internal/model"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// ContextWithAuth attaches the authenticated key to ctx.
func ContextWithAuth(ctx context.Context, auth *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthFromContext returns the authenticated key, or nil.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	auth, ok := ctx.Value(authContextKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// ProjectIDFromContext returns the project the request is authenticated for.
func ProjectIDFromContext(ctx context.Context) string {
	auth := AuthFromContext(ctx)
	if auth == nil {
		return ""
	}
	return auth.ProjectID
}

// KeyIDFromContext returns the authenticated key ID.
func KeyIDFromContext(ctx context.Context) string {
	auth := AuthFromContext(ctx)
	if auth == nil {
		return ""
	}
	return auth.KeyID
}

// CanAccessProject reports whether the request may act on projectID.
// Keys are scoped to exactly one project.
func CanAccessProject(ctx context.Context, projectID string) bool {
	auth := AuthFromContext(ctx)
	return auth != nil && projectID != "" && auth.ProjectID == projectID
}
