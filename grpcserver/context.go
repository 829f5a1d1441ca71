package grpcserver

import (
	"context"

	"github.com/AmmannChristian/go-extauth/user"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	principalKey contextKey = "grpcserver.principal"
	userKey      contextKey = "grpcserver.user"
	usernameKey  contextKey = "grpcserver.username"
)

// WithPrincipal returns a new context with the provided principal.
func WithPrincipal[P any](ctx context.Context, principal P) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext extracts the principal stored by the interceptors.
//
// Example:
//
//	func (s *server) MyMethod(ctx context.Context, req *pb.Request) (*pb.Response, error) {
//	    u, ok := grpcserver.PrincipalFromContext[*user.InternalUser](ctx)
//	    if !ok {
//	        return nil, status.Error(codes.Unauthenticated, "not authenticated")
//	    }
//	    // ... use u.Roles() ...
//	}
func PrincipalFromContext[P any](ctx context.Context) (P, bool) {
	principal, ok := ctx.Value(principalKey).(P)
	return principal, ok
}

// MustPrincipalFromContext extracts the principal and panics if not found.
// This should only be used in handlers where authentication is guaranteed by the interceptor.
func MustPrincipalFromContext[P any](ctx context.Context) P {
	principal, ok := PrincipalFromContext[P](ctx)
	if !ok {
		panic("grpcserver: principal not found in context")
	}
	return principal
}

// WithUser returns a new context with the verified InternalUser.
func WithUser(ctx context.Context, u *user.InternalUser) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext extracts the verified InternalUser.
func UserFromContext(ctx context.Context) (*user.InternalUser, bool) {
	u, ok := ctx.Value(userKey).(*user.InternalUser)
	return u, ok && u != nil
}

// WithUsername returns a new context with the authenticated login name.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// UsernameFromContext returns the authenticated login name, or "".
func UsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}
