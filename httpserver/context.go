package httpserver

import (
	"context"

	"github.com/AmmannChristian/go-extauth/user"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	principalContextKey contextKey = "principal"
	userContextKey      contextKey = "user"
	usernameContextKey  contextKey = "username"
)

// WithPrincipal adds an authenticated principal to the context.
func WithPrincipal[P any](ctx context.Context, principal P) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext retrieves the principal stored by the middleware.
// It returns false if no principal of type P is present.
//
// Example usage in an HTTP handler:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    p, ok := httpserver.PrincipalFromContext[*user.InternalUser](r.Context())
//	    if !ok {
//	        http.Error(w, "Unauthorized", http.StatusUnauthorized)
//	        return
//	    }
//	    fmt.Fprintf(w, "Hello, %s", p.DisplayName())
//	}
func PrincipalFromContext[P any](ctx context.Context) (P, bool) {
	principal, ok := ctx.Value(principalContextKey).(P)
	return principal, ok
}

// MustPrincipalFromContext retrieves the principal or panics if absent.
// Use only in handlers behind the middleware.
func MustPrincipalFromContext[P any](ctx context.Context) P {
	principal, ok := PrincipalFromContext[P](ctx)
	if !ok {
		panic("httpserver: principal not found in context")
	}
	return principal
}

// WithUser adds the verified InternalUser to the context.
func WithUser(ctx context.Context, u *user.InternalUser) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext retrieves the verified InternalUser.
func UserFromContext(ctx context.Context) (*user.InternalUser, bool) {
	u, ok := ctx.Value(userContextKey).(*user.InternalUser)
	return u, ok && u != nil
}

// WithUsername adds the authenticated login name to the context.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}

// UsernameFromContext returns the authenticated login name, or "".
func UsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameContextKey).(string)
	return username
}
