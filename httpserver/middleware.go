package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/authz"
	"github.com/AmmannChristian/go-extauth/user"
)

// DefaultRealm is the realm announced in WWW-Authenticate challenges.
const DefaultRealm = "extauth"

// MiddlewareConfig holds configuration for authentication middleware.
type MiddlewareConfig struct {
	exemptPaths         map[string]bool // Exact path matches
	exemptPathPrefixes  []string        // Prefix matches
	logger              Logger          // optional logger
	realm               string
	unauthorizedHandler ErrorHandler
	errorHandler        ErrorHandler
	forbiddenHandler    ErrorHandler
	authorizer          *authz.Evaluator
}

// MiddlewareOption is a functional option for configuring middleware.
type MiddlewareOption func(*MiddlewareConfig)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WithExemptPaths specifies HTTP paths that don't require authentication.
// These paths must match exactly.
//
// Example:
//
//	WithExemptPaths("/health", "/metrics", "/favicon.ico")
func WithExemptPaths(paths ...string) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if c.exemptPaths == nil {
			c.exemptPaths = make(map[string]bool)
		}
		for _, path := range paths {
			c.exemptPaths[path] = true
		}
	}
}

// WithExemptPathPrefixes specifies HTTP path prefixes that don't require authentication.
// Any path starting with these prefixes will be exempt.
//
// Example:
//
//	WithExemptPathPrefixes("/public/", "/static/", "/.well-known/")
func WithExemptPathPrefixes(prefixes ...string) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.exemptPathPrefixes = append(c.exemptPathPrefixes, prefixes...)
	}
}

// WithMiddlewareLogger sets a logger for the middleware.
func WithMiddlewareLogger(logger Logger) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.logger = logger
	}
}

// WithRealm sets the realm of the default WWW-Authenticate challenge.
func WithRealm(realm string) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.realm = realm
	}
}

// WithUnauthorizedHandler sets the handler for denied credentials.
// By default, returns HTTP 401 with a WWW-Authenticate challenge.
func WithUnauthorizedHandler(handler ErrorHandler) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.unauthorizedHandler = handler
	}
}

// WithErrorHandler sets the handler for infrastructure errors, i.e.
// credentials that could not be evaluated at all. By default, returns
// HTTP 401.
func WithErrorHandler(handler ErrorHandler) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.errorHandler = handler
	}
}

// WithForbiddenHandler sets the handler for authorization failures.
// By default, returns HTTP 403.
func WithForbiddenHandler(handler ErrorHandler) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.forbiddenHandler = handler
	}
}

// WithAuthorizationPolicy enables role and group checks after successful
// authentication. Requests failing the policy are answered with 403.
func WithAuthorizationPolicy(policy AuthorizationPolicy) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		evaluator := authz.NewEvaluator(policy)
		if !evaluator.Enabled() {
			c.authorizer = nil
			return
		}
		c.authorizer = evaluator
	}
}

// Middleware returns an HTTP middleware that authenticates requests with
// pipeline.
//
// The middleware:
//   - Skips exempt paths
//   - Runs the pipeline on the request
//   - Answers denials with the unauthorized handler (401)
//   - Answers infrastructure errors with the error handler (401 by default)
//   - Optionally enforces an authorization policy (403)
//   - Stores the principal, the InternalUser and the username in the
//     request context
//
// Usage:
//
//	jwt, _ := authn.NewJWTStrategy(publicKey)
//	pipeline, _ := httpserver.NewUserPipeline(httpserver.JWT(jwt))
//	mux := http.NewServeMux()
//	mux.HandleFunc("/api/users", getUsersHandler)
//
//	http.ListenAndServe(":8080", httpserver.Middleware(pipeline)(mux))
func Middleware[P authn.Principal](pipeline *authn.Pipeline[*http.Request, P], opts ...MiddlewareOption) func(http.Handler) http.Handler {
	config := &MiddlewareConfig{
		exemptPaths: make(map[string]bool),
		realm:       DefaultRealm,
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.unauthorizedHandler == nil {
		config.unauthorizedHandler = challenge(config.realm)
	}
	if config.errorHandler == nil {
		config.errorHandler = challenge(config.realm)
	}
	if config.forbiddenHandler == nil {
		config.forbiddenHandler = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check if path is exempt from authentication
			if isExempt(r.URL.Path, config) {
				logf(config.logger, "httpserver: path %s is exempt from authentication", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			principal, ok, err := pipeline.Authenticate(r.Context(), r)
			if err != nil {
				logf(config.logger, "httpserver: authentication error for %s %s: %v", r.Method, r.URL.Path, err)
				config.errorHandler(w, r, err)
				return
			}
			if !ok {
				logf(config.logger, "httpserver: authentication denied for %s %s", r.Method, r.URL.Path)
				config.unauthorizedHandler(w, r, authn.ErrDenied)
				return
			}

			u, _ := pipeline.Converter().ToInternalUser(principal)
			if config.authorizer != nil {
				if err := config.authorizer.Authorize(u); err != nil {
					logf(config.logger, "httpserver: authorization failed for %s %s: %v", r.Method, r.URL.Path, err)
					config.forbiddenHandler(w, r, err)
					return
				}
			}

			username := principalUsername(principal, u)
			r = r.WithContext(withIdentity(r.Context(), principal, u, username))
			logf(config.logger, "httpserver: authenticated request for %s %s (user: %s)", r.Method, r.URL.Path, username)

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePolicy returns a middleware enforcing policy on requests already
// authenticated by Middleware. It lets individual routes demand stricter
// roles than the global policy.
func RequirePolicy(policy AuthorizationPolicy, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	config := &MiddlewareConfig{}
	for _, opt := range opts {
		opt(config)
	}
	forbidden := config.forbiddenHandler
	if forbidden == nil {
		forbidden = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		}
	}
	evaluator := authz.NewEvaluator(policy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := UserFromContext(r.Context())
			if err := evaluator.Authorize(u); err != nil {
				logf(config.logger, "httpserver: authorization failed for %s %s: %v", r.Method, r.URL.Path, err)
				forbidden(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withIdentity[P authn.Principal](ctx context.Context, principal P, u *user.InternalUser, username string) context.Context {
	ctx = WithPrincipal(ctx, principal)
	ctx = WithUsername(ctx, username)
	if u != nil {
		ctx = WithUser(ctx, u)
	}
	return ctx
}

// principalUsername prefers the login name of the underlying user over the
// principal's display name.
func principalUsername[P authn.Principal](principal P, u *user.InternalUser) string {
	if u != nil {
		return u.Username()
	}
	return principal.Name()
}

// challenge answers with 401 and a Bearer challenge. The error detail is not
// written to the client.
func challenge(realm string) ErrorHandler {
	header := fmt.Sprintf("Bearer realm=%q", realm)
	return func(w http.ResponseWriter, _ *http.Request, err error) {
		if errors.Is(err, authn.ErrInfrastructure) {
			w.Header().Set("WWW-Authenticate", header+`, error="invalid_token"`)
		} else {
			w.Header().Set("WWW-Authenticate", header)
		}
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
}

// isExempt checks if a path is exempt from authentication.
func isExempt(path string, config *MiddlewareConfig) bool {
	// Check exact path matches
	if config.exemptPaths[path] {
		return true
	}

	// Check prefix matches
	for _, prefix := range config.exemptPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

func logf(logger Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
