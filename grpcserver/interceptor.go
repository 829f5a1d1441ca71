package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/authz"
)

// InterceptorConfig holds configuration for authentication interceptors.
type InterceptorConfig struct {
	exemptMethods    map[string]bool // Methods that don't require authentication
	logger           Logger          // optional logger
	unauthorizedCode codes.Code      // gRPC code to return on denial (default: Unauthenticated)
	errorCode        codes.Code      // gRPC code to return on infrastructure errors (default: Internal)
	authorizer       *authz.Evaluator
}

// InterceptorOption is a functional option for configuring interceptors.
type InterceptorOption func(*InterceptorConfig)

// WithExemptMethods specifies gRPC methods that don't require authentication.
// Method names should be in the format "/package.Service/Method".
//
// Example:
//
//	WithExemptMethods("/grpc.health.v1.Health/Check", "/grpc.health.v1.Health/Watch")
func WithExemptMethods(methods ...string) InterceptorOption {
	return func(c *InterceptorConfig) {
		if c.exemptMethods == nil {
			c.exemptMethods = make(map[string]bool)
		}
		for _, method := range methods {
			c.exemptMethods[method] = true
		}
	}
}

// WithInterceptorLogger sets a logger for the interceptor.
func WithInterceptorLogger(logger Logger) InterceptorOption {
	return func(c *InterceptorConfig) {
		c.logger = logger
	}
}

// WithUnauthorizedCode sets the gRPC status code returned for denied credentials.
// Default is codes.Unauthenticated.
func WithUnauthorizedCode(code codes.Code) InterceptorOption {
	return func(c *InterceptorConfig) {
		c.unauthorizedCode = code
	}
}

// WithErrorCode sets the gRPC status code returned when credentials could
// not be evaluated. Default is codes.Internal.
func WithErrorCode(code codes.Code) InterceptorOption {
	return func(c *InterceptorConfig) {
		c.errorCode = code
	}
}

// WithAuthorizationPolicy enables role and group checks after successful
// authentication. Failing calls receive codes.PermissionDenied.
func WithAuthorizationPolicy(policy AuthorizationPolicy) InterceptorOption {
	return func(c *InterceptorConfig) {
		evaluator := authz.NewEvaluator(policy)
		if !evaluator.Enabled() {
			c.authorizer = nil
			return
		}
		c.authorizer = evaluator
	}
}

func newInterceptorConfig(opts []InterceptorOption) *InterceptorConfig {
	config := &InterceptorConfig{
		exemptMethods:    make(map[string]bool),
		unauthorizedCode: codes.Unauthenticated,
		errorCode:        codes.Internal,
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates incoming calls with pipeline.
//
// The interceptor:
//   - Skips exempt methods
//   - Runs the pipeline on the incoming metadata
//   - Returns codes.Unauthenticated for denied credentials
//   - Returns codes.Internal when credentials could not be evaluated
//   - Optionally enforces an authorization policy (codes.PermissionDenied)
//   - Stores the principal, the InternalUser and the username in the context
//
// Usage:
//
//	jwt, _ := authn.NewJWTStrategy(publicKey)
//	pipeline, _ := grpcserver.NewUserPipeline(grpcserver.JWT(jwt))
//	server := grpc.NewServer(
//	    grpc.UnaryInterceptor(grpcserver.UnaryServerInterceptor(pipeline)),
//	)
func UnaryServerInterceptor[P authn.Principal](pipeline *authn.Pipeline[metadata.MD, P], opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	config := newInterceptorConfig(opts)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		// Check if method is exempt from authentication
		if config.exemptMethods[info.FullMethod] {
			logf(config.logger, "grpcserver: method %s is exempt from authentication", info.FullMethod)
			return handler(ctx, req)
		}

		ctx, err := authenticate(ctx, pipeline, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor that
// authenticates incoming streams with pipeline. It behaves like
// UnaryServerInterceptor.
//
// Usage:
//
//	server := grpc.NewServer(
//	    grpc.StreamInterceptor(grpcserver.StreamServerInterceptor(pipeline)),
//	)
func StreamServerInterceptor[P authn.Principal](pipeline *authn.Pipeline[metadata.MD, P], opts ...InterceptorOption) grpc.StreamServerInterceptor {
	config := newInterceptorConfig(opts)

	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		// Check if method is exempt from authentication
		if config.exemptMethods[info.FullMethod] {
			logf(config.logger, "grpcserver: stream method %s is exempt from authentication", info.FullMethod)
			return handler(srv, ss)
		}

		ctx, err := authenticate(ss.Context(), pipeline, config, info.FullMethod)
		if err != nil {
			return err
		}

		// Wrap the stream with a context that includes the identity
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticate runs the pipeline and returns the enriched context or a
// status error. Error details stay in the logs.
func authenticate[P authn.Principal](ctx context.Context, pipeline *authn.Pipeline[metadata.MD, P], config *InterceptorConfig, method string) (context.Context, error) {
	// Absent metadata stays nil so strategies can tell it from empty metadata.
	md, _ := metadata.FromIncomingContext(ctx)

	principal, authenticated, err := pipeline.Authenticate(ctx, md)
	if err != nil {
		logf(config.logger, "grpcserver: authentication error for %s: %v", method, err)
		return nil, status.Error(config.errorCode, "grpcserver: authentication failed")
	}
	if !authenticated {
		logf(config.logger, "grpcserver: authentication denied for %s", method)
		return nil, status.Error(config.unauthorizedCode, "grpcserver: authentication required")
	}

	u, _ := pipeline.Converter().ToInternalUser(principal)
	if config.authorizer != nil {
		if err := config.authorizer.Authorize(u); err != nil {
			logf(config.logger, "grpcserver: authorization failed for %s: %v", method, err)
			return nil, status.Error(codes.PermissionDenied, "grpcserver: permission denied")
		}
	}

	username := principal.Name()
	if u != nil {
		username = u.Username()
		ctx = WithUser(ctx, u)
	}
	ctx = WithPrincipal(ctx, principal)
	ctx = WithUsername(ctx, username)

	logf(config.logger, "grpcserver: authenticated request for %s (user: %s)", method, username)
	return ctx, nil
}

// RequirePolicy returns a unary interceptor enforcing policy on calls
// already authenticated by UnaryServerInterceptor. Chain it after the
// authentication interceptor for stricter per-service checks.
func RequirePolicy(policy AuthorizationPolicy, methods ...string) grpc.UnaryServerInterceptor {
	evaluator := authz.NewEvaluator(policy)
	scoped := make(map[string]bool, len(methods))
	for _, m := range methods {
		scoped[m] = true
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if len(scoped) > 0 && !scoped[info.FullMethod] {
			return handler(ctx, req)
		}
		u, _ := UserFromContext(ctx)
		if err := evaluator.Authorize(u); err != nil {
			return nil, status.Error(codes.PermissionDenied, "grpcserver: permission denied")
		}
		return handler(ctx, req)
	}
}

// wrappedServerStream wraps a grpc.ServerStream to override the context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context with the authenticated identity.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

func logf(logger Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
