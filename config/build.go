package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/metadata"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/grpcserver"
	"github.com/AmmannChristian/go-extauth/httpserver"
	"github.com/AmmannChristian/go-extauth/user"
)

// Transport tells Build how to read each credential shape out of a
// transport's credentials C.
type Transport[C any] struct {
	Token   authn.Extractor[C, string]
	Headers authn.Extractor[C, http.Header]
}

// HTTP reads bearer tokens and headers from *http.Request.
func HTTP() Transport[*http.Request] {
	return Transport[*http.Request]{
		Token:   httpserver.BearerToken,
		Headers: httpserver.RequestHeaders,
	}
}

// GRPC reads bearer tokens and headers from incoming metadata.
func GRPC() Transport[metadata.MD] {
	return Transport[metadata.MD]{
		Token:   grpcserver.BearerToken,
		Headers: grpcserver.MetadataHeaders,
	}
}

type buildConfig struct {
	logger     authn.Logger
	httpClient *http.Client
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithLogger passes logger to every strategy.
func WithLogger(logger authn.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// WithHTTPClient is used for JWKS, OIDC discovery and introspection requests.
func WithHTTPClient(client *http.Client) BuildOption {
	return func(c *buildConfig) {
		c.httpClient = client
	}
}

// Built is a strategy tree created by Build.
type Built[C any] struct {
	Strategy authn.Strategy[C]
	closers  []func()
}

// Close stops background work such as JWKS refreshes. It is safe to call on
// a nil Built.
func (b *Built[C]) Close() {
	if b == nil {
		return
	}
	for _, closer := range b.closers {
		closer()
	}
	b.closers = nil
}

// Build creates the strategy described by cfg for transport t. Remote key
// material is fetched immediately, so an unreachable JWKS endpoint fails
// here.
func Build[C any](ctx context.Context, cfg StrategyConfig, t Transport[C], opts ...BuildOption) (*Built[C], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	bc := &buildConfig{}
	for _, opt := range opts {
		opt(bc)
	}

	built := &Built[C]{}
	strategy, err := build(ctx, cfg, t, bc, built)
	if err != nil {
		built.Close()
		return nil, err
	}
	built.Strategy = strategy
	return built, nil
}

func build[C any](ctx context.Context, cfg StrategyConfig, t Transport[C], bc *buildConfig, built *Built[C]) (authn.Strategy[C], error) {
	switch cfg.Method {
	case MethodJWT:
		if t.Token == nil {
			return nil, errors.New("config: transport cannot carry bearer tokens")
		}
		strategy, err := buildJWT(ctx, cfg.JWT, bc)
		if err != nil {
			return nil, err
		}
		built.closers = append(built.closers, strategy.Close)
		return authn.Adapt(authn.Strategy[string](strategy), t.Token), nil

	case MethodIntrospection:
		if t.Token == nil {
			return nil, errors.New("config: transport cannot carry bearer tokens")
		}
		strategy, err := authn.NewIntrospectionStrategy(authn.IntrospectionConfig{
			URL:            cfg.Introspection.URL,
			ClientID:       cfg.Introspection.ClientID,
			ClientSecret:   cfg.Introspection.ClientSecret,
			Issuer:         cfg.Introspection.Issuer,
			Audience:       cfg.Introspection.Audience,
			ClaimNames:     cfg.Introspection.Claims.ClaimNames(),
			RoleClaimPaths: cfg.Introspection.RoleClaimPaths,
			HTTPClient:     bc.httpClient,
			Logger:         bc.logger,
		})
		if err != nil {
			return nil, err
		}
		return authn.Adapt(authn.Strategy[string](strategy), t.Token), nil

	case MethodHeaders:
		if t.Headers == nil {
			return nil, errors.New("config: transport cannot carry headers")
		}
		strategy := authn.NewHeaderStrategy(cfg.Headers.HeaderNames(), bc.logger)
		return authn.Adapt(authn.Strategy[http.Header](strategy), t.Headers), nil

	case MethodDev:
		u, err := cfg.Dev.User()
		if err != nil {
			return nil, err
		}
		return authn.NewFixedStrategy[C](u, bc.logger)

	case MethodChain:
		delegates := make([]authn.Strategy[C], 0, len(cfg.Chain))
		for i, delegate := range cfg.Chain {
			strategy, err := build(ctx, delegate, t, bc, built)
			if err != nil {
				return nil, fmt.Errorf("chain[%d]: %w", i, err)
			}
			delegates = append(delegates, strategy)
		}
		return authn.NewChainStrategy(delegates, bc.logger)

	default:
		return nil, fmt.Errorf("config: unknown method %q", cfg.Method)
	}
}

func buildJWT(ctx context.Context, cfg JWTConfig, bc *buildConfig) (*authn.JWTStrategy, error) {
	builder := authn.NewJWTStrategyBuilder().
		WithSigningKey(cfg.SigningKey).
		WithJWKSURL(cfg.JWKSURL).
		WithIssuerDiscovery(cfg.IssuerURL).
		WithLogger(bc.logger)
	if cfg.CacheTTL > 0 {
		builder = builder.WithCacheTTL(cfg.CacheTTL)
	}
	if bc.httpClient != nil {
		builder = builder.WithHTTPClient(bc.httpClient)
	}

	opts := []authn.JWTOption{authn.WithClaimNames(cfg.Claims.ClaimNames())}
	if len(cfg.RoleClaimPaths) > 0 {
		opts = append(opts, authn.WithRoleClaimPaths(cfg.RoleClaimPaths...))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, authn.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		opts = append(opts, authn.WithExpectedIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, authn.WithExpectedAudience(cfg.Audience))
	}

	return builder.WithOptions(opts...).Build(ctx)
}

// User returns the configured dev user. Missing names default to
// "dev", "Dev" and "User".
func (c DevConfig) User() (*user.InternalUser, error) {
	username, firstname, lastname := c.Username, c.Firstname, c.Lastname
	if username == "" {
		username = "dev"
	}
	if firstname == "" {
		firstname = "Dev"
	}
	if lastname == "" {
		lastname = "User"
	}

	u, err := user.New(username, firstname, lastname,
		user.WithEmail(c.Email),
		user.WithRoles(c.Roles...),
		user.WithGroups(c.Groups...),
	)
	if err != nil {
		return nil, fmt.Errorf("config: dev user: %w", err)
	}
	return u, nil
}
