package authn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/coreos/go-oidc/v3/oidc"
)

// JWTStrategyBuilder provides a fluent interface for constructing a
// JWTStrategy whose key material comes from a static key, a JWKS endpoint, or
// OIDC issuer discovery. Exactly one key source must be configured.
//
// All key material is resolved in Build, so an unreachable JWKS endpoint or
// an invalid key fails at startup rather than on the first request.
type JWTStrategyBuilder struct {
	signingKey string
	jwksURL    string
	issuerURL  string
	cacheTTL   time.Duration
	httpClient *http.Client
	logger     Logger
	opts       []JWTOption
}

// NewJWTStrategyBuilder creates a builder with secure defaults:
//   - Cache TTL is set to 1 hour
//   - HTTP client uses TLS 1.2+ with system root CAs and a 10 second timeout
func NewJWTStrategyBuilder() *JWTStrategyBuilder {
	return &JWTStrategyBuilder{
		cacheTTL: time.Hour,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}

// WithSigningKey uses a static base64 encoded RSA public key.
func (b *JWTStrategyBuilder) WithSigningKey(signingKey string) *JWTStrategyBuilder {
	b.signingKey = signingKey
	return b
}

// WithJWKSURL fetches verification keys from a JWKS endpoint.
//
// Example:
//
//	builder.WithJWKSURL("https://auth.example.com/realms/app/protocol/openid-connect/certs")
func (b *JWTStrategyBuilder) WithJWKSURL(url string) *JWTStrategyBuilder {
	b.jwksURL = url
	return b
}

// WithIssuerDiscovery resolves the JWKS endpoint from the issuer's
// /.well-known/openid-configuration document. Tokens must then carry a
// matching iss claim.
func (b *JWTStrategyBuilder) WithIssuerDiscovery(issuerURL string) *JWTStrategyBuilder {
	b.issuerURL = issuerURL
	return b
}

// WithCacheTTL sets the interval between background JWKS refreshes.
// Default is 1 hour.
func (b *JWTStrategyBuilder) WithCacheTTL(ttl time.Duration) *JWTStrategyBuilder {
	b.cacheTTL = ttl
	return b
}

// WithHTTPClient sets the HTTP client used for JWKS and discovery requests.
func (b *JWTStrategyBuilder) WithHTTPClient(client *http.Client) *JWTStrategyBuilder {
	b.httpClient = client
	return b
}

// WithLogger sets a logger for the strategy and for JWKS refresh errors.
func (b *JWTStrategyBuilder) WithLogger(logger Logger) *JWTStrategyBuilder {
	b.logger = logger
	return b
}

// WithOptions appends strategy options such as WithClaimNames.
func (b *JWTStrategyBuilder) WithOptions(opts ...JWTOption) *JWTStrategyBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build resolves the key source and constructs the strategy.
//
// Returns:
//   - *JWTStrategy: Configured strategy; call Close when done to stop JWKS refreshes
//   - error: Error if the configuration is invalid or key material cannot be loaded
func (b *JWTStrategyBuilder) Build(ctx context.Context) (*JWTStrategy, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sources := 0
	for _, source := range []string{b.signingKey, b.jwksURL, b.issuerURL} {
		if strings.TrimSpace(source) != "" {
			sources++
		}
	}
	switch {
	case sources == 0:
		return nil, errors.New("authn: one of signing key, JWKS URL or issuer URL is required")
	case sources > 1:
		return nil, errors.New("authn: signing key, JWKS URL and issuer URL are mutually exclusive")
	}

	opts := make([]JWTOption, 0, len(b.opts)+2)
	if b.logger != nil {
		opts = append(opts, WithJWTLogger(b.logger))
	}

	if b.signingKey != "" {
		opts = append(opts, b.opts...)
		return NewJWTStrategy(b.signingKey, opts...)
	}

	jwksURL := b.jwksURL
	if b.issuerURL != "" {
		discovered, err := b.discoverJWKSURL(ctx)
		if err != nil {
			return nil, err
		}
		jwksURL = discovered
		opts = append(opts, WithExpectedIssuer(strings.TrimSpace(b.issuerURL)))
		logf(b.logger, "authn: using discovered JWKS URL: %s", jwksURL)
	}
	opts = append(opts, b.opts...)

	jwks, err := b.fetchJWKS(jwksURL)
	if err != nil {
		return nil, err
	}

	strategy := newJWTStrategy(jwks.Keyfunc, opts...)
	strategy.closer = jwks.EndBackground
	return strategy, nil
}

func (b *JWTStrategyBuilder) client() *http.Client {
	if b.httpClient == nil {
		return http.DefaultClient
	}
	return b.httpClient
}

func (b *JWTStrategyBuilder) discoverJWKSURL(ctx context.Context) (string, error) {
	issuer := strings.TrimSpace(b.issuerURL)

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, b.client()), issuer)
	if err != nil {
		return "", fmt.Errorf("authn: OIDC discovery failed for %s: %w", issuer, err)
	}

	var metadata struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return "", fmt.Errorf("authn: failed to decode OIDC discovery document: %w", err)
	}
	if metadata.JWKSURL == "" {
		return "", fmt.Errorf("authn: OIDC discovery document for %s has no jwks_uri", issuer)
	}

	return metadata.JWKSURL, nil
}

// fetchJWKS loads the key set once and starts background refreshes that run
// until JWTStrategy.Close.
func (b *JWTStrategyBuilder) fetchJWKS(jwksURL string) (*keyfunc.JWKS, error) {
	cacheTTL := b.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	logger := b.logger
	options := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logf(logger, "authn: JWKS refresh error: %v", err)
		},
		RefreshInterval:   cacheTTL,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
		Client:            b.client(),
	}

	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, fmt.Errorf("authn: failed to initialize JWKS: %w", err)
	}
	return jwks, nil
}
