// Package authn turns identity evidence asserted by an external system into a
// normalized user.InternalUser.
//
// Requests reaching a service have often been vetted already: a Keycloak
// login produced a signed JWT, or a reverse proxy authenticated the caller and
// injected identity headers. This package verifies that evidence with a
// pluggable Strategy and reports one of three outcomes through a Pipeline.
//
// # Features
//
//   - Generic Pipeline over any credential type C and principal type P
//   - JWT verification with a static RSA key, a JWKS endpoint or OIDC discovery
//   - Trusted proxy header verification
//   - Fixed development identity
//   - Chains that accept several schemes side by side
//   - Event listeners for audit logging and metrics
//   - Thread-safe
//
// # Outcomes
//
// Strategies fail with exactly one of two error types:
//
//   - *DeniedError: the credentials were processable but insufficient, e.g. a
//     valid token lacking the given_name claim. Pipeline.Authenticate reports
//     it as (zero, false, nil).
//   - *InfrastructureError: the credentials could not be evaluated at all,
//     e.g. a token with a bad signature or a request without headers.
//     Pipeline.Authenticate returns it as the error.
//
// Both match sentinels via errors.Is (ErrDenied, ErrInfrastructure).
//
// # Quick Start
//
//	strategy, err := authn.NewJWTStrategy(os.Getenv("SIGNING_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pipeline, err := authn.NewPipeline[string, *user.InternalUser](
//	    strategy,
//	    authn.IdentityConverter{},
//	    authn.WithListeners(auditListener),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	principal, ok, err := pipeline.Authenticate(ctx, token)
//	switch {
//	case err != nil:
//	    // provider or input failure
//	case !ok:
//	    // denied
//	default:
//	    fmt.Println(principal.Username())
//	}
//
// # JWKS and Discovery
//
//	strategy, err := authn.NewJWTStrategyBuilder().
//	    WithIssuerDiscovery("https://auth.example.com/realms/app").
//	    WithCacheTTL(30 * time.Minute).
//	    WithLogger(log.Default()).
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer strategy.Close()
//
// # Mixing Schemes
//
// Adapt lets one chain combine strategies that consume different credential
// shapes. The httpserver and grpcserver packages provide extractors:
//
//	chain, err := authn.NewChainStrategy([]authn.Strategy[*http.Request]{
//	    authn.Adapt(jwtStrategy, httpserver.BearerToken),
//	    authn.Adapt[*http.Request, http.Header](headerStrategy, httpserver.RequestHeaders),
//	}, logger)
//
// # Security Considerations
//
//   - Never deploy FixedStrategy outside development
//   - Only use HeaderStrategy behind a proxy that strips client supplied
//     identity headers
//   - Tokens are never logged
package authn
