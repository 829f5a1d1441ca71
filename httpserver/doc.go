// Package httpserver integrates go-extauth authentication pipelines with
// net/http servers.
//
// The Middleware runs an authn.Pipeline over each incoming *http.Request and
// maps the three outcomes onto HTTP responses: authenticated requests reach
// the wrapped handler with the principal in the request context, denied
// requests receive 401 with a WWW-Authenticate challenge, and infrastructure
// errors go to a configurable error handler (401 by default).
//
// # Features
//
//   - Generic over the application's principal type
//   - Adapters turning requests into bearer tokens or header maps
//   - Path exemption (e.g., for health checks, metrics)
//   - Optional role and group authorization (403)
//   - Correlation id propagation for structured logs
//   - Mutual TLS configuration for header-authenticated services behind a proxy
//
// # Quick Start
//
// Verify bearer tokens with a JWT strategy:
//
//	jwt, err := authn.NewJWTStrategy(os.Getenv("EXTAUTH_SIGNING_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pipeline, err := httpserver.NewUserPipeline(httpserver.JWT(jwt))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/api/users", getUsersHandler)
//
//	handler := httpserver.Middleware(pipeline,
//	    httpserver.WithExemptPaths("/health"),
//	)(mux)
//	http.ListenAndServe(":8080", httpserver.CorrelationID(handler))
//
// # Accessing the User in Handlers
//
//	func getUsersHandler(w http.ResponseWriter, r *http.Request) {
//	    u, ok := httpserver.UserFromContext(r.Context())
//	    if !ok {
//	        http.Error(w, "not authenticated", http.StatusUnauthorized)
//	        return
//	    }
//	    fmt.Fprintf(w, "Hello, %s", u.DisplayName())
//	}
//
// Applications with their own principal type build the pipeline with a
// custom authn.PrincipalConverter and read it with PrincipalFromContext.
//
// # Mixing Schemes
//
// A chain accepts bearer tokens and proxy headers on the same endpoint:
//
//	chain, _ := authn.NewChainStrategy([]authn.Strategy[*http.Request]{
//	    httpserver.JWT(jwt),
//	    httpserver.Headers(authn.NewHeaderStrategy(authn.HeaderNames{}, nil)),
//	}, nil)
//
// # Security Considerations
//
// Header-based authentication trusts whatever sets the identity headers.
// Serve such endpoints with NewTrustedProxyTLSConfig so only the reverse
// proxy, identified by its client certificate, can reach them. Error details
// are logged but never written to the client.
package httpserver
