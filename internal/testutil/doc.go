// Package testutil provides internal test helpers for go-extauth packages.
//
// # Utilities
//
//   - CreateJWKSServer: serve a JWKS for one or more RSA public keys
//   - CreateDiscoveryServer: OIDC discovery document plus JWKS on one origin
//   - CreateFailingServer: always answer with a fixed status
//   - NewTestCA: throwaway CA issuing client and server certificates for mTLS tests
//
// All servers bind to 127.0.0.1 and are closed via tb.Cleanup.
package testutil
