package grpcserver

import (
	"google.golang.org/grpc/metadata"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/authz"
	"github.com/AmmannChristian/go-extauth/httpserver"
	"github.com/AmmannChristian/go-extauth/user"
)

// Logger is an interface for optional logging in the interceptors.
// This is an alias for the shared authn.Logger interface.
type Logger = authn.Logger

// Pipeline is an authentication pipeline over incoming gRPC metadata.
type Pipeline[P authn.Principal] = authn.Pipeline[metadata.MD, P]

// AuthorizationPolicy configures role and group checks after authentication.
type AuthorizationPolicy = authz.AuthorizationPolicy

// TLSConfig holds server TLS settings shared with the HTTP integration.
type TLSConfig = httpserver.TLSConfig

// TrustedProxyConfig configures mutual TLS with a trusted proxy.
type TrustedProxyConfig = httpserver.TrustedProxyConfig

// NewUserPipeline creates a pipeline producing *user.InternalUser principals.
func NewUserPipeline(strategy authn.Strategy[metadata.MD], opts ...authn.PipelineOption) (*Pipeline[*user.InternalUser], error) {
	return authn.NewPipeline[metadata.MD, *user.InternalUser](strategy, authn.IdentityConverter{}, opts...)
}
