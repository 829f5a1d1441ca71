package httpserver

import (
	"net/http"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/authz"
	"github.com/AmmannChristian/go-extauth/user"
)

// Logger is an interface for optional logging in the middleware.
// This is an alias for the shared authn.Logger interface.
type Logger = authn.Logger

// Pipeline is an authentication pipeline over HTTP requests.
type Pipeline[P authn.Principal] = authn.Pipeline[*http.Request, P]

// AuthorizationPolicy configures role and group checks after authentication.
// This is an alias for authz.AuthorizationPolicy.
type AuthorizationPolicy = authz.AuthorizationPolicy

// MatchMode is an alias for authz.MatchMode.
type MatchMode = authz.MatchMode

const (
	MatchModeAny = authz.MatchModeAny
	MatchModeAll = authz.MatchModeAll
)

// NewUserPipeline creates a pipeline producing *user.InternalUser principals.
func NewUserPipeline(strategy authn.Strategy[*http.Request], opts ...authn.PipelineOption) (*Pipeline[*user.InternalUser], error) {
	return authn.NewPipeline[*http.Request, *user.InternalUser](strategy, authn.IdentityConverter{}, opts...)
}
