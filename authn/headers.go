package authn

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/AmmannChristian/go-extauth/user"
)

const headerStrategyName = "httpHeaders"

// HeaderNames configures which request headers carry the identity asserted by
// a trusted reverse proxy.
type HeaderNames struct {
	Username  string
	Firstname string
	Lastname  string
	Email     string
	Groups    string
	Roles     string
}

// DefaultHeaderNames returns the X-Auth-* header names.
func DefaultHeaderNames() HeaderNames {
	return HeaderNames{
		Username:  "X-Auth-Username",
		Firstname: "X-Auth-Given-Name",
		Lastname:  "X-Auth-Family-Name",
		Email:     "X-Auth-Email",
		Groups:    "X-Auth-Groups",
		Roles:     "X-Auth-Roles",
	}
}

func (n HeaderNames) withDefaults() HeaderNames {
	d := DefaultHeaderNames()
	if n.Username == "" {
		n.Username = d.Username
	}
	if n.Firstname == "" {
		n.Firstname = d.Firstname
	}
	if n.Lastname == "" {
		n.Lastname = d.Lastname
	}
	if n.Email == "" {
		n.Email = d.Email
	}
	if n.Groups == "" {
		n.Groups = d.Groups
	}
	if n.Roles == "" {
		n.Roles = d.Roles
	}
	return n
}

// HeaderStrategy trusts identity headers injected by a reverse proxy.
//
// Only deploy it behind a proxy that strips client supplied copies of these
// headers, and ideally restrict direct access to the service (see
// httpserver.NewTrustedProxyTLSConfig).
//
// A nil header collection is an InfrastructureError, which usually means the
// proxy is misconfigured or bypassed. A missing required header is a
// DeniedError.
type HeaderStrategy struct {
	names  HeaderNames
	logger Logger
}

// NewHeaderStrategy creates a HeaderStrategy. Empty fields of names fall back
// to DefaultHeaderNames. logger may be nil.
func NewHeaderStrategy(names HeaderNames, logger Logger) *HeaderStrategy {
	return &HeaderStrategy{names: names.withDefaults(), logger: logger}
}

// StrategyName returns "httpHeaders".
func (s *HeaderStrategy) StrategyName() string { return headerStrategyName }

// HeaderNames returns the effective header names.
func (s *HeaderStrategy) HeaderNames() HeaderNames { return s.names }

// Verify builds an InternalUser from header.
func (s *HeaderStrategy) Verify(_ context.Context, header http.Header) (*user.InternalUser, error) {
	if header == nil {
		logf(s.logger, "authn: authentication failed - no header fields provided")
		return nil, NewInfrastructureError(headerStrategyName, "No header fields provided to authenticator", nil)
	}

	username := headerValue(header, s.names.Username)
	if username == "" {
		return nil, s.deny(s.names.Username)
	}
	firstname := headerValue(header, s.names.Firstname)
	if firstname == "" {
		return nil, s.deny(s.names.Firstname)
	}
	lastname := headerValue(header, s.names.Lastname)
	if lastname == "" {
		return nil, s.deny(s.names.Lastname)
	}

	u, err := user.New(username, firstname, lastname,
		user.WithEmail(headerValue(header, s.names.Email)),
		user.WithGroups(headerList(header, s.names.Groups)...),
		user.WithRoles(headerList(header, s.names.Roles)...),
	)
	if err != nil {
		return nil, NewDeniedError(headerStrategyName, "Request headers do not describe a valid user", err)
	}

	logf(s.logger, "authn: header authentication successful for username [%s]", u.Username())
	return u, nil
}

func (s *HeaderStrategy) deny(name string) error {
	reason := fmt.Sprintf("Request headers did not contain valid header field [%s]", name)
	logf(s.logger, "authn: authentication denied - %s", reason)
	return NewDeniedError(headerStrategyName, reason, nil)
}

// headerValues returns every value of name, matching keys case-insensitively
// so non-canonical maps (e.g. converted gRPC metadata) work too.
func headerValues(header http.Header, name string) []string {
	if values := header.Values(name); len(values) > 0 {
		return values
	}

	var values []string
	for key, v := range header {
		if strings.EqualFold(key, name) {
			values = append(values, v...)
		}
	}
	return values
}

func headerValue(header http.Header, name string) string {
	for _, value := range headerValues(header, name) {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

// headerList splits every value of name on commas, trimming and dropping
// empty segments.
func headerList(header http.Header, name string) []string {
	result := make([]string, 0)
	for _, value := range headerValues(header, name) {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
