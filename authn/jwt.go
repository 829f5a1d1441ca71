package authn

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AmmannChristian/go-extauth/user"
)

const (
	jwtStrategyName = "jwt"

	// LogoutPath is appended to the issuer claim to derive the logout URL.
	LogoutPath = "/protocol/openid-connect/logout"
)

// ClaimNames configures which token claims feed the InternalUser fields.
type ClaimNames struct {
	Username       string // Required; default "preferred_username"
	Firstname      string // Required; default "given_name"
	Lastname       string // Required; default "family_name"
	Email          string // Optional; default "email"
	Groups         string // Flat list; default "groups"
	Roles          string // Flat list; default "roles"
	RealmAccess    string // {"roles": [...]}; default "realm_access"
	ResourceAccess string // {client: {"roles": [...]}}; default "resource_access"
}

// DefaultClaimNames returns the Keycloak compatible claim names.
func DefaultClaimNames() ClaimNames {
	return ClaimNames{
		Username:       "preferred_username",
		Firstname:      "given_name",
		Lastname:       "family_name",
		Email:          "email",
		Groups:         "groups",
		Roles:          "roles",
		RealmAccess:    "realm_access",
		ResourceAccess: "resource_access",
	}
}

func (n ClaimNames) withDefaults() ClaimNames {
	d := DefaultClaimNames()
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
	if n.RealmAccess == "" {
		n.RealmAccess = d.RealmAccess
	}
	if n.ResourceAccess == "" {
		n.ResourceAccess = d.ResourceAccess
	}
	return n
}

type jwtConfig struct {
	logger    Logger
	names     ClaimNames
	rolePaths []string
	leeway    time.Duration
	issuer    string
	audience  string
}

// JWTOption is a functional option for configuring a JWTStrategy.
type JWTOption func(*jwtConfig)

// WithJWTLogger sets a logger for verification messages. Tokens are never
// logged.
func WithJWTLogger(logger Logger) JWTOption {
	return func(c *jwtConfig) {
		c.logger = logger
	}
}

// WithClaimNames overrides the claim names. Empty fields keep their default.
func WithClaimNames(names ClaimNames) JWTOption {
	return func(c *jwtConfig) {
		c.names = names
	}
}

// WithRoleClaimPaths adds dotted claim paths (e.g. "app.permissions") whose
// string values are merged into the role set.
func WithRoleClaimPaths(paths ...string) JWTOption {
	return func(c *jwtConfig) {
		c.rolePaths = append(c.rolePaths, paths...)
	}
}

// WithLeeway allows for clock skew when validating exp, nbf and iat.
func WithLeeway(leeway time.Duration) JWTOption {
	return func(c *jwtConfig) {
		c.leeway = leeway
	}
}

// WithExpectedIssuer rejects tokens whose iss claim differs from issuer.
func WithExpectedIssuer(issuer string) JWTOption {
	return func(c *jwtConfig) {
		c.issuer = issuer
	}
}

// WithExpectedAudience rejects tokens whose aud claim does not contain audience.
func WithExpectedAudience(audience string) JWTOption {
	return func(c *jwtConfig) {
		c.audience = audience
	}
}

// JWTStrategy verifies RSA signed JWTs and extracts an InternalUser from
// their claims.
//
// Outcomes:
//   - parse, signature, expiry, issuer or audience failures are
//     InfrastructureErrors ("JWT is invalid")
//   - a verified token lacking a required identity claim is a DeniedError
//
// Roles are the set union of the flat roles claim, realm_access.roles and
// resource_access.*.roles. Absent containers contribute nothing.
type JWTStrategy struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
	mapper  claimMapper
	logger  Logger
	closer  func()
}

// NewJWTStrategy creates a strategy that verifies tokens with a static RSA
// public key.
//
// Parameters:
//   - signingKey: base64 encoded X.509 SubjectPublicKeyInfo of the identity
//     provider's RSA signing key (PEM armour is tolerated)
//   - opts: optional settings
//
// Returns:
//   - *JWTStrategy: Configured strategy
//   - error: *InfrastructureError if the key cannot be decoded
func NewJWTStrategy(signingKey string, opts ...JWTOption) (*JWTStrategy, error) {
	key, err := ParseRSAPublicKey(signingKey)
	if err != nil {
		return nil, NewInfrastructureError(jwtStrategyName, "could not process public key", err)
	}

	return newJWTStrategy(func(*jwt.Token) (any, error) { return key, nil }, opts...), nil
}

// NewJWTStrategyWithKeyfunc creates a strategy that resolves verification keys
// through keyfunc, e.g. a JWKS cache.
func NewJWTStrategyWithKeyfunc(keyfunc jwt.Keyfunc, opts ...JWTOption) (*JWTStrategy, error) {
	if keyfunc == nil {
		return nil, errors.New("authn: keyfunc is required")
	}
	return newJWTStrategy(keyfunc, opts...), nil
}

func newJWTStrategy(keyfunc jwt.Keyfunc, opts ...JWTOption) *JWTStrategy {
	config := &jwtConfig{}
	for _, opt := range opts {
		opt(config)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
		}),
	}
	if config.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(config.leeway))
	}
	if config.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(config.issuer))
	}
	if config.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(config.audience))
	}

	return &JWTStrategy{
		keyfunc: keyfunc,
		parser:  jwt.NewParser(parserOpts...),
		mapper:  newClaimMapper(jwtStrategyName, "JWT", config.names, config.rolePaths, config.logger),
		logger:  config.logger,
	}
}

// StrategyName returns "jwt".
func (s *JWTStrategy) StrategyName() string { return jwtStrategyName }

// ClaimNames returns the effective claim names.
func (s *JWTStrategy) ClaimNames() ClaimNames { return s.mapper.names }

// Verify parses and verifies token and maps its claims to an InternalUser.
func (s *JWTStrategy) Verify(_ context.Context, token string) (*user.InternalUser, error) {
	parsed, err := s.parser.Parse(strings.TrimSpace(token), s.keyfunc)
	if err != nil {
		logf(s.logger, "authn: authentication failed - JWT is invalid: %v", err)
		return nil, NewInfrastructureError(jwtStrategyName, "JWT is invalid", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, NewInfrastructureError(jwtStrategyName, "JWT is invalid", errors.New("unexpected claims type"))
	}

	issuer, _ := mapClaims.GetIssuer()
	u, err := s.mapper.user(mapClaims, issuer)
	if err != nil {
		return nil, err
	}

	logf(s.logger, "authn: JWT authentication successful for username [%s]", u.Username())
	return u, nil
}

// Close stops background key refreshes, if any. It is safe to call on a
// strategy built from a static key.
func (s *JWTStrategy) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// ParseRSAPublicKey decodes an RSA public key given either as PEM or as bare
// base64 (standard or URL alphabet, padded or not) DER. Both
// SubjectPublicKeyInfo and PKCS#1 encodings are accepted.
func ParseRSAPublicKey(encoded string) (*rsa.PublicKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("authn: signing key is required")
	}

	if strings.HasPrefix(encoded, "-----BEGIN") {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(encoded))
		if err != nil {
			return nil, fmt.Errorf("authn: invalid PEM signing key: %w", err)
		}
		return key, nil
	}

	der, err := decodeBase64(strings.Join(strings.Fields(encoded), ""))
	if err != nil {
		return nil, fmt.Errorf("authn: signing key is not valid base64: %w", err)
	}

	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	key, err := jwt.ParseRSAPublicKeyFromPEM(block)
	if err != nil {
		return nil, fmt.Errorf("authn: signing key is not an RSA public key: %w", err)
	}
	return key, nil
}

func decodeBase64(value string) ([]byte, error) {
	var firstErr error
	for _, encoding := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		decoded, err := encoding.DecodeString(value)
		if err == nil {
			return decoded, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
