// Package config loads go-extauth strategy configuration from YAML files and
// the environment, and turns it into ready to use strategies.
//
// A minimal file accepting bearer tokens signed by a Keycloak realm:
//
//	method: jwt
//	jwt:
//	  issuerUrl: https://auth.example.com/realms/app
//	  audience: my-service
//	authorization:
//	  requiredRoles: [user]
//
// Several methods can be tried in order with method "chain":
//
//	method: chain
//	chain:
//	  - method: jwt
//	    jwt:
//	      jwksUrl: https://auth.example.com/certs
//	  - method: httpHeaders
//
// Environment variables prefixed with EXTAUTH_ override the file, see
// EnvOverrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/goccy/go-yaml"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/authz"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "EXTAUTH_"

// Method selects a strategy implementation.
type Method string

const (
	MethodJWT           Method = "jwt"
	MethodIntrospection Method = "introspection"
	MethodHeaders       Method = "httpHeaders"
	MethodDev           Method = "dev"
	MethodChain         Method = "chain"
)

// Config is the root of a configuration file.
type Config struct {
	StrategyConfig `yaml:",inline"`

	// Authorization is applied after successful authentication. An empty
	// policy disables authorization.
	Authorization authz.AuthorizationPolicy `yaml:"authorization"`

	Server ServerConfig `yaml:"server"`
}

// StrategyConfig describes one strategy. Only the section matching Method is
// read.
type StrategyConfig struct {
	Method        Method              `yaml:"method"`
	JWT           JWTConfig           `yaml:"jwt"`
	Introspection IntrospectionConfig `yaml:"introspection"`
	Headers       HeadersConfig       `yaml:"headers"`
	Dev           DevConfig           `yaml:"dev"`
	Chain         []StrategyConfig    `yaml:"chain"`
}

// JWTConfig configures bearer token verification. Exactly one of SigningKey,
// JWKSURL and IssuerURL must be set.
type JWTConfig struct {
	// SigningKey is a base64 encoded DER RSA public key.
	SigningKey string `yaml:"signingKey"`
	JWKSURL    string `yaml:"jwksUrl"`
	// IssuerURL enables OIDC discovery and pins the expected issuer.
	IssuerURL string        `yaml:"issuerUrl"`
	CacheTTL  time.Duration `yaml:"cacheTtl"`
	Leeway    time.Duration `yaml:"leeway"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`

	Claims ClaimsConfig `yaml:"claims"`
	// RoleClaimPaths are dotted paths whose values are added to the roles.
	RoleClaimPaths []string `yaml:"roleClaimPaths"`
}

// ClaimsConfig renames the claims read from a token. Empty fields keep the
// defaults of authn.DefaultClaimNames.
type ClaimsConfig struct {
	Username       string `yaml:"username"`
	Firstname      string `yaml:"firstname"`
	Lastname       string `yaml:"lastname"`
	Email          string `yaml:"email"`
	Groups         string `yaml:"groups"`
	Roles          string `yaml:"roles"`
	RealmAccess    string `yaml:"realmAccess"`
	ResourceAccess string `yaml:"resourceAccess"`
}

// IntrospectionConfig configures opaque token verification through an RFC
// 7662 introspection endpoint.
type IntrospectionConfig struct {
	URL          string `yaml:"url"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	Issuer       string `yaml:"issuer"`
	Audience     string `yaml:"audience"`

	Claims         ClaimsConfig `yaml:"claims"`
	RoleClaimPaths []string     `yaml:"roleClaimPaths"`
}

// HeadersConfig renames the identity headers. Empty fields keep the defaults
// of authn.DefaultHeaderNames.
type HeadersConfig struct {
	Username  string `yaml:"username"`
	Firstname string `yaml:"firstname"`
	Lastname  string `yaml:"lastname"`
	Email     string `yaml:"email"`
	Groups    string `yaml:"groups"`
	Roles     string `yaml:"roles"`
}

// DevConfig is the user returned by the dev method.
type DevConfig struct {
	Username  string   `yaml:"username"`
	Firstname string   `yaml:"firstname"`
	Lastname  string   `yaml:"lastname"`
	Email     string   `yaml:"email"`
	Roles     []string `yaml:"roles"`
	Groups    []string `yaml:"groups"`
}

// ServerConfig is used by the extauth serve command.
type ServerConfig struct {
	Listen             string    `yaml:"listen"`
	ExemptPaths        []string  `yaml:"exemptPaths"`
	ExemptPathPrefixes []string  `yaml:"exemptPathPrefixes"`
	Realm              string    `yaml:"realm"`
	TLS                TLSConfig `yaml:"tls"`
}

// TLSConfig enables HTTPS. With CAFile set, clients must present a
// certificate issued by that CA, which is how header authenticated services
// restrict access to their reverse proxy.
type TLSConfig struct {
	CertFile          string   `yaml:"certFile"`
	KeyFile           string   `yaml:"keyFile"`
	CAFile            string   `yaml:"caFile"`
	AllowedProxyNames []string `yaml:"allowedProxyNames"`
}

// Enabled reports whether a certificate is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// EnvOverrides lists the supported environment variables. Set values replace
// the corresponding file settings.
type EnvOverrides struct {
	Method     string        `env:"METHOD"`
	SigningKey string        `env:"SIGNING_KEY"`
	JWKSURL    string        `env:"JWKS_URL"`
	IssuerURL  string        `env:"ISSUER_URL"`
	Audience   string        `env:"AUDIENCE"`
	CacheTTL   time.Duration `env:"JWKS_CACHE_TTL"`

	IntrospectionClientSecret string `env:"INTROSPECTION_CLIENT_SECRET"`

	Listen string `env:"LISTEN"`
}

// Load reads, overrides and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, nil)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data and applies environ as overrides. A nil environ reads
// the process environment.
func Parse(data []byte, environ map[string]string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv applies EXTAUTH_* overrides from environ, or from the process
// environment if environ is nil. Strategy settings apply to the root strategy
// and to the direct delegates of a root chain.
func (c *Config) ApplyEnv(environ map[string]string) error {
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	if o.Method != "" {
		c.Method = Method(o.Method)
	}
	if o.Listen != "" {
		c.Server.Listen = o.Listen
	}

	c.StrategyConfig.apply(o)
	return nil
}

func (s *StrategyConfig) apply(o EnvOverrides) {
	if s.Method == MethodChain {
		for i := range s.Chain {
			if s.Chain[i].Method != MethodChain {
				s.Chain[i].apply(o)
			}
		}
		return
	}

	switch s.Method {
	case MethodJWT:
		s.JWT.apply(o)
	case MethodIntrospection:
		if o.IntrospectionClientSecret != "" {
			s.Introspection.ClientSecret = o.IntrospectionClientSecret
		}
	}
}

func (c *JWTConfig) apply(o EnvOverrides) {
	// A key source from the environment replaces the file's source, otherwise
	// the two would be rejected as mutually exclusive.
	if o.SigningKey != "" || o.JWKSURL != "" || o.IssuerURL != "" {
		c.SigningKey = o.SigningKey
		c.JWKSURL = o.JWKSURL
		c.IssuerURL = o.IssuerURL
	}
	if o.Audience != "" {
		c.Audience = o.Audience
	}
	if o.CacheTTL > 0 {
		c.CacheTTL = o.CacheTTL
	}
}

// Validate checks the configuration for structural errors. Key material is
// not loaded here, see Build.
func (c *Config) Validate() error {
	if err := c.StrategyConfig.Validate(); err != nil {
		return err
	}

	tls := c.Server.TLS
	if tls.Enabled() && (tls.CertFile == "" || tls.KeyFile == "") {
		return errors.New("server.tls: certFile and keyFile are required together")
	}
	if tls.CAFile != "" && !tls.Enabled() {
		return errors.New("server.tls: caFile requires certFile and keyFile")
	}
	return nil
}

// Validate checks s and, for chains, every delegate.
func (s *StrategyConfig) Validate() error {
	switch s.Method {
	case "":
		return errors.New("method is required")
	case MethodJWT:
		return s.JWT.Validate()
	case MethodIntrospection:
		return s.Introspection.Validate()
	case MethodHeaders, MethodDev:
		return nil
	case MethodChain:
		if len(s.Chain) == 0 {
			return errors.New("chain: at least one strategy is required")
		}
		for i := range s.Chain {
			if err := s.Chain[i].Validate(); err != nil {
				return fmt.Errorf("chain[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown method %q (want jwt, introspection, httpHeaders, dev or chain)", s.Method)
	}
}

// Validate requires exactly one key source.
func (c *JWTConfig) Validate() error {
	sources := 0
	for _, source := range []string{c.SigningKey, c.JWKSURL, c.IssuerURL} {
		if strings.TrimSpace(source) != "" {
			sources++
		}
	}
	switch {
	case sources == 0:
		return errors.New("jwt: one of signingKey, jwksUrl or issuerUrl is required")
	case sources > 1:
		return errors.New("jwt: signingKey, jwksUrl and issuerUrl are mutually exclusive")
	}
	if c.CacheTTL < 0 || c.Leeway < 0 {
		return errors.New("jwt: durations must not be negative")
	}
	return nil
}

// Validate requires the endpoint and client credentials.
func (c *IntrospectionConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.URL) == "":
		return errors.New("introspection: url is required")
	case c.ClientID == "":
		return errors.New("introspection: clientId is required")
	case c.ClientSecret == "":
		return errors.New("introspection: clientSecret is required")
	}
	return nil
}

// ClaimNames converts c into authn.ClaimNames.
func (c ClaimsConfig) ClaimNames() authn.ClaimNames {
	return authn.ClaimNames{
		Username:       c.Username,
		Firstname:      c.Firstname,
		Lastname:       c.Lastname,
		Email:          c.Email,
		Groups:         c.Groups,
		Roles:          c.Roles,
		RealmAccess:    c.RealmAccess,
		ResourceAccess: c.ResourceAccess,
	}
}

// HeaderNames converts c into authn.HeaderNames.
func (c HeadersConfig) HeaderNames() authn.HeaderNames {
	return authn.HeaderNames{
		Username:  c.Username,
		Firstname: c.Firstname,
		Lastname:  c.Lastname,
		Email:     c.Email,
		Groups:    c.Groups,
		Roles:     c.Roles,
	}
}
