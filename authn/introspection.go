package authn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AmmannChristian/go-extauth/internal/claims"
	"github.com/AmmannChristian/go-extauth/user"
)

const (
	introspectionStrategyName = "introspection"

	maxIntrospectionResponse = 1 << 20
)

// IntrospectionConfig configures an IntrospectionStrategy.
type IntrospectionConfig struct {
	// URL is the RFC 7662 introspection endpoint.
	URL string

	// ClientID and ClientSecret authenticate this service at the endpoint
	// using HTTP basic auth.
	ClientID     string
	ClientSecret string

	// Issuer and Audience are checked when the response carries iss or aud.
	Issuer   string
	Audience string

	ClaimNames     ClaimNames
	RoleClaimPaths []string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     Logger
}

// IntrospectionStrategy verifies opaque access tokens by asking the identity
// provider's token introspection endpoint (RFC 7662). The claims of an active
// token are mapped like JWT claims.
//
// Unlike the other strategies, every Verify performs an HTTP round trip to the
// endpoint. It is bounded by ctx and the configured HTTP client's timeout.
//
// Outcomes:
//   - an empty token is a DeniedError
//   - unreachable endpoints, error responses, inactive or expired tokens and
//     issuer or audience mismatches are InfrastructureErrors
//   - an active token lacking a required identity claim is a DeniedError
type IntrospectionStrategy struct {
	url          string
	clientID     string
	clientSecret string
	issuer       string
	audience     string
	httpClient   *http.Client
	mapper       claimMapper
	logger       Logger
}

// NewIntrospectionStrategy creates an IntrospectionStrategy.
func NewIntrospectionStrategy(cfg IntrospectionConfig) (*IntrospectionStrategy, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("authn: introspection URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("authn: introspection client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("authn: introspection client secret is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &IntrospectionStrategy{
		url:          strings.TrimSpace(cfg.URL),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		issuer:       strings.TrimSpace(cfg.Issuer),
		audience:     strings.TrimSpace(cfg.Audience),
		httpClient:   httpClient,
		mapper:       newClaimMapper(introspectionStrategyName, "introspected token", cfg.ClaimNames, cfg.RoleClaimPaths, cfg.Logger),
		logger:       cfg.Logger,
	}, nil
}

// StrategyName returns "introspection".
func (s *IntrospectionStrategy) StrategyName() string { return introspectionStrategyName }

// Verify introspects token and maps the response to an InternalUser.
func (s *IntrospectionStrategy) Verify(ctx context.Context, token string) (*user.InternalUser, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewDeniedError(introspectionStrategyName, "token is empty", nil)
	}

	values, err := s.introspect(ctx, token)
	if err != nil {
		logf(s.logger, "authn: authentication failed - token introspection: %v", err)
		return nil, err
	}

	if err := s.validate(values); err != nil {
		logf(s.logger, "authn: authentication failed - token is invalid: %v", err)
		return nil, NewInfrastructureError(introspectionStrategyName, "token is invalid", err)
	}

	u, err := s.mapper.user(values, claims.String(values, "iss"))
	if err != nil {
		return nil, err
	}

	logf(s.logger, "authn: token introspection successful for username [%s]", u.Username())
	return u, nil
}

func (s *IntrospectionStrategy) introspect(ctx context.Context, token string) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewInfrastructureError(introspectionStrategyName, "failed to create introspection request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.clientID, s.clientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, NewInfrastructureError(introspectionStrategyName, "introspection request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIntrospectionResponse))
	if err != nil {
		return nil, NewInfrastructureError(introspectionStrategyName, "failed to read introspection response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewInfrastructureError(introspectionStrategyName,
			fmt.Sprintf("introspection endpoint returned status %d", resp.StatusCode), nil)
	}

	var values map[string]any
	if err := json.Unmarshal(body, &values); err != nil {
		return nil, NewInfrastructureError(introspectionStrategyName, "invalid introspection response", err)
	}
	return values, nil
}

func (s *IntrospectionStrategy) validate(values map[string]any) error {
	if active, ok := values["active"].(bool); !ok || !active {
		return errors.New("token is inactive")
	}

	if issuer := claims.String(values, "iss"); s.issuer != "" && issuer != "" && issuer != s.issuer {
		return fmt.Errorf("invalid issuer: expected %s, got %s", s.issuer, issuer)
	}

	if s.audience != "" {
		audience := claims.Strings(values, "aud")
		if len(audience) > 0 && !slices.Contains(audience, s.audience) {
			return fmt.Errorf("invalid audience: expected %s in %v", s.audience, audience)
		}
	}

	if raw, ok := values["exp"]; ok {
		expiry, err := parseUnixTime(raw)
		if err != nil {
			return fmt.Errorf("invalid expiry claim: %w", err)
		}
		if !expiry.After(time.Now()) {
			return errors.New("token has expired")
		}
	}
	return nil
}

func parseUnixTime(raw any) (time.Time, error) {
	switch value := raw.(type) {
	case float64:
		return time.Unix(int64(value), 0), nil
	case json.Number:
		number, err := value.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(number, 0), nil
	case string:
		number, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(number, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", raw)
	}
}
