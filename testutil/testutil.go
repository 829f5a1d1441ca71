// Package testutil provides helpers for testing services that embed
// go-extauth: RSA key pairs, Keycloak style signed tokens, a recording event
// listener, and IPv4-only local HTTP servers.
package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/user"
)

// TestKID is the key id stamped on tokens signed by this package.
const TestKID = "test-key-1"

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// StaticJSONResponse returns a RoundTripper that always responds with the provided JSON body.
func StaticJSONResponse(body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// TestKeyPair holds an RSA key pair for JWT testing.
type TestKeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// GenerateTestKeyPair generates a new RSA key pair for testing.
func GenerateTestKeyPair(tb testing.TB) *TestKeyPair {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate RSA key pair: %v", err)
	}

	return &TestKeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}
}

// EncodedPublicKey returns the public key as base64 X.509 SubjectPublicKeyInfo,
// the format identity providers such as Keycloak publish in realm settings.
func (kp *TestKeyPair) EncodedPublicKey(tb testing.TB) string {
	tb.Helper()

	der, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		tb.Fatalf("failed to marshal public key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(der)
}

// PEMPublicKey returns the public key PEM encoded.
func (kp *TestKeyPair) PEMPublicKey(tb testing.TB) string {
	tb.Helper()

	der, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		tb.Fatalf("failed to marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// TokenClaims provides a builder pattern for creating Keycloak style test
// claims.
type TokenClaims struct {
	claims jwt.MapClaims
}

// NewTokenClaims creates a builder with the required identity claims, an
// issuer and a one hour expiry.
func NewTokenClaims(issuer, username, firstname, lastname string) *TokenClaims {
	return &TokenClaims{
		claims: jwt.MapClaims{
			"iss":                issuer,
			"sub":                username,
			"preferred_username": username,
			"given_name":         firstname,
			"family_name":        lastname,
			"exp":                time.Now().Add(time.Hour).Unix(),
			"iat":                time.Now().Add(-time.Minute).Unix(),
		},
	}
}

// WithEmail sets the email claim.
func (c *TokenClaims) WithEmail(email string) *TokenClaims {
	c.claims["email"] = email
	return c
}

// WithGroups sets the flat groups claim.
func (c *TokenClaims) WithGroups(groups ...string) *TokenClaims {
	c.claims["groups"] = toAnySlice(groups)
	return c
}

// WithRoles sets the flat roles claim.
func (c *TokenClaims) WithRoles(roles ...string) *TokenClaims {
	c.claims["roles"] = toAnySlice(roles)
	return c
}

// WithRealmRoles sets realm_access.roles.
func (c *TokenClaims) WithRealmRoles(roles ...string) *TokenClaims {
	c.claims["realm_access"] = map[string]any{"roles": toAnySlice(roles)}
	return c
}

// WithResourceRoles sets resource_access.<client>.roles, keeping other clients.
func (c *TokenClaims) WithResourceRoles(client string, roles ...string) *TokenClaims {
	resources, ok := c.claims["resource_access"].(map[string]any)
	if !ok {
		resources = map[string]any{}
	}
	resources[client] = map[string]any{"roles": toAnySlice(roles)}
	c.claims["resource_access"] = resources
	return c
}

// WithAudience sets the aud claim.
func (c *TokenClaims) WithAudience(audience ...string) *TokenClaims {
	c.claims["aud"] = audience
	return c
}

// WithExpiry sets a custom expiry time.
func (c *TokenClaims) WithExpiry(exp time.Time) *TokenClaims {
	c.claims["exp"] = exp.Unix()
	return c
}

// WithoutClaim removes a specific claim.
func (c *TokenClaims) WithoutClaim(key string) *TokenClaims {
	delete(c.claims, key)
	return c
}

// WithCustomClaim adds a custom claim.
func (c *TokenClaims) WithCustomClaim(key string, value any) *TokenClaims {
	c.claims[key] = value
	return c
}

// Build returns the underlying jwt.MapClaims.
func (c *TokenClaims) Build() jwt.MapClaims {
	return c.claims
}

// SignToken signs the claims with RS256 and returns the token string.
func (c *TokenClaims) SignToken(tb testing.TB, privateKey *rsa.PrivateKey) string {
	tb.Helper()

	return SignToken(tb, jwt.SigningMethodRS256, privateKey, c.claims)
}

// SignToken signs claims with method and returns the token string.
func SignToken(tb testing.TB, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	tb.Helper()

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = TestKID

	tokenString, err := token.SignedString(key)
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}

	return tokenString
}

func toAnySlice(values []string) []any {
	result := make([]any, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}

// Event is a single outcome captured by RecordingListener.
type Event struct {
	Kind     string // "success", "denied" or "error"
	User     *user.InternalUser
	Denied   *authn.DeniedError
	Error    *authn.InfrastructureError
	Listener string
}

// RecordingListener records every event it receives. It is safe for
// concurrent use.
type RecordingListener struct {
	Name string

	mu       sync.Mutex
	events   []Event
	sharedMu *sync.Mutex
	sink     *[]Event // shared across listeners to observe ordering
}

// NewRecordingListener creates a listener with its own event log.
func NewRecordingListener(name string) *RecordingListener {
	return &RecordingListener{Name: name}
}

// NewRecordingListeners creates listeners that additionally append to a
// single shared log, so tests can assert notification order across them.
func NewRecordingListeners(names ...string) ([]*RecordingListener, func() []Event) {
	var (
		mu   sync.Mutex
		sink []Event
	)
	listeners := make([]*RecordingListener, len(names))
	for i, name := range names {
		listeners[i] = &RecordingListener{Name: name, sharedMu: &mu, sink: &sink}
	}

	return listeners, func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), sink...)
	}
}

// OnSuccess records a success event.
func (r *RecordingListener) OnSuccess(_ context.Context, u *user.InternalUser) {
	r.record(Event{Kind: "success", User: u})
}

// OnDenied records a denied event.
func (r *RecordingListener) OnDenied(_ context.Context, err *authn.DeniedError) {
	r.record(Event{Kind: "denied", Denied: err})
}

// OnError records an error event.
func (r *RecordingListener) OnError(_ context.Context, err *authn.InfrastructureError) {
	r.record(Event{Kind: "error", Error: err})
}

// Events returns a copy of the recorded events.
func (r *RecordingListener) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded event kinds in order.
func (r *RecordingListener) Kinds() []string {
	events := r.Events()
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *RecordingListener) record(event Event) {
	event.Listener = r.Name

	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	if r.sink != nil {
		r.sharedMu.Lock()
		*r.sink = append(*r.sink, event)
		r.sharedMu.Unlock()
	}
}
