package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AmmannChristian/go-extauth/testutil"
)

// CreateJWKSServer creates a JWKS server publishing the given public keys.
// Keys are published as test-key-1, test-key-2, ...
func CreateJWKSServer(tb testing.TB, publicKeys ...*rsa.PublicKey) *httptest.Server {
	tb.Helper()

	keys := make([]map[string]any, len(publicKeys))
	for i, key := range publicKeys {
		keys[i] = map[string]any{
			"kty": "RSA",
			"kid": "test-key-" + string(rune('1'+i)),
			"use": "sig",
			"alg": "RS256",
			"n":   encodeBase64URL(key.N.Bytes()),
			"e":   encodeBase64URL(big.NewInt(int64(key.E)).Bytes()),
		}
	}
	jwks := map[string]any{"keys": keys}

	return testutil.NewLocalHTTPServer(tb, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(jwks); err != nil {
			tb.Errorf("failed to encode JWKS: %v", err)
		}
	}))
}

// CreateFailingServer creates a server that always answers with statusCode.
func CreateFailingServer(tb testing.TB, statusCode int, body string) *httptest.Server {
	tb.Helper()

	return testutil.NewLocalHTTPServer(tb, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body)) // Error intentionally ignored in test helper
	}))
}

// DiscoveryServer serves an OIDC discovery document and a JWKS from the same
// origin. Its URL is the issuer.
type DiscoveryServer struct {
	*httptest.Server
	Issuer         string
	JWKSURL        string
	DiscoveryHits  *atomic.Int32
	JWKSHits       *atomic.Int32
	OmitJWKSURI    bool
	OverrideIssuer string
}

// CreateDiscoveryServer starts an OIDC provider stub for publicKey.
func CreateDiscoveryServer(tb testing.TB, publicKey *rsa.PublicKey) *DiscoveryServer {
	tb.Helper()

	ds := &DiscoveryServer{
		DiscoveryHits: &atomic.Int32{},
		JWKSHits:      &atomic.Int32{},
	}
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testutil.TestKID,
			"use": "sig",
			"alg": "RS256",
			"n":   encodeBase64URL(publicKey.N.Bytes()),
			"e":   encodeBase64URL(big.NewInt(int64(publicKey.E)).Bytes()),
		}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		ds.DiscoveryHits.Add(1)

		issuer := ds.Issuer
		if ds.OverrideIssuer != "" {
			issuer = ds.OverrideIssuer
		}
		doc := map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                ds.Issuer + "/auth",
			"token_endpoint":                        ds.Issuer + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		}
		if !ds.OmitJWKSURI {
			doc["jwks_uri"] = ds.JWKSURL
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			tb.Errorf("failed to encode discovery document: %v", err)
		}
	})
	mux.HandleFunc("/certs", func(w http.ResponseWriter, _ *http.Request) {
		ds.JWKSHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(jwks); err != nil {
			tb.Errorf("failed to encode JWKS: %v", err)
		}
	})

	ds.Server = testutil.NewLocalHTTPServer(tb, mux)
	ds.Issuer = ds.Server.URL
	ds.JWKSURL = ds.Server.URL + "/certs"

	return ds
}

// encodeBase64URL encodes bytes to base64url (without padding) as required by RFC 7517.
func encodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// TestCA is a throwaway certificate authority for TLS tests.
type TestCA struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
	PEM  []byte
}

// NewTestCA generates a self-signed CA.
func NewTestCA(tb testing.TB, commonName string) *TestCA {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate CA key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		Subject:               pkix.Name{CommonName: commonName},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create CA certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("failed to parse CA certificate: %v", err)
	}

	return &TestCA{
		Cert: cert,
		Key:  privateKey,
		PEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// WriteCert writes the CA certificate to path.
func (ca *TestCA) WriteCert(tb testing.TB, path string) {
	tb.Helper()

	if err := os.WriteFile(path, ca.PEM, 0o600); err != nil {
		tb.Fatalf("failed to write CA certificate: %v", err)
	}
}

// Issue creates a leaf certificate signed by the CA, valid for client and
// server auth on 127.0.0.1 and localhost.
func (ca *TestCA) Issue(tb testing.TB, commonName string) tls.Certificate {
	tb.Helper()

	certPEM, keyPEM := ca.issuePEM(tb, commonName)
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		tb.Fatalf("failed to load issued key pair: %v", err)
	}
	return cert
}

// WriteIssued issues a leaf certificate and writes it and its key to the
// given paths.
func (ca *TestCA) WriteIssued(tb testing.TB, commonName, certPath, keyPath string) {
	tb.Helper()

	certPEM, keyPEM := ca.issuePEM(tb, commonName)
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		tb.Fatalf("failed to write certificate: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		tb.Fatalf("failed to write key: %v", err)
	}
}

func (ca *TestCA) issuePEM(tb testing.TB, commonName string) ([]byte, []byte) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		tb.Fatalf("failed to generate serial: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		Subject:      pkix.Name{CommonName: commonName},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, &privateKey.PublicKey, ca.Key)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}
