package httpserver_test

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AmmannChristian/go-extauth/authn"
	"github.com/AmmannChristian/go-extauth/httpserver"
	"github.com/AmmannChristian/go-extauth/internal/testutil"
)

// startProxyProtectedServer serves a header-authenticated /whoami endpoint
// behind mutual TLS.
func startProxyProtectedServer(t *testing.T, ca *testutil.TestCA, allowed ...string) *httptest.Server {
	t.Helper()

	files := writeServerFiles(t, ca)
	tlsCfg, err := httpserver.NewTrustedProxyTLSConfig(&httpserver.TrustedProxyConfig{
		CertFile:     files.cert,
		KeyFile:      files.key,
		CAFile:       files.ca,
		AllowedNames: allowed,
	})
	if err != nil {
		t.Fatalf("failed to build TLS config: %v", err)
	}

	pipeline, err := httpserver.NewUserPipeline(httpserver.Headers(authn.NewHeaderStrategy(authn.HeaderNames{}, nil)))
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	handler := httpserver.Middleware(pipeline)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, httpserver.UsernameFromContext(r.Context()))
	}))

	server := httptest.NewUnstartedServer(handler)
	server.TLS = tlsCfg
	server.StartTLS()
	t.Cleanup(server.Close)
	return server
}

func proxyClient(t *testing.T, ca *testutil.TestCA, clientCert *tls.Certificate) *http.Client {
	t.Helper()

	roots := x509.NewCertPool()
	roots.AddCert(ca.Cert)

	tlsCfg := &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
	if clientCert != nil {
		tlsCfg.Certificates = []tls.Certificate{*clientCert}
	}
	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}
}

func whoami(client *http.Client, url string) (int, string, error) {
	req, err := http.NewRequest(http.MethodGet, url+"/whoami", nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("X-Auth-Username", "bob")
	req.Header.Set("X-Auth-Given-Name", "Bob")
	req.Header.Set("X-Auth-Family-Name", "Smith")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), err
}

func TestTrustedProxy_AcceptsProxyCertificate(t *testing.T) {
	ca := testutil.NewTestCA(t, "Proxy CA")
	server := startProxyProtectedServer(t, ca, "oauth2-proxy")

	cert := ca.Issue(t, "oauth2-proxy")
	status, body, err := whoami(proxyClient(t, ca, &cert), server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if status != http.StatusOK || body != "bob" {
		t.Errorf("expected 200 bob, got %d %q", status, body)
	}
}

func TestTrustedProxy_RejectsMissingClientCertificate(t *testing.T) {
	ca := testutil.NewTestCA(t, "Proxy CA")
	server := startProxyProtectedServer(t, ca)

	if _, _, err := whoami(proxyClient(t, ca, nil), server.URL); err == nil {
		t.Fatal("expected handshake failure without client certificate")
	}
}

func TestTrustedProxy_RejectsForeignCA(t *testing.T) {
	ca := testutil.NewTestCA(t, "Proxy CA")
	server := startProxyProtectedServer(t, ca)

	foreign := testutil.NewTestCA(t, "Foreign CA").Issue(t, "oauth2-proxy")
	if _, _, err := whoami(proxyClient(t, ca, &foreign), server.URL); err == nil {
		t.Fatal("expected handshake failure for certificate from foreign CA")
	}
}

func TestTrustedProxy_RejectsUnlistedName(t *testing.T) {
	ca := testutil.NewTestCA(t, "Proxy CA")
	server := startProxyProtectedServer(t, ca, "oauth2-proxy")

	intruder := ca.Issue(t, "intruder")
	if _, _, err := whoami(proxyClient(t, ca, &intruder), server.URL); err == nil {
		t.Fatal("expected handshake failure for unlisted client name")
	}
}
