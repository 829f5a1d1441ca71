package grpcserver_test

import (
	"path/filepath"
	"testing"

	"github.com/AmmannChristian/go-extauth/grpcserver"
	"github.com/AmmannChristian/go-extauth/internal/testutil"
)

func TestNewServerCredentials(t *testing.T) {
	if _, err := grpcserver.NewServerCredentials(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := grpcserver.NewServerCredentials(&grpcserver.TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	}); err == nil {
		t.Error("expected error for nonexistent files")
	}

	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	testutil.NewTestCA(t, "Test CA").WriteIssued(t, "localhost", certFile, keyFile)

	creds, err := grpcserver.NewServerCredentials(&grpcserver.TLSConfig{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.Info().SecurityProtocol != "tls" {
		t.Errorf("unexpected security protocol %q", creds.Info().SecurityProtocol)
	}
}

func TestServerOption(t *testing.T) {
	if _, err := grpcserver.ServerOption(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewTrustedProxyCredentials(t *testing.T) {
	ca := testutil.NewTestCA(t, "Proxy CA")
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	caFile := filepath.Join(dir, "ca.crt")
	ca.WriteIssued(t, "localhost", certFile, keyFile)
	ca.WriteCert(t, caFile)

	if _, err := grpcserver.NewTrustedProxyCredentials(&grpcserver.TrustedProxyConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
	}); err == nil {
		t.Error("expected error without proxy CA")
	}

	if _, err := grpcserver.NewTrustedProxyCredentials(&grpcserver.TrustedProxyConfig{
		CertFile:     certFile,
		KeyFile:      keyFile,
		CAFile:       caFile,
		AllowedNames: []string{"oauth2-proxy"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
