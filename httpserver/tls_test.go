package httpserver_test

import (
	"crypto/tls"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/AmmannChristian/go-extauth/httpserver"
	"github.com/AmmannChristian/go-extauth/internal/testutil"
)

type certFiles struct {
	cert, key, ca string
}

func writeServerFiles(t *testing.T, ca *testutil.TestCA) certFiles {
	t.Helper()

	dir := t.TempDir()
	files := certFiles{
		cert: filepath.Join(dir, "server.crt"),
		key:  filepath.Join(dir, "server.key"),
		ca:   filepath.Join(dir, "ca.crt"),
	}
	ca.WriteIssued(t, "localhost", files.cert, files.key)
	ca.WriteCert(t, files.ca)
	return files
}

func TestNewTLSConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *httpserver.TLSConfig
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "missing cert file",
			config: &httpserver.TLSConfig{
				KeyFile: "/path/to/key.pem",
			},
			wantErr: true,
		},
		{
			name: "missing key file",
			config: &httpserver.TLSConfig{
				CertFile: "/path/to/cert.pem",
			},
			wantErr: true,
		},
		{
			name: "nonexistent files",
			config: &httpserver.TLSConfig{
				CertFile: "/nonexistent/cert.pem",
				KeyFile:  "/nonexistent/key.pem",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := httpserver.NewTLSConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTLSConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTLSConfig_WithCertificates(t *testing.T) {
	ca := testutil.NewTestCA(t, "Test CA")
	files := writeServerFiles(t, ca)

	cfg, err := httpserver.NewTLSConfig(&httpserver.TLSConfig{
		CertFile:   files.cert,
		KeyFile:    files.key,
		CAFile:     files.ca,
		ClientAuth: tls.VerifyClientCertIfGiven,
		MinVersion: tls.VersionTLS13,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Certificates) != 1 {
		t.Errorf("expected one certificate, got %d", len(cfg.Certificates))
	}
	if cfg.ClientCAs == nil {
		t.Error("expected client CA pool")
	}
	if cfg.ClientAuth != tls.VerifyClientCertIfGiven {
		t.Errorf("unexpected client auth %v", cfg.ClientAuth)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("unexpected min version %x", cfg.MinVersion)
	}
}

func TestNewTLSConfig_DefaultsToTLS12(t *testing.T) {
	files := writeServerFiles(t, testutil.NewTestCA(t, "Test CA"))

	cfg, err := httpserver.NewTLSConfig(&httpserver.TLSConfig{CertFile: files.cert, KeyFile: files.key})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("expected TLS 1.2, got %x", cfg.MinVersion)
	}
	if cfg.ClientCAs != nil {
		t.Error("client CA pool must be empty without CA file")
	}
}

func TestNewTLSConfig_MismatchedKey(t *testing.T) {
	ca := testutil.NewTestCA(t, "Test CA")
	first := writeServerFiles(t, ca)
	second := writeServerFiles(t, ca)

	if _, err := httpserver.NewTLSConfig(&httpserver.TLSConfig{CertFile: first.cert, KeyFile: second.key}); err == nil {
		t.Fatal("expected error for mismatched certificate and key")
	}
}

func TestNewTLSConfig_InvalidCA(t *testing.T) {
	files := writeServerFiles(t, testutil.NewTestCA(t, "Test CA"))

	// A private key is not a CA certificate.
	_, err := httpserver.NewTLSConfig(&httpserver.TLSConfig{CertFile: files.cert, KeyFile: files.key, CAFile: files.key})
	if err == nil {
		t.Fatal("expected error for invalid CA file")
	}
}

func TestConfigureServer(t *testing.T) {
	tests := []struct {
		name    string
		server  *http.Server
		config  *httpserver.TLSConfig
		wantErr bool
	}{
		{
			name:    "nil server",
			server:  nil,
			config:  &httpserver.TLSConfig{},
			wantErr: true,
		},
		{
			name:    "nil config",
			server:  &http.Server{},
			config:  nil,
			wantErr: true,
		},
		{
			name:   "invalid config",
			server: &http.Server{},
			config: &httpserver.TLSConfig{
				CertFile: "/nonexistent/cert.pem",
				KeyFile:  "/nonexistent/key.pem",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := httpserver.ConfigureServer(tt.server, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ConfigureServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigureServer_SetsTLSConfig(t *testing.T) {
	files := writeServerFiles(t, testutil.NewTestCA(t, "Test CA"))
	server := &http.Server{}

	if err := httpserver.ConfigureServer(server, &httpserver.TLSConfig{CertFile: files.cert, KeyFile: files.key}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server.TLSConfig == nil {
		t.Fatal("expected TLS config on server")
	}
}

func TestNewTrustedProxyTLSConfig_Validation(t *testing.T) {
	if _, err := httpserver.NewTrustedProxyTLSConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := httpserver.NewTrustedProxyTLSConfig(&httpserver.TrustedProxyConfig{
		CertFile: "/path/to/cert.pem",
		KeyFile:  "/path/to/key.pem",
	}); err == nil {
		t.Error("expected error without proxy CA")
	}
}

func TestNewTrustedProxyTLSConfig_RequiresClientCertificates(t *testing.T) {
	files := writeServerFiles(t, testutil.NewTestCA(t, "Proxy CA"))

	cfg, err := httpserver.NewTrustedProxyTLSConfig(&httpserver.TrustedProxyConfig{
		CertFile: files.cert,
		KeyFile:  files.key,
		CAFile:   files.ca,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("expected RequireAndVerifyClientCert, got %v", cfg.ClientAuth)
	}
	if cfg.VerifyConnection != nil {
		t.Error("no name check expected without allowed names")
	}
}
