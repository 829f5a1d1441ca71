package grpcserver

import (
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/AmmannChristian/go-extauth/httpserver"
)

// NewServerCredentials creates gRPC transport credentials from TLS
// configuration.
//
// Example usage:
//
//	creds, err := grpcserver.NewServerCredentials(&grpcserver.TLSConfig{
//	    CertFile: "/path/to/server.crt",
//	    KeyFile:  "/path/to/server.key",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	server := grpc.NewServer(grpc.Creds(creds))
func NewServerCredentials(cfg *TLSConfig) (credentials.TransportCredentials, error) {
	tlsConfig, err := httpserver.NewTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsConfig), nil
}

// NewTrustedProxyCredentials creates transport credentials that only accept
// clients presenting a certificate of the trusted proxy. Use them for
// services authenticating with header strategies.
func NewTrustedProxyCredentials(cfg *TrustedProxyConfig) (credentials.TransportCredentials, error) {
	tlsConfig, err := httpserver.NewTrustedProxyTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsConfig), nil
}

// ServerOption returns a grpc.ServerOption configuring TLS.
func ServerOption(cfg *TLSConfig) (grpc.ServerOption, error) {
	if cfg == nil {
		return nil, errors.New("grpcserver: TLS config is nil")
	}
	creds, err := NewServerCredentials(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.Creds(creds), nil
}
