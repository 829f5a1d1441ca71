package grpcserver

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/AmmannChristian/go-extauth/authn"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "bearer "
)

// BearerToken extracts the token of the "authorization: Bearer <token>"
// metadata entry. A missing or malformed entry is a denial.
func BearerToken(_ context.Context, md metadata.MD) (string, error) {
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		return "", authn.NewDeniedError("", "missing authorization metadata", nil)
	}

	value := strings.TrimSpace(values[0])
	if len(value) < len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", authn.NewDeniedError("", "authorization metadata is not a bearer token", nil)
	}

	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", authn.NewDeniedError("", "empty bearer token", nil)
	}
	return token, nil
}

// MetadataHeaders converts metadata into an http.Header so header based
// strategies work unchanged over gRPC. Binary entries are skipped. Nil
// metadata yields a nil header, which header strategies report as an
// infrastructure error.
func MetadataHeaders(_ context.Context, md metadata.MD) (http.Header, error) {
	if md == nil {
		return nil, nil
	}
	header := make(http.Header, len(md))
	for key, values := range md {
		if strings.HasSuffix(key, "-bin") {
			continue
		}
		for _, value := range values {
			header.Add(key, value)
		}
	}
	return header, nil
}

// AnyMetadata discards the metadata. It adapts strategies that ignore
// credentials, such as the dev strategy.
func AnyMetadata(_ context.Context, _ metadata.MD) (struct{}, error) {
	return struct{}{}, nil
}

// JWT adapts s to read bearer tokens from metadata.
func JWT(s authn.Strategy[string]) authn.Strategy[metadata.MD] {
	return authn.Adapt(s, BearerToken)
}

// Headers adapts s to read metadata entries as headers.
func Headers(s authn.Strategy[http.Header]) authn.Strategy[metadata.MD] {
	return authn.Adapt(s, MetadataHeaders)
}
