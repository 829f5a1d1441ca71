package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/AmmannChristian/go-extauth/authn"
)

const bearerPrefix = "bearer "

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
// A missing or malformed header is a denial, so chains fall through to the
// next delegate.
func BearerToken(_ context.Context, r *http.Request) (string, error) {
	if r == nil {
		return "", authn.NewInfrastructureError("", "no request provided", nil)
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", authn.NewDeniedError("", "missing Authorization header", nil)
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", authn.NewDeniedError("", "Authorization header is not a bearer token", nil)
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", authn.NewDeniedError("", "empty bearer token", nil)
	}
	return token, nil
}

// RequestHeaders returns the request headers.
func RequestHeaders(_ context.Context, r *http.Request) (http.Header, error) {
	if r == nil {
		return nil, authn.NewInfrastructureError("", "no request provided", nil)
	}
	return r.Header, nil
}

// AnyRequest discards the request. It adapts strategies that ignore
// credentials, such as the dev strategy.
func AnyRequest(_ context.Context, _ *http.Request) (struct{}, error) {
	return struct{}{}, nil
}

// JWT adapts s to read bearer tokens from requests.
func JWT(s authn.Strategy[string]) authn.Strategy[*http.Request] {
	return authn.Adapt(s, BearerToken)
}

// Headers adapts s to read request headers.
func Headers(s authn.Strategy[http.Header]) authn.Strategy[*http.Request] {
	return authn.Adapt(s, RequestHeaders)
}
