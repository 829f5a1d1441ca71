package httpserver

import (
	"net/http"

	"github.com/rs/xid"

	"github.com/AmmannChristian/go-extauth/logging"
)

// CorrelationIDHeader carries the request correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID propagates the X-Correlation-ID request header, generating
// one when absent. The id is echoed on the response and stored in the
// request context, where logging.EventLogger picks it up.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set(CorrelationIDHeader, id)

		ctx := logging.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
