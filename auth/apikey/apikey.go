// auth/apikey/apikey.go
package apikey

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/httputil"
)

// Header is where service-to-service callers put the key.
const Header = "X-API-Key"

// Require rejects requests that do not carry expected, either as
// "Authorization: Bearer <key>" or in the X-API-Key header. An empty
// expected key rejects everything with 503 so a missing setting never
// opens the API.
func Require(expected, realm string, logger *zap.Logger) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	if logger == nil {
		logger = zap.NewNop()
	}
	if realm == "" {
		realm = "addfriend"
	}
	challenge := `Bearer realm="` + realm + `"`

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				logger.Warn("api key not configured; rejecting", zap.String("path", r.URL.Path))
				httputil.JSONError(w, http.StatusServiceUnavailable, "unavailable", "API is not configured")
				return
			}
			key := FromRequest(r)
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				logger.Warn("api key rejected",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", r.RemoteAddr),
					zap.Bool("present", key != ""))
				w.Header().Set("WWW-Authenticate", challenge)
				httputil.JSONError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FromRequest returns the presented key, preferring the Authorization header.
func FromRequest(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if tok := strings.TrimSpace(auth[7:]); tok != "" {
			return tok
		}
	}
	return strings.TrimSpace(r.Header.Get(Header))
}
