// Package auth provides the facilitator's shared-secret API key middleware.
package auth

import (
	"crypto/subtle"
	"net/http"
)

// HeaderAPIKey is the request header carrying the facilitator API key.
const HeaderAPIKey = "X-API-Key"

// Middleware returns an HTTP middleware that requires an exact match of the
// X-API-Key header against the configured key. The comparison is constant
// time. No further processing happens on a mismatch.
func Middleware(apiKey string, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(HeaderAPIKey)
			if presented == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
