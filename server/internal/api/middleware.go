package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/etcbridge/etcbridge/server/internal/config"
)

// WithAuth wraps next with API-key enforcement per the gateway auth config.
// Mode "none" (or an unresolvable key) leaves next unprotected. The health
// endpoint stays open so load balancers can probe it without credentials.
func WithAuth(next http.Handler, cfg config.AuthConfig) http.Handler {
	if cfg.Mode != "apikey" {
		return next
	}
	key := cfg.Key()
	if key == "" {
		return next
	}
	header := cfg.EffectiveHeader()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(header)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
