// Package auth guards catalog-changing endpoints with a bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration. An empty Token disables auth.
type Config struct {
	Token string
	// ProtectReads extends the token requirement to every non-exempt path.
	ProtectReads bool
}

// Enabled reports whether a token is configured.
func (c Config) Enabled() bool { return c.Token != "" }

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// writePaths replace or refetch the catalog; non-GET requests to them always
// need the token when auth is enabled.
var writePaths = map[string]bool{
	"/api/v1/catalog":       true,
	"/api/v1/catalog/fetch": true,
}

// requiresToken reports whether r must carry the bearer token.
func requiresToken(cfg Config, r *http.Request) bool {
	if !cfg.Enabled() || exemptPaths[r.URL.Path] {
		return false
	}
	if writePaths[r.URL.Path] && r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}
	return cfg.ProtectReads
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on protected requests when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresToken(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")

			if header == "" || token == header || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="orbitrisk"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
