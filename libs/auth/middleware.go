package auth

import (
	"net/http"
	"strings"
)

// ProviderHeader carries the authenticated provider id to handlers.
const ProviderHeader = "X-Provider-Id"

// RequireProvider verifies the bearer token and replaces any client-sent
// X-Provider-Id with the token's provider.
func RequireProvider(next http.Handler, v Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		if !strings.HasPrefix(authz, "Bearer ") || raw == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(raw)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		r.Header.Set(ProviderHeader, claims.Provider())
		next.ServeHTTP(w, r)
	})
}
