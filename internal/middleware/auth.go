package middleware

import (
	"net/http"
	"strings"

	"github.com/okhuang/libraria-be/internal/auth"
	"github.com/okhuang/libraria-be/internal/http/respond"
)

// RequireAuth verifies the bearer token and stores the caller identity on the
// request context. Missing or invalid tokens short-circuit with 401 before
// any authorization rule is evaluated.
func RequireAuth(tokens *auth.TokenManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			respond.Error(w, http.StatusUnauthorized, "access token required")
			return
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			respond.Error(w, http.StatusUnauthorized, "access token required")
			return
		}
		claims, err := tokens.Verify(strings.TrimSpace(tokenString))
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// RequireAdmin gates a route on the admin role. Must run inside RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFrom(r.Context())
		if !ok {
			respond.Error(w, http.StatusUnauthorized, "access token required")
			return
		}
		if !claims.IsAdmin() {
			respond.Error(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
