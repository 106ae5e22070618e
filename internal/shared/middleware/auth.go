package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"budgetsync/internal/shared/auth"
)

// Verifier checks a presented shared secret.
type Verifier interface {
	Verify(presented string) error
}

var _ Verifier = (*auth.SecretVerifier)(nil)

// BearerSecret rejects requests whose Authorization bearer token is not the
// configured trigger secret.
func BearerSecret(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.Verify(bearerToken(r)); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="budgetsync"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
