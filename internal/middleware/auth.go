package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
)

type principalKey struct{}

// maxPrincipalLen bounds the user name taken from the principal header.
const maxPrincipalLen = 256

// WithPrincipal stores the principal name in the context.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, name)
}

// PrincipalFromContext extracts the principal name from the context.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(principalKey{}).(string)
	return name, ok && name != ""
}

// Principal returns an HTTP middleware that takes the calling user from a
// header set by a trusted front proxy. Requests without the header run as
// fallback; when fallback is empty they are rejected with 401.
func Principal(header, fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := strings.TrimSpace(r.Header.Get(header))
			if name == "" {
				name = fallback
			}
			if !validPrincipal(name) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"status":  -1,
					"message": "unauthorized: missing or invalid " + header + " header",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), name)))
		})
	}
}

func validPrincipal(name string) bool {
	if name == "" || len(name) > maxPrincipalLen {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
