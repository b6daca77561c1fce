package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		fallback string
		want     string
		wantCode int
	}{
		{"header_wins", "alice", "hue", "alice", http.StatusOK},
		{"header_trimmed", "  alice ", "", "alice", http.StatusOK},
		{"fallback_when_missing", "", "hue", "hue", http.StatusOK},
		{"rejected_without_fallback", "", "", "", http.StatusUnauthorized},
		{"control_characters", "alice\nadmin", "hue", "", http.StatusUnauthorized},
		{"inner_space", "alice admin", "", "", http.StatusUnauthorized},
		{"too_long", strings.Repeat("a", 257), "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := Principal("X-Remote-User", tt.fallback)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Remote-User", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.want, got)
			if tt.wantCode == http.StatusUnauthorized {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.InDelta(t, float64(-1), body["status"], 0.001)
				assert.Contains(t, body["message"], "X-Remote-User")
			}
		})
	}
}

func TestPrincipalFromContext_EmptyWithoutMiddleware(t *testing.T) {
	_, ok := PrincipalFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
