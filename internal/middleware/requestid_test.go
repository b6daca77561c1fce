package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "none", inbound: "", keep: false},
		{name: "well_formed", inbound: "editor-42_a", keep: true},
		{name: "max_length", inbound: strings.Repeat("a", 128), keep: true},
		{name: "too_long", inbound: strings.Repeat("a", 129), keep: false},
		{name: "newline", inbound: "id\nlevel=ERROR", keep: false},
		{name: "markup", inbound: "<b>id</b>", keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(RequestIDHeader, tt.inbound)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tt.keep {
				assert.Equal(t, tt.inbound, seen)
			} else {
				assert.NotEqual(t, tt.inbound, seen)
				assert.Len(t, seen, 36)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	t.Run("bare_context", func(t *testing.T) {
		assert.Same(t, base, RequestLogger(context.Background(), base))
	})

	t.Run("annotated", func(t *testing.T) {
		buf.Reset()
		ctx := context.WithValue(context.Background(), requestIDKey{}, "req-9")
		ctx = WithPrincipal(ctx, "alice")
		RequestLogger(ctx, base).Info("statement submitted")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-9", entry["request_id"])
		assert.Equal(t, "alice", entry["user"])
	})
}
