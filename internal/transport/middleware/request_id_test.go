package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/heartmarshall/featurelens/pkg/ctxutil"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{name: "reuses incoming", incoming: "req-abc-123", reuse: true},
		{name: "generates when missing", incoming: ""},
		{name: "replaces oversized", incoming: strings.Repeat("x", maxRequestIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotCtx string
			wrapped := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotCtx = ctxutil.RequestIDFromCtx(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			header := rec.Header().Get(RequestIDHeader)
			assert.Equal(t, gotCtx, header, "context and response header agree")
			if tt.reuse {
				assert.Equal(t, tt.incoming, header)
				return
			}
			_, err := uuid.Parse(header)
			assert.NoError(t, err, "generated id is a UUID")
		})
	}
}
