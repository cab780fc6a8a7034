package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heartmarshall/featurelens/internal/config"
)

func corsConfig(origins string) config.CORSConfig {
	return config.CORSConfig{
		AllowedOrigins:   origins,
		AllowedMethods:   "GET,POST,PUT,DELETE,OPTIONS",
		AllowedHeaders:   "Content-Type,X-Request-Id",
		AllowCredentials: true,
		MaxAge:           600,
	}
}

func TestCORS_Preflight(t *testing.T) {
	tests := []struct {
		name        string
		origins     string
		origin      string
		wantAllowed bool
	}{
		{name: "listed origin", origins: "https://lens.example, https://other.example", origin: "https://other.example", wantAllowed: true},
		{name: "wildcard", origins: "*", origin: "https://anything.example", wantAllowed: true},
		{name: "unlisted origin", origins: "https://lens.example", origin: "https://evil.example"},
		{name: "empty list", origins: "", origin: "https://lens.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(corsConfig(tt.origins))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("preflight reached the route")
			}))

			req := httptest.NewRequest(http.MethodOptions, "/sessions/abc/token", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			if !tt.wantAllowed {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
				return
			}
			assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET,POST,PUT,DELETE,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type,X-Request-Id", rec.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORS_SimpleRequestExposesHeaders(t *testing.T) {
	h := CORS(corsConfig("https://lens.example"))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/lookups", nil)
	req.Header.Set("Origin", "https://lens.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://lens.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-Id, Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_WithoutOriginOrPreflight(t *testing.T) {
	h := CORS(corsConfig("*"))(okHandler())

	// Same-origin request.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Bare OPTIONS without Access-Control-Request-Method is routed normally.
	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "https://lens.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_NoCredentialsHeaderWhenDisabled(t *testing.T) {
	cfg := corsConfig("https://lens.example")
	cfg.AllowCredentials = false
	h := CORS(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/lookups", nil)
	req.Header.Set("Origin", "https://lens.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
