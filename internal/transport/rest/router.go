package rest

import (
	"log/slog"
	"net/http"

	"github.com/heartmarshall/featurelens/internal/config"
	"github.com/heartmarshall/featurelens/internal/transport/middleware"
)

// Deps holds everything NewRouter wires into the mux.
type Deps struct {
	Logger   *slog.Logger
	Sessions *SessionHandler
	Lookups  *LookupHandler
	Health   *HealthHandler
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	CORS    config.CORSConfig
	// Limiter throttles token selection when non-nil.
	Limiter          *middleware.RateLimiter
	LookupsPerMinute int
}

// NewRouter builds the HTTP handler: routes plus the middleware chain.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /live", d.Health.Live)
	mux.HandleFunc("GET /ready", d.Health.Ready)
	mux.HandleFunc("GET /health", d.Health.Health)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	var throttle middleware.Middleware
	if d.Limiter != nil {
		throttle = d.Limiter.Limit(d.LookupsPerMinute)
	}

	mux.HandleFunc("POST /sessions", d.Sessions.Create)
	mux.HandleFunc("GET /sessions/{id}", d.Sessions.Get)
	mux.HandleFunc("DELETE /sessions/{id}", d.Sessions.Delete)
	mux.HandleFunc("PUT /sessions/{id}/sentence", d.Sessions.SetSentence)
	mux.Handle("POST /sessions/{id}/token", middleware.Then(d.Sessions.SelectToken, throttle))
	mux.HandleFunc("POST /sessions/{id}/feature", d.Sessions.SelectFeature)

	mux.HandleFunc("GET /lookups", d.Lookups.List)

	// Logger must wrap the mux directly so it sees the matched route.
	return middleware.Chain(
		middleware.Recovery(d.Logger),
		middleware.RequestID(),
		middleware.CORS(d.CORS),
		middleware.Logger(d.Logger),
	)(mux)
}
