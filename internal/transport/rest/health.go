package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const pingTimeout = 3 * time.Second

// Component and overall states reported by the health endpoints.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDown     = "down"
	statusDisabled = "disabled"
)

type dbPinger interface {
	Ping(ctx context.Context) error
}

type sessionCounter interface {
	Len() int
}

// HealthHandler serves the probes. Lookups never depend on the lookup log,
// so an unreachable database degrades the service instead of taking it down.
type HealthHandler struct {
	db       dbPinger
	sessions sessionCounter
	version  string
}

// NewHealthHandler builds the probes. db is nil when the lookup log is
// disabled; sessions may be nil.
func NewHealthHandler(db dbPinger, sessions sessionCounter, version string) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions, version: version}
}

// HealthResponse is the body of every probe.
type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version,omitempty"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CompStatus is the state of one dependency.
type CompStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Live answers 200 while the process serves HTTP.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: statusOK, Timestamp: time.Now()})
}

// Ready answers 200 whenever sessions can be served, including while the
// lookup log is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    overall(h.pingDB(r.Context())),
		Timestamp: time.Now(),
	})
}

// Health reports every component, the live session count and the build.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	db := h.pingDB(r.Context())
	components := map[string]CompStatus{"database": db}
	if h.sessions != nil {
		components["sessions"] = CompStatus{Status: statusOK, Detail: strconv.Itoa(h.sessions.Len()) + " active"}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     overall(db),
		Version:    h.version,
		Components: components,
		Timestamp:  time.Now(),
	})
}

func overall(db CompStatus) string {
	if db.Status == statusDown {
		return statusDegraded
	}
	return statusOK
}

func (h *HealthHandler) pingDB(ctx context.Context) CompStatus {
	if h.db == nil {
		return CompStatus{Status: statusDisabled}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		return CompStatus{Status: statusDown, Detail: err.Error()}
	}
	return CompStatus{Status: statusOK, Latency: time.Since(start).String()}
}
