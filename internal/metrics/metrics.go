// Package metrics records lookup, cache and session telemetry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heartmarshall/featurelens/internal/domain"
)

// Recorder is the telemetry API used by services. Implementations must be
// safe for concurrent use.
type Recorder interface {
	// RecordLookup records one completed fetch, including all retries.
	RecordLookup(ctx context.Context, outcome domain.LookupOutcome, attempts int, d time.Duration)
	// RecordCacheAccess records a cache hit or miss.
	RecordCacheAccess(ctx context.Context, hit bool)
	// SetActiveSessions reports the number of live sessions.
	SetActiveSessions(n int)
}

const namespace = "featurelens"

var lookupBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30}

// Prometheus is a Recorder backed by its own prometheus.Registry.
type Prometheus struct {
	registry *prometheus.Registry

	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	lookupAttempts prometheus.Histogram
	cacheRequests  *prometheus.CounterVec
	sessionsActive prometheus.Gauge
}

// NewPrometheus creates a Recorder and registers its collectors, plus the
// Go and process collectors, on a fresh registry.
func NewPrometheus() (*Prometheus, error) {
	m := &Prometheus{registry: prometheus.NewRegistry()}

	m.lookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lookups_total",
		Help:      "Total number of explanation lookups by outcome.",
	}, []string{"outcome"})

	m.lookupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lookup_duration_seconds",
		Help:      "Duration of explanation lookups, including retries.",
		Buckets:   lookupBuckets,
	}, []string{"outcome"})

	m.lookupAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lookup_attempts",
		Help:      "Number of attempts made per lookup.",
		Buckets:   []float64{1, 2, 3, 5, 8},
	})

	m.cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Total number of lookup cache requests by result.",
	}, []string{"result"})

	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live interactive sessions.",
	})

	toRegister := []prometheus.Collector{
		m.lookupsTotal,
		m.lookupDuration,
		m.lookupAttempts,
		m.cacheRequests,
		m.sessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Prometheus) RecordLookup(_ context.Context, outcome domain.LookupOutcome, attempts int, d time.Duration) {
	if !outcome.IsValid() {
		outcome = domain.LookupOutcomeOther
	}
	m.lookupsTotal.WithLabelValues(outcome.String()).Inc()
	m.lookupDuration.WithLabelValues(outcome.String()).Observe(d.Seconds())
	if attempts > 0 {
		m.lookupAttempts.Observe(float64(attempts))
	}
}

func (m *Prometheus) RecordCacheAccess(_ context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Prometheus) SetActiveSessions(n int) {
	m.sessionsActive.Set(float64(n))
}

// Registry exposes the underlying registry.
func (m *Prometheus) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: true,
	})
}

// Noop discards everything.
type Noop struct{}

// NewNoop returns a Recorder that records nothing.
func NewNoop() Noop { return Noop{} }

func (Noop) RecordLookup(context.Context, domain.LookupOutcome, int, time.Duration) {}
func (Noop) RecordCacheAccess(context.Context, bool) {}
func (Noop) SetActiveSessions(int) {}
