package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/featurelens/internal/domain"
)

// ErrTooManySessions is returned by Create when the registry is full and no
// idle session can be evicted.
var ErrTooManySessions = errors.New("session: too many sessions")

type sessionMetrics interface {
	SetActiveSessions(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveSessions(int) {}

// Factory builds a new Session.
type Factory func() *Session

// Registry holds independent sessions keyed by id. Sessions never share a
// cache or selection state.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	newSession  Factory
	maxSessions int
	idleTimeout time.Duration
	now         func() time.Time
	metrics     sessionMetrics
	log         *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock replaces time.Now for idle eviction.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryMetrics reports the session count to m.
func WithRegistryMetrics(m sessionMetrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRegistry creates a Registry. An idleTimeout of zero disables eviction.
func NewRegistry(logger *slog.Logger, factory Factory, maxSessions int, idleTimeout time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:    make(map[uuid.UUID]*Session),
		newSession:  factory,
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		now:         time.Now,
		metrics:     noopMetrics{},
		log:         logger.With("service", "session_registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create adds a new session. When the registry is full, idle sessions are
// evicted first.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.evictIdleLocked()
		if len(r.sessions) >= r.maxSessions {
			return nil, ErrTooManySessions
		}
	}

	s := r.newSession()
	r.sessions[s.ID()] = s
	r.metrics.SetActiveSessions(len(r.sessions))

	r.log.Info("session created", slog.String("session_id", s.ID().String()))
	return s, nil
}

// Get returns the session with id or domain.ErrNotFound.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

// Delete removes the session with id or returns domain.ErrNotFound.
func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sessions, id)
	r.metrics.SetActiveSessions(len(r.sessions))

	r.log.Info("session deleted", slog.String("session_id", id.String()))
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle removes sessions unused for longer than the idle timeout and
// returns how many were removed.
func (r *Registry) EvictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictIdleLocked()
}

func (r *Registry) evictIdleLocked() int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTimeout)
	removed := 0
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.metrics.SetActiveSessions(len(r.sessions))
		r.log.Info("idle sessions evicted", slog.Int("count", removed))
	}
	return removed
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if r.idleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}
