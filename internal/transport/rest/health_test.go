package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingStub struct {
	err   error
	delay time.Duration
}

func (p pingStub) Ping(ctx context.Context) error {
	select {
	case <-time.After(p.delay):
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sessionCounterStub int

func (s sessionCounterStub) Len() int { return int(s) }

func probe(t *testing.T, h http.HandlerFunc, path string) HealthResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[HealthResponse](t, rec)
}

func TestLive(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(pingStub{err: errors.New("refused")}, nil, "v")
	resp := probe(t, h.Live, "/live")

	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Empty(t, resp.Components)
}

func TestReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		db   dbPinger
		want string
	}{
		{name: "database up", db: pingStub{}, want: "ok"},
		{name: "database down", db: pingStub{err: errors.New("connection refused")}, want: "degraded"},
		{name: "no database", db: nil, want: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := probe(t, NewHealthHandler(tt.db, nil, "v").Ready, "/ready")
			assert.Equal(t, tt.want, resp.Status)
			assert.Empty(t, resp.Version)
		})
	}
}

func TestHealth_Components(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		db         dbPinger
		wantStatus string
		wantDB     CompStatus
	}{
		{
			name:       "database up",
			db:         pingStub{delay: time.Millisecond},
			wantStatus: "ok",
			wantDB:     CompStatus{Status: "ok"},
		},
		{
			name:       "database down",
			db:         pingStub{err: errors.New("connection refused")},
			wantStatus: "degraded",
			wantDB:     CompStatus{Status: "down", Detail: "connection refused"},
		},
		{
			name:       "lookup log disabled",
			db:         nil,
			wantStatus: "ok",
			wantDB:     CompStatus{Status: "disabled"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler(tt.db, sessionCounterStub(3), "featurelens v1.2.0")
			resp := probe(t, h.Health, "/health")

			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "featurelens v1.2.0", resp.Version)
			assert.Equal(t, CompStatus{Status: "ok", Detail: "3 active"}, resp.Components["sessions"])

			db := resp.Components["database"]
			assert.Equal(t, tt.wantDB.Status, db.Status)
			assert.Equal(t, tt.wantDB.Detail, db.Detail)
			if tt.wantDB.Status == "ok" {
				assert.NotEmpty(t, db.Latency)
			} else {
				assert.Empty(t, db.Latency)
			}
		})
	}
}

func TestHealth_WithoutSessionCounter(t *testing.T) {
	t.Parallel()

	resp := probe(t, NewHealthHandler(nil, nil, "v").Health, "/health")
	_, ok := resp.Components["sessions"]
	assert.False(t, ok)
}
