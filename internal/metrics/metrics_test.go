package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/featurelens/internal/domain"
)

func TestPrometheus_RecordLookup(t *testing.T) {
	t.Parallel()

	m, err := NewPrometheus()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordLookup(ctx, domain.LookupOutcomeOK, 1, 120*time.Millisecond)
	m.RecordLookup(ctx, domain.LookupOutcomeOK, 2, 300*time.Millisecond)
	m.RecordLookup(ctx, domain.LookupOutcomeNetworkError, 3, time.Second)
	m.RecordLookup(ctx, domain.LookupOutcome("bogus"), 1, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookupsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupsTotal.WithLabelValues("network_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupsTotal.WithLabelValues("other")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.lookupDuration))
}

func TestPrometheus_RecordCacheAccess(t *testing.T) {
	t.Parallel()

	m, err := NewPrometheus()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCacheAccess(ctx, true)
	m.RecordCacheAccess(ctx, false)
	m.RecordCacheAccess(ctx, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("miss")))
}

func TestPrometheus_Handler(t *testing.T) {
	t.Parallel()

	m, err := NewPrometheus()
	require.NoError(t, err)
	m.SetActiveSessions(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "featurelens_sessions_active 3"), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestNoop_NoPanic(t *testing.T) {
	t.Parallel()

	var r Recorder = NewNoop()
	assert.NotPanics(t, func() {
		r.RecordLookup(context.Background(), domain.LookupOutcomeOK, 1, time.Second)
		r.RecordCacheAccess(context.Background(), true)
		r.SetActiveSessions(1)
	})
}
