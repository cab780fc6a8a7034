package neuronpedia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/featurelens/internal/config"
	"github.com/heartmarshall/featurelens/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLookupConfig(endpoint string) config.LookupConfig {
	return config.LookupConfig{
		EndpointURL:      endpoint,
		ModelID:          "gemma-2-2b",
		SourceSet:        "gemmascope-res-16k",
		Layers:           []string{"20-gemmascope-res-16k"},
		SortIndexes:      []int{},
		IgnoreBOS:        true,
		DensityThreshold: -1,
		MaxResults:       50,
		Credential:       "test-key",
		RequestTimeout:   2 * time.Second,
	}
}

func TestClient_Lookup_Success(t *testing.T) {
	t.Parallel()

	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"description":"amphibian concept","neuron":{"pos_str":["toad"],"pos_values":[0.9]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(testLookupConfig(srv.URL), newTestLogger())
	raw, err := c.Lookup(context.Background(), "Frogs")
	require.NoError(t, err)

	assert.Equal(t, "Frogs", raw.Token)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.IsType(t, map[string]any{}, raw.Payload)

	assert.Equal(t, "Frogs", got.Text)
	assert.Equal(t, "gemma-2-2b", got.ModelID)
	assert.Equal(t, "gemmascope-res-16k", got.SourceSet)
	assert.Equal(t, []string{"20-gemmascope-res-16k"}, got.SelectedLayers)
	assert.Equal(t, []int{}, got.SortIndexes)
	assert.True(t, got.IgnoreBOS)
	assert.Equal(t, -1.0, got.DensityThreshold)
	assert.Equal(t, 50, got.NumResults)

	exps := Normalize(raw)
	require.Len(t, exps, 1)
	assert.Equal(t, "amphibian concept", exps[0].Description)
	assert.Equal(t, []domain.Term{{Word: "toad", Value: 0.9}}, exps[0].PositiveTerms)
	assert.Empty(t, exps[0].NegativeTerms)
}

func TestClient_Lookup_EmptyCredentialOmitsHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Api-Key"]
		assert.False(t, present, "x-api-key must not be sent without a credential")
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	cfg := testLookupConfig(srv.URL)
	cfg.Credential = ""
	_, err := NewClient(cfg, newTestLogger()).Lookup(context.Background(), "x")
	require.NoError(t, err)
}

func TestClient_Lookup_ParsesRawLayersWhenUnvalidated(t *testing.T) {
	t.Parallel()

	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cfg := testLookupConfig(srv.URL)
	cfg.Layers = nil
	cfg.SortIndexes = nil
	cfg.LayersRaw = "6-res-jb, 20-gemmascope-res-16k"
	cfg.SortIndexesRaw = "1,2"

	_, err := NewClient(cfg, newTestLogger()).Lookup(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"6-res-jb", "20-gemmascope-res-16k"}, got.SelectedLayers)
	assert.Equal(t, []int{1, 2}, got.SortIndexes)
}

func TestClient_Lookup_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantNot []error
	}{
		{name: "401 is auth", status: http.StatusUnauthorized, body: `{"error":"bad key"}`, wantIs: domain.ErrAuth, wantNot: []error{domain.ErrNetwork, domain.ErrService}},
		{name: "403 is auth", status: http.StatusForbidden, body: `forbidden`, wantIs: domain.ErrAuth, wantNot: []error{domain.ErrNetwork, domain.ErrService}},
		{name: "500 is service", status: http.StatusInternalServerError, body: `oops`, wantIs: domain.ErrService, wantNot: []error{domain.ErrNetwork, domain.ErrAuth}},
		{name: "429 is service", status: http.StatusTooManyRequests, body: ``, wantIs: domain.ErrService, wantNot: []error{domain.ErrNetwork, domain.ErrAuth}},
		{name: "404 is service", status: http.StatusNotFound, body: `not found`, wantIs: domain.ErrService, wantNot: []error{domain.ErrNotFound}},
		{name: "2xx non-json is service", status: http.StatusOK, body: `<html>hi</html>`, wantIs: domain.ErrService, wantNot: []error{domain.ErrNetwork}},
		{name: "2xx trailing data is service", status: http.StatusOK, body: `{} {}`, wantIs: domain.ErrService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(testLookupConfig(srv.URL), newTestLogger()).Lookup(context.Background(), "tok")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			for _, not := range tt.wantNot {
				assert.NotErrorIs(t, err, not)
			}
			assert.False(t, domain.IsRetryable(err))
		})
	}
}

func TestClient_Lookup_ServiceErrorKeepsStatusAndBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := NewClient(testLookupConfig(srv.URL), newTestLogger()).Lookup(context.Background(), "tok")

	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
	assert.Equal(t, "upstream down", svcErr.Body)
	assert.Equal(t, "tok", svcErr.Token)
}

func TestClient_Lookup_ErrorBodyTruncated(t *testing.T) {
	t.Parallel()

	big := make([]byte, maxErrorBody*2)
	for i := range big {
		big[i] = 'a'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write(big)
	}))
	defer srv.Close()

	_, err := NewClient(testLookupConfig(srv.URL), newTestLogger()).Lookup(context.Background(), "tok")

	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Len(t, authErr.Body, maxErrorBody)
}

func TestClient_Lookup_ErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// A three-byte rune straddles the cap.
	big := append(bytes.Repeat([]byte{'a'}, maxErrorBody-1), []byte("€€€")...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write(big)
	}))
	defer srv.Close()

	_, err := NewClient(testLookupConfig(srv.URL), newTestLogger()).Lookup(context.Background(), "tok")

	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.True(t, utf8.ValidString(svcErr.Body))
	assert.Len(t, svcErr.Body, maxErrorBody-1)
}

func TestTruncate_KeepsWholeRunes(t *testing.T) {
	t.Parallel()

	for offset := 0; offset < 4; offset++ {
		data := append(bytes.Repeat([]byte{'a'}, maxErrorBody-offset), []byte("日本語")...)
		got := truncate(data)
		assert.True(t, utf8.ValidString(got), "offset %d", offset)
		assert.LessOrEqual(t, len(got), maxErrorBody)
		assert.GreaterOrEqual(t, len(got), maxErrorBody-2)
	}
}

func TestClient_Lookup_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testLookupConfig(srv.URL)
	cfg.RequestTimeout = 50 * time.Millisecond

	_, err := NewClient(cfg, newTestLogger()).Lookup(context.Background(), "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.True(t, domain.IsRetryable(err))

	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestClient_Lookup_ContextCanceled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(testLookupConfig(srv.URL), newTestLogger()).Lookup(ctx, "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_Lookup_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(testLookupConfig(url), newTestLogger()).Lookup(context.Background(), "tok")
	require.Error(t, err)

	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "tok", netErr.Token)
	assert.False(t, errors.Is(err, domain.ErrAuth))
}

func TestDecodePayload_KeepsNumbers(t *testing.T) {
	t.Parallel()

	payload, err := decodePayload([]byte(`{"index": 12345678901234567}`))
	require.NoError(t, err)

	obj := payload.(map[string]any)
	assert.Equal(t, json.Number("12345678901234567"), obj["index"])
}
