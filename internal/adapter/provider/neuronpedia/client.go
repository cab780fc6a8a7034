// Package neuronpedia queries the Neuronpedia explanation-search API and
// normalizes its drifting response shapes into domain.FeatureExplanation records.
package neuronpedia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/heartmarshall/featurelens/internal/config"
	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/provider"
)

const (
	apiKeyHeader = "x-api-key"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 16 << 20
	// maxErrorBody caps the body kept on Auth/Service errors.
	maxErrorBody = 4 << 10
)

// searchRequest is the JSON body of one search-all query.
type searchRequest struct {
	ModelID          string   `json:"modelId"`
	SourceSet        string   `json:"sourceSet"`
	Text             string   `json:"text"`
	SelectedLayers   []string `json:"selectedLayers"`
	SortIndexes      []int    `json:"sortIndexes"`
	IgnoreBOS        bool     `json:"ignoreBos"`
	DensityThreshold float64  `json:"densityThreshold"`
	NumResults       int      `json:"numResults"`
}

// Client sends one query per token to the lookup service. It performs no
// retries and no caching.
type Client struct {
	cfg         config.LookupConfig
	layers      []string
	sortIndexes []int
	httpClient  *http.Client
	log         *slog.Logger
}

// NewClient creates a Client from LookupConfig. The request timeout bounds
// every call, including reading the body.
func NewClient(cfg config.LookupConfig, logger *slog.Logger) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.RequestTimeout}, logger)
}

// NewClientWithHTTP creates a Client that uses the given *http.Client.
func NewClientWithHTTP(cfg config.LookupConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	layers := cfg.Layers
	if layers == nil {
		layers = config.ParseList(cfg.LayersRaw)
	}
	if layers == nil {
		layers = []string{}
	}

	sortIndexes := cfg.SortIndexes
	if sortIndexes == nil {
		parsed, err := config.ParseIntList(cfg.SortIndexesRaw)
		if err != nil {
			parsed = []int{}
		}
		sortIndexes = parsed
	}

	return &Client{
		cfg:         cfg,
		layers:      layers,
		sortIndexes: sortIndexes,
		httpClient:  httpClient,
		log:         logger.With("adapter", "neuronpedia"),
	}
}

// Lookup queries the service for token and returns the decoded body on a
// 2xx status. Failures are *domain.NetworkError (transport, timeout),
// *domain.AuthError (401/403) or *domain.ServiceError (any other status,
// or a 2xx body that is not JSON).
func (c *Client) Lookup(ctx context.Context, token string) (provider.RawResponse, error) {
	body, err := json.Marshal(searchRequest{
		ModelID:          c.cfg.ModelID,
		SourceSet:        c.cfg.SourceSet,
		Text:             token,
		SelectedLayers:   c.layers,
		SortIndexes:      c.sortIndexes,
		IgnoreBOS:        c.cfg.IgnoreBOS,
		DensityThreshold: c.cfg.DensityThreshold,
		NumResults:       c.cfg.MaxResults,
	})
	if err != nil {
		return provider.RawResponse{}, fmt.Errorf("neuronpedia: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return provider.RawResponse{}, fmt.Errorf("neuronpedia: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Credential != "" {
		req.Header.Set(apiKeyHeader, c.cfg.Credential)
	}

	c.log.DebugContext(ctx, "neuronpedia request",
		slog.String("token", token),
		slog.String("model_id", c.cfg.ModelID),
		slog.Int("layers", len(c.layers)),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "neuronpedia request failed",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return provider.RawResponse{}, &domain.NetworkError{Token: token, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return provider.RawResponse{}, &domain.NetworkError{Token: token, Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.DebugContext(ctx, "neuronpedia response",
		slog.String("token", token),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return provider.RawResponse{}, &domain.AuthError{
			Token:      token,
			StatusCode: resp.StatusCode,
			Body:       truncate(data),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return provider.RawResponse{}, &domain.ServiceError{
			Token:      token,
			StatusCode: resp.StatusCode,
			Body:       truncate(data),
		}
	}

	payload, err := decodePayload(data)
	if err != nil {
		return provider.RawResponse{}, &domain.ServiceError{
			Token:      token,
			StatusCode: resp.StatusCode,
			Body:       truncate(data),
			Err:        err,
		}
	}

	return provider.RawResponse{
		Token:      token,
		StatusCode: resp.StatusCode,
		Payload:    payload,
	}, nil
}

// decodePayload decodes a JSON document into an untyped tree. Numbers are
// kept as json.Number so large indexes survive without float rounding.
func decodePayload(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode json: trailing data after document")
	}
	return payload, nil
}

func truncate(data []byte) string {
	if len(data) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(data[n]) {
			n--
		}
		return string(data[:n])
	}
	return string(data)
}
