// Package featurelookup composes the lookup client, the retry policy and the
// normalizer into a single fetch operation.
package featurelookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/heartmarshall/featurelens/internal/config"
	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/provider"
	"github.com/heartmarshall/featurelens/pkg/ctxutil"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	journalTimeout      = 2 * time.Second
)

type lookupClient interface {
	Lookup(ctx context.Context, token string) (provider.RawResponse, error)
}

// Journal persists lookup outcomes.
type Journal interface {
	Log(ctx context.Context, rec domain.LookupRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.LookupRecord, error)
}

type lookupMetrics interface {
	RecordLookup(ctx context.Context, outcome domain.LookupOutcome, attempts int, d time.Duration)
}

// Normalizer turns a raw response into canonical records.
type Normalizer func(raw provider.RawResponse) []domain.FeatureExplanation

// Service fetches normalized explanations for one token, retrying transient
// failures.
type Service struct {
	log       *slog.Logger
	client    lookupClient
	normalize Normalizer
	retry     config.RetryConfig
	journal   Journal
	metrics   lookupMetrics
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithJournal records every fetch outcome in j.
func WithJournal(j Journal) Option {
	return func(s *Service) {
		if j != nil {
			s.journal = j
		}
	}
}

// WithMetrics reports every fetch outcome to m.
func WithMetrics(m lookupMetrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a lookup service.
func NewService(
	logger *slog.Logger,
	client lookupClient,
	normalize Normalizer,
	retry config.RetryConfig,
	opts ...Option,
) *Service {
	s := &Service{
		log:       logger.With("service", "featurelookup"),
		client:    client,
		normalize: normalize,
		retry:     retry,
		journal:   NoopJournal{},
		metrics:   noopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch looks up token and normalizes the response. Only network errors are
// retried; auth and service errors are returned after the first attempt.
// Errors are returned as the typed lookup errors from the client.
func (s *Service) Fetch(ctx context.Context, token string) ([]domain.FeatureExplanation, error) {
	start := s.now()
	attempts := 0
	var lastErr error

	op := func() (provider.RawResponse, error) {
		attempts++
		raw, err := s.client.Lookup(ctx, token)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			return raw, backoff.Permanent(err)
		}
		return raw, err
	}

	notify := func(err error, wait time.Duration) {
		s.log.WarnContext(ctx, "lookup failed, retrying",
			slog.String("token", token),
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	raw, err := backoff.RetryNotifyWithData(op, s.backOff(ctx), notify)
	if err != nil && lastErr != nil && !errors.Is(err, lastErr) {
		// The context ended while waiting between attempts.
		err = lastErr
	}

	var exps []domain.FeatureExplanation
	if err == nil {
		exps = s.normalize(raw)
	}

	s.record(ctx, token, exps, err, attempts, s.now().Sub(start))

	if err != nil {
		return nil, err
	}
	return exps, nil
}

// History returns the most recent lookup outcomes, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]domain.LookupRecord, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	records, err := s.journal.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list lookup history: %w", err)
	}
	return records, nil
}

func (s *Service) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retry.InitialInterval
	if s.retry.MaxInterval > 0 {
		exp.MaxInterval = s.retry.MaxInterval
	}
	exp.MaxElapsedTime = 0

	retries := s.retry.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

func (s *Service) record(ctx context.Context, token string, exps []domain.FeatureExplanation, err error, attempts int, d time.Duration) {
	outcome := domain.OutcomeOf(err)
	s.metrics.RecordLookup(ctx, outcome, attempts, d)

	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "lookup failed", append(ctxutil.LogAttrs(ctx),
			slog.String("token", token),
			slog.String("outcome", outcome.String()),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)...)
	} else {
		s.log.LogAttrs(ctx, slog.LevelInfo, "lookup completed", append(ctxutil.LogAttrs(ctx),
			slog.String("token", token),
			slog.Int("results", len(exps)),
			slog.Int("attempts", attempts),
			slog.Duration("duration", d),
		)...)
	}

	rec := domain.LookupRecord{
		ID:          uuid.New(),
		Token:       token,
		Outcome:     outcome,
		ResultCount: len(exps),
		StatusCode:  domain.StatusCodeOf(err),
		Attempts:    attempts,
		Duration:    d,
		CreatedAt:   s.now(),
	}

	// A canceled request still gets its outcome written.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if jerr := s.journal.Log(jctx, rec); jerr != nil {
		s.log.WarnContext(ctx, "lookup journal write failed",
			slog.String("token", token),
			slog.String("error", jerr.Error()),
		)
	}
}

// NoopJournal discards lookup records.
type NoopJournal struct{}

func (NoopJournal) Log(context.Context, domain.LookupRecord) error { return nil }

func (NoopJournal) ListRecent(context.Context, int) ([]domain.LookupRecord, error) {
	return []domain.LookupRecord{}, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, domain.LookupOutcome, int, time.Duration) {}
