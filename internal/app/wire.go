package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/featurelens/internal/adapter/postgres"
	"github.com/heartmarshall/featurelens/internal/adapter/postgres/lookuplog"
	"github.com/heartmarshall/featurelens/internal/adapter/provider/neuronpedia"
	"github.com/heartmarshall/featurelens/internal/config"
	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/metrics"
	"github.com/heartmarshall/featurelens/internal/service/featurecache"
	"github.com/heartmarshall/featurelens/internal/service/featurelookup"
	"github.com/heartmarshall/featurelens/internal/service/session"
	"github.com/heartmarshall/featurelens/internal/tokenizer"
)

// Journal is an open lookup log. Close releases its pool.
type Journal struct {
	Pool *pgxpool.Pool
	Repo *lookuplog.Repo
}

// Close releases the connection pool.
func (j *Journal) Close() {
	if j != nil && j.Pool != nil {
		j.Pool.Close()
	}
}

// OpenJournal connects to the lookup log database, applying pending
// migrations first when AutoMigrate is set. It returns nil when no
// database is configured.
func OpenJournal(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Journal, error) {
	if !cfg.Enabled() {
		logger.Info("lookup log disabled: no database configured")
		return nil, nil
	}

	if cfg.AutoMigrate {
		if err := MigrateUp(ctx, cfg.DSN, logger); err != nil {
			return nil, err
		}
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("lookup log: %w", err)
	}
	logger.Info("lookup log connected", slog.Int("max_conns", int(cfg.MaxConns)))

	return &Journal{Pool: pool, Repo: lookuplog.New(pool)}, nil
}

// MigrateUp applies all pending lookup log migrations.
func MigrateUp(ctx context.Context, dsn string, logger *slog.Logger) error {
	m, err := postgres.NewMigrator(ctx, dsn, logger)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer m.Close()

	results, err := m.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// NewRecorder returns a Prometheus recorder when metrics are enabled and a
// no-op recorder otherwise. The Prometheus value is nil when disabled.
func NewRecorder(cfg config.ServerConfig) (metrics.Recorder, *metrics.Prometheus, error) {
	if !cfg.MetricsEnabled {
		return metrics.NewNoop(), nil, nil
	}
	prom, err := metrics.NewPrometheus()
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	return prom, prom, nil
}

// NewLookupService wires the lookup client, retry policy and normalizer.
// journal may be nil.
func NewLookupService(cfg *config.Config, logger *slog.Logger, journal *Journal, rec metrics.Recorder) *featurelookup.Service {
	client := neuronpedia.NewClient(cfg.Lookup, logger)

	opts := []featurelookup.Option{featurelookup.WithMetrics(rec)}
	if journal != nil {
		opts = append(opts, featurelookup.WithJournal(journal.Repo))
	}

	return featurelookup.NewService(logger, client, neuronpedia.Normalize, cfg.Retry, opts...)
}

// NewSessionFactory returns a factory for sessions sharing fetch, each with
// its own cache.
func NewSessionFactory(cfg *config.Config, logger *slog.Logger, fetch featurecache.FetchFunc, rec metrics.Recorder) (session.Factory, error) {
	tokOpts, ok := tokenizer.ParseForm(cfg.Tokenizer.UnicodeForm)
	if !ok {
		return nil, fmt.Errorf("tokenizer: unknown unicode_form %q", cfg.Tokenizer.UnicodeForm)
	}
	tok := tokenizer.New(tokOpts...)

	cacheOpts := []featurecache.Option{featurecache.WithMetrics(rec)}
	if cfg.Cache.TTL > 0 {
		cacheOpts = append(cacheOpts, featurecache.WithTTL(cfg.Cache.TTL))
	}
	if attempts := cfg.Retry.MaxAttempts; attempts > 0 && cfg.Lookup.RequestTimeout > 0 {
		// Every attempt may time out and be followed by the longest backoff.
		perAttempt := cfg.Lookup.RequestTimeout + cfg.Retry.MaxInterval
		cacheOpts = append(cacheOpts, featurecache.WithFetchTimeout(time.Duration(attempts)*perAttempt))
	}

	return func() *session.Session {
		return session.New(fetch,
			session.WithTokenizer(tok),
			session.WithCacheOptions(cacheOpts...),
			session.WithLogger(logger),
		)
	}, nil
}

// EmbedURL returns a function deriving dashboard URLs from explanations.
func EmbedURL(cfg *config.Config) func(domain.FeatureExplanation) (string, error) {
	return func(f domain.FeatureExplanation) (string, error) {
		return neuronpedia.EmbedURLFor(cfg.Embed.BaseURL, cfg.Lookup.ModelID, f, cfg.Embed.Height)
	}
}
