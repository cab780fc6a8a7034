package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/featurelens/internal/config"
	"github.com/heartmarshall/featurelens/internal/service/session"
	"github.com/heartmarshall/featurelens/internal/transport/middleware"
	"github.com/heartmarshall/featurelens/internal/transport/rest"
)

const janitorInterval = time.Minute

// Run is the application entry point. It loads configuration, initializes
// the logger and serves HTTP until ctx is canceled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)
	return Serve(ctx, cfg, logger)
}

// Serve wires every component from cfg and runs the HTTP server, the
// session janitor and the rate limiter cleanup until ctx is canceled.
// Shutdown waits up to cfg.Server.ShutdownTimeout for in-flight requests.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.String("model_id", cfg.Lookup.ModelID),
	)

	rec, prom, err := NewRecorder(cfg.Server)
	if err != nil {
		return err
	}

	journal, err := OpenJournal(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	lookups := NewLookupService(cfg, logger, journal, rec)

	factory, err := NewSessionFactory(cfg, logger, lookups.Fetch, rec)
	if err != nil {
		return err
	}
	registry := session.NewRegistry(logger, factory, cfg.Session.MaxSessions, cfg.Session.IdleTimeout,
		session.WithRegistryMetrics(rec))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.CleanupInterval)
	defer limiter.Stop()

	deps := rest.Deps{
		Logger:           logger,
		Sessions:         rest.NewSessionHandler(registry, EmbedURL(cfg), logger),
		Lookups:          rest.NewLookupHandler(lookups, logger),
		CORS:             cfg.CORS,
		Limiter:          limiter,
		LookupsPerMinute: cfg.RateLimit.LookupsPerMinute,
	}
	if journal != nil {
		deps.Health = rest.NewHealthHandler(journal.Pool, registry, Version)
	} else {
		deps.Health = rest.NewHealthHandler(nil, registry, Version)
	}
	if prom != nil {
		deps.Metrics = prom.Handler()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      rest.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		registry.RunJanitor(gctx, janitorInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("application stopped")
	return nil
}
