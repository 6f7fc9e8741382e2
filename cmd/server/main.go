package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movieweb/db"
	"github.com/Clark-Hu/movieweb/internal/catalog"
	"github.com/Clark-Hu/movieweb/internal/config"
	"github.com/Clark-Hu/movieweb/internal/discovery"
	httpserver "github.com/Clark-Hu/movieweb/internal/http"
	"github.com/Clark-Hu/movieweb/internal/logging"
	"github.com/Clark-Hu/movieweb/internal/metadata"
	"github.com/Clark-Hu/movieweb/internal/metrics"
	"github.com/Clark-Hu/movieweb/internal/repository"
	"github.com/Clark-Hu/movieweb/internal/resilience"
	"github.com/Clark-Hu/movieweb/internal/store"
	"github.com/Clark-Hu/movieweb/internal/suggest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(logging.Options{Service: "movieweb"})
		boot.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "movieweb",
	})

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()
	if err := metrics.RegisterPoolStats(prometheus.DefaultRegisterer, st.Stats); err != nil {
		return err
	}

	if cfg.DBAutoMigrate {
		if _, err := st.Migrate(dbCtx, db.Migrations); err != nil {
			return err
		}
	}

	breaker := resilience.Settings{
		FailureThreshold: uint32(cfg.BreakerFailures),
		OpenTimeout:      time.Duration(cfg.BreakerOpenSecs) * time.Second,
		Logger:           logger,
	}

	mdTimeout := time.Duration(cfg.MetadataTimeoutSecs) * time.Second
	mdClient, err := metadata.NewHTTPClient(cfg.MetadataURL, cfg.MetadataAPIKey, mdTimeout, logger)
	if err != nil {
		return err
	}
	svc := catalog.NewService(repository.New(st), metadata.WithBreaker(mdClient, breaker), catalog.Options{
		LookupTimeout: mdTimeout,
		Logger:        logger,
	})

	var provider suggest.Provider
	suggestTimeout := time.Duration(cfg.SuggestTimeoutSecs) * time.Second
	if cfg.SuggestEnabled() {
		client := suggest.NewOpenAIClient(cfg.SuggestURL, cfg.SuggestAPIKey, cfg.SuggestModel, suggestTimeout, logger)
		provider = suggest.WithBreaker(client, breaker)
	} else {
		logger.Warn().Msg("SUGGEST_API_KEY not set; discovery endpoints will report not configured")
	}

	history, closeHistory, err := newHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	suggestOpts := suggest.Options{Timeout: suggestTimeout, Logger: logger}
	server := httpserver.New(cfg, httpserver.Deps{
		Health:      st,
		Catalog:     svc,
		Interpreter: suggest.NewInterpreter(provider, suggestOpts),
		Recommender: suggest.NewRecommender(provider, history, suggestOpts),
		Logger:      logger,
	})

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// newHistory picks the discovery history backend.
func newHistory(ctx context.Context, cfg config.Config) (discovery.Store, func(), error) {
	ttl := time.Duration(cfg.DiscoveryTTLSecs) * time.Second
	if cfg.DiscoveryBackend != "redis" {
		return discovery.NewMemoryStore(cfg.DiscoveryHistoryMax, ttl), func() {}, nil
	}
	client, err := discovery.NewRedisClient(ctx, discovery.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return discovery.NewRedisStore(client, cfg.DiscoveryHistoryMax, ttl), func() { _ = client.Close() }, nil
}
