package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/draft/backplane"
	"github.com/mcdev12/draftlobby/go/internal/draft/outbox"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg.Log)

	dsn := cfg.DB.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
	}
	log.Info().
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("database", cfg.DB.Database).
		Msg("connected to database")

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, js, err := backplane.Connect(cfg.NATSURL, "draft-outbox")
	if err != nil {
		log.Fatal().Err(err).Msg("connect to backplane")
	}
	defer nc.Close()
	if _, err := backplane.EnsureStream(ctx, js, cfg.StreamMaxAge); err != nil {
		log.Fatal().Err(err).Msg("ensure event stream")
	}

	notifier, err := outbox.NewPQNotifier(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clock := clockwork.NewRealClock()
	st := store.NewPostgresStore(db)

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.BatchSize = cfg.Draft.RelayBatchSize
	ltCfg.FallbackInterval = cfg.Draft.RelayFallbackPeriod
	listener := outbox.NewListener(st, notifier, outbox.NewJetStreamPublisher(js), clock, ltCfg, outbox.NewPrometheusMetrics(reg))

	r := chi.NewRouter()
	r.Handle("/health", outbox.NewHealthChecker(listener, st, st, nc, clock, time.Minute))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              cfg.RelayAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	// run listener
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- listener.Start(ctx)
	}()

	// wait for shutdown or error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("listener close failed")
		}
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}
	log.Info().Msg("graceful shutdown complete")
}
