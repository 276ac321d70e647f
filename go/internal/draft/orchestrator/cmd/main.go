package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/draft/autopick"
	"github.com/mcdev12/draftlobby/go/internal/draft/backplane"
	"github.com/mcdev12/draftlobby/go/internal/draft/lifecycle"
	"github.com/mcdev12/draftlobby/go/internal/draft/orchestrator"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
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

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	log.Info().
		Str("database", cfg.DB.Database).
		Str("nats_url", cfg.NATSURL).
		Dur("scan_interval", cfg.Draft.ScanInterval).
		Msg("starting draft orchestrator")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clock := clockwork.NewRealClock()
	st := store.NewPostgresStore(db)
	rules := leagues.NewApp(clock)
	ctrl := lifecycle.NewController(st, clock, rules, rules, autopick.NewResolver(),
		lifecycle.WithMetrics(lifecycle.NewPrometheusMetrics(reg)),
	)

	orch := orchestrator.NewOrchestrator(st, ctrl, clock, orchestrator.Config{
		ScanInterval:      cfg.Draft.ScanInterval,
		BatchSize:         cfg.Draft.ScanBatchSize,
		Workers:           cfg.Draft.ScanWorkers,
		TransitionTimeout: cfg.Draft.TransitionTimeout,
	}, orchestrator.NewPrometheusMetrics(reg))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		if err := orch.Run(ctx); err != nil {
			log.Error().Err(err).Msg("orchestrator scanner failed")
		}
	}()

	// Turn deadlines from the backplane sharpen timeouts; the scan still runs without it.
	nc, js, err := backplane.Connect(cfg.NATSURL, "draft-orchestrator")
	if err != nil {
		log.Warn().Err(err).Msg("backplane unavailable; relying on scan only")
	} else {
		defer nc.Close()
		if _, err := backplane.EnsureStream(ctx, js, cfg.StreamMaxAge); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure event stream")
		}
		cc, err := backplane.Follow(ctx, js, orch.HandleEvent)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to follow event stream")
		}
		defer cc.Stop()
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         cfg.OrchestratorAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}

	cancel()
	select {
	case <-scanDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("scanner did not stop before shutdown deadline")
	}

	log.Info().Msg("draft orchestrator shutdown complete")
}
