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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/auth"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/draft/autopick"
	"github.com/mcdev12/draftlobby/go/internal/draft/backplane"
	"github.com/mcdev12/draftlobby/go/internal/draft/gateway"
	"github.com/mcdev12/draftlobby/go/internal/draft/lifecycle"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg.Log)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

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
		Str("addr", cfg.GatewayAddr).
		Str("nats_url", cfg.NATSURL).
		Msg("starting draft gateway")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clock := clockwork.NewRealClock()
	st := store.NewPostgresStore(db)
	app := leagues.NewApp(clock)
	ctrl := lifecycle.NewController(st, clock, app, app, autopick.NewResolver(),
		lifecycle.WithMetrics(lifecycle.NewPrometheusMetrics(reg)),
	)

	wsCfg := gateway.DefaultConfig()
	wsCfg.MaxMessageBytes = cfg.Draft.MaxMessageBytes
	wsCfg.SendBuffer = cfg.Draft.SendBuffer
	wsCfg.InboundRatePerSec = cfg.Draft.InboundRatePerSec
	wsCfg.InboundBurst = cfg.Draft.InboundBurst
	wsCfg.TransitionTimeout = cfg.Draft.TransitionTimeout
	wsCfg.CheckOrigin = allowOrigins(cfg.AllowedOrigins)

	gw := gateway.New(wsCfg, st, ctrl.Events(), ctrl, app,
		auth.NewJWTResolver([]byte(cfg.JWTSecret), clock), clock,
		gateway.WithMetrics(gateway.NewPrometheusMetrics(reg)),
	)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway")
	}

	// Every gateway instance follows the whole stream so events committed by
	// any instance reach the connections held here.
	nc, js, err := backplane.Connect(cfg.NATSURL, "draft-gateway")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to backplane")
	}
	defer nc.Close()
	if _, err := backplane.EnsureStream(ctx, js, cfg.StreamMaxAge); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure event stream")
	}
	cc, err := backplane.Follow(ctx, js, gw.Deliver)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to follow event stream")
	}
	defer cc.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if !nc.IsConnected() {
			http.Error(w, "backplane unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", gw.Routes())

	// Websocket connections are long lived; only the handshake is bounded.
	server := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway server failed")
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
		log.Error().Err(err).Msg("gateway server shutdown failed")
	}
	gw.Stop()
	cancel()

	log.Info().Msg("draft gateway shutdown complete")
}

func allowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
