package main

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/draft/adminapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Grpc-Status", "Grpc-Message", "Connect-Protocol-Version"},
	})
	r.Use(c.Handler)

	// Register services
	registerServices(r, services)

	// Add health check endpoint
	setupHealthCheck(r, services)

	r.Handle("/metrics", promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{}))

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    cfg.APIAddr,
		Handler: h2c.NewHandler(r, &http2.Server{}),
	}
}

func registerServices(r chi.Router, services *Services) {
	path, handler := adminapi.NewHandler(services.Admin,
		connect.WithInterceptors(adminapi.NewAuthInterceptor(services.Tokens)),
	)
	r.Mount(path, handler)
}

func setupHealthCheck(r chi.Router, services *Services) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := services.Store.Ping(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
