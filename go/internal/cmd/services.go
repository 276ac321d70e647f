package main

import (
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/auth"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/draft/adminapi"
	"github.com/mcdev12/draftlobby/go/internal/draft/autopick"
	"github.com/mcdev12/draftlobby/go/internal/draft/lifecycle"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Services struct {
	Store    *store.PostgresStore
	Admin    *adminapi.Service
	Tokens   auth.TokenResolver
	Registry *prometheus.Registry
}

func setupServices(database *sql.DB, cfg *config.Config) *Services {
	// Database layer → Store → Lifecycle → Service layer
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clock := clockwork.NewRealClock()
	st := store.NewPostgresStore(database)
	leagueApp := leagues.NewApp(clock)
	ctrl := lifecycle.NewController(st, clock, leagueApp, leagueApp, autopick.NewResolver(),
		lifecycle.WithMetrics(lifecycle.NewPrometheusMetrics(reg)),
	)

	return &Services{
		Store:    st,
		Admin:    adminapi.NewService(st, ctrl, leagueApp),
		Tokens:   auth.NewJWTResolver([]byte(cfg.JWTSecret), clock),
		Registry: reg,
	}
}
