//go:build integration

package drafttest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// StartPostgres runs a migrated Postgres container for the test and returns
// an open handle and its DSN.
func StartPostgres(t *testing.T) (*sql.DB, string) {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("draftlobby"),
		postgres.WithUsername("draft"),
		postgres.WithPassword("draft"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, store.Migrate(db))
	return db, dsn
}

// StartNATS runs a JetStream-enabled NATS container and returns its URL.
func StartNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcnats.Run(ctx, "nats:2.10-alpine")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start nats container")

	url, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	return url
}

// SeedPostgresLeague creates a PRE_DRAFT league the way SeedLeague does for
// the in-memory store.
func SeedPostgresLeague(t *testing.T, db *sql.DB, opts LeagueOptions) *League {
	t.Helper()
	ctx := context.Background()
	if opts.MinTeams == 0 {
		opts.MinTeams = 2
	}
	if opts.PlayersPerTeam == 0 {
		opts.PlayersPerTeam = 2
	}
	if opts.TimePerPickSec == 0 {
		opts.TimePerPickSec = 30
	}

	l := &League{ID: uuid.New()}
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	exec := func(query string, args ...any) {
		t.Helper()
		_, err := tx.ExecContext(ctx, query, args...)
		require.NoError(t, err, query)
	}

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exec(`INSERT INTO leagues (id, name, min_teams, max_teams, players_per_team, created_at) VALUES ($1, $2, $3, 12, $4, $5)`,
		l.ID, "league "+l.ID.String()[:8], opts.MinTeams, opts.PlayersPerTeam, created)

	for i := 0; i < opts.Teams; i++ {
		team := models.FantasyTeam{
			ID:            uuid.New(),
			LeagueID:      l.ID,
			OwnerID:       uuid.New(),
			OwnerUsername: fmt.Sprintf("owner%d", i+1),
			Name:          fmt.Sprintf("team %d", i+1),
			CreatedAt:     created.Add(time.Duration(i) * time.Second),
		}
		exec(`INSERT INTO fantasy_teams (id, league_id, owner_id, owner_username, name, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			team.ID, team.LeagueID, team.OwnerID, team.OwnerUsername, team.Name, team.CreatedAt)
		l.Teams = append(l.Teams, team)
	}

	allowedPool, otherPool := uuid.New(), uuid.New()
	exec(`INSERT INTO player_pools (id, name) VALUES ($1, $2), ($3, $4)`,
		allowedPool, "allowed "+allowedPool.String(), otherPool, "other "+otherPool.String())
	exec(`INSERT INTO league_allowed_pools (league_id, pool_id) VALUES ($1, $2)`, l.ID, allowedPool)
	for i := 0; i < opts.AllowedPlayers; i++ {
		id := uuid.New()
		exec(`INSERT INTO players (id, pool_id, full_name) VALUES ($1, $2, $3)`, id, allowedPool, fmt.Sprintf("allowed %d", i))
		l.AllowedPlayers = append(l.AllowedPlayers, id)
	}
	for i := 0; i < opts.OtherPlayers; i++ {
		id := uuid.New()
		exec(`INSERT INTO players (id, pool_id, full_name) VALUES ($1, $2, $3)`, id, otherPool, fmt.Sprintf("other %d", i))
		l.OtherPlayers = append(l.OtherPlayers, id)
	}

	exec(`INSERT INTO league_drafts (league_id, time_per_pick_sec, draft_starts_at, updated_at) VALUES ($1, $2, $3, $4)`,
		l.ID, opts.TimePerPickSec, opts.DraftStartsAt, created)

	require.NoError(t, tx.Commit())
	return l
}
