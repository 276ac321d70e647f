package autopick

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/draft/drafttest"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectFor(t *testing.T, m *drafttest.MemStore, r *Resolver, leagueID, teamID uuid.UUID) *uuid.UUID {
	t.Helper()
	var got *uuid.UUID
	require.NoError(t, m.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		got, err = r.Select(context.Background(), tx, leagueID, teamID)
		return err
	}))
	return got
}

func TestSelect_WatchlistFirstAvailable(t *testing.T) {
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 5})
	team := l.Teams[0].ID
	m.SetWatchlist(team, l.AllowedPlayers[3], l.AllowedPlayers[1], l.AllowedPlayers[2])
	m.Assign(l.ID, l.Teams[1].ID, l.AllowedPlayers[3])

	got := selectFor(t, m, NewResolverWithSource(rand.NewSource(1)), l.ID, team)
	require.NotNil(t, got)
	assert.Equal(t, l.AllowedPlayers[1], *got)
}

func TestSelect_RandomFromAllowedPools(t *testing.T) {
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 3, OtherPlayers: 10})
	m.SetWatchlist(l.Teams[0].ID, l.AllowedPlayers[0])
	m.Assign(l.ID, l.Teams[1].ID, l.AllowedPlayers[0])

	r := NewResolverWithSource(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got := selectFor(t, m, r, l.ID, l.Teams[0].ID)
		require.NotNil(t, got)
		assert.Contains(t, l.AllowedPlayers[1:], *got)
	}
}

func TestSelect_FallsBackLeagueWide(t *testing.T) {
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 1, OtherPlayers: 2})
	m.Assign(l.ID, l.Teams[1].ID, l.AllowedPlayers[0])

	got := selectFor(t, m, NewResolverWithSource(rand.NewSource(3)), l.ID, l.Teams[0].ID)
	require.NotNil(t, got)
	assert.Contains(t, l.OtherPlayers, *got)
}

func TestSelect_NothingLeft(t *testing.T) {
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 1})
	m.Assign(l.ID, l.Teams[1].ID, l.AllowedPlayers[0])

	got := selectFor(t, m, NewResolver(), l.ID, l.Teams[0].ID)
	assert.Nil(t, got)
}

func TestSelect_AssignmentsInOtherLeaguesIgnored(t *testing.T) {
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 1})
	other := m.SeedLeague(drafttest.LeagueOptions{Teams: 2})
	m.Assign(other.ID, other.Teams[0].ID, l.AllowedPlayers[0])

	got := selectFor(t, m, NewResolver(), l.ID, l.Teams[0].ID)
	require.NotNil(t, got)
	assert.Equal(t, l.AllowedPlayers[0], *got)
}
