package leagues

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/drafttest"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasMinimumTeams(t *testing.T) {
	ctx := context.Background()
	app := NewApp(clockwork.NewFakeClock())

	tests := []struct {
		name     string
		teams    int
		minTeams int
		want     bool
	}{
		{name: "exactly minimum", teams: 2, minTeams: 2, want: true},
		{name: "above minimum", teams: 4, minTeams: 2, want: true},
		{name: "below minimum", teams: 1, minTeams: 2, want: false},
		{name: "no teams", teams: 0, minTeams: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := drafttest.NewMemStore()
			l := m.SeedLeague(drafttest.LeagueOptions{Teams: tt.teams, MinTeams: tt.minTeams})

			ok, reason, err := app.HasMinimumTeams(ctx, m, l.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.Equal(t, ReasonNotEnoughTeams, reason)
			}
		})
	}
}

func TestHasMinimumTeams_UnknownLeague(t *testing.T) {
	_, _, err := NewApp(clockwork.NewFakeClock()).HasMinimumTeams(context.Background(), drafttest.NewMemStore(), uuid.New())
	assert.ErrorIs(t, err, drafterr.ErrNotFound)
}

func TestRosterSize(t *testing.T) {
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 5})

	n, err := NewApp(clockwork.NewFakeClock()).RosterSize(context.Background(), m, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestTeamForUser(t *testing.T) {
	ctx := context.Background()
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2})
	app := NewApp(clockwork.NewFakeClock())

	team, err := app.TeamForUser(ctx, m, l.ID, l.Teams[1].OwnerID)
	require.NoError(t, err)
	assert.Equal(t, l.Teams[1].ID, team.ID)

	_, err = app.TeamForUser(ctx, m, l.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)

	other := m.SeedLeague(drafttest.LeagueOptions{Teams: 1, MinTeams: 1})
	_, err = app.TeamForUser(ctx, m, l.ID, other.Teams[0].OwnerID)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestRequestSchedule(t *testing.T) {
	m := drafttest.NewMemStore()
	l := m.SeedLeague(drafttest.LeagueOptions{Teams: 2})
	app := NewApp(clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, m.InTx(context.Background(), func(tx store.Tx) error {
		return app.RequestSchedule(context.Background(), tx, l.ID)
	}))
	assert.Equal(t, []uuid.UUID{l.ID}, m.ScheduleRequests())
}

func TestValidateLeague(t *testing.T) {
	valid := models.League{Name: "Sunday League", MinTeams: 2, MaxTeams: 10, PlayersPerTeam: 15}
	require.NoError(t, ValidateLeague(valid))

	tests := []struct {
		name   string
		mutate func(*models.League)
	}{
		{name: "missing name", mutate: func(l *models.League) { l.Name = "" }},
		{name: "zero min teams", mutate: func(l *models.League) { l.MinTeams = 0 }},
		{name: "max below min", mutate: func(l *models.League) { l.MaxTeams = 1 }},
		{name: "empty roster", mutate: func(l *models.League) { l.PlayersPerTeam = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid
			tt.mutate(&l)
			assert.ErrorIs(t, ValidateLeague(l), drafterr.ErrInvalidInput)
		})
	}

	assert.ErrorIs(t, ValidateTimePerPick(0), drafterr.ErrInvalidInput)
	assert.NoError(t, ValidateTimePerPick(30))
}
