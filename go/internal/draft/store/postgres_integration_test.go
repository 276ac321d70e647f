//go:build integration

package store_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/autopick"
	"github.com/mcdev12/draftlobby/go/internal/draft/drafttest"
	"github.com/mcdev12/draftlobby/go/internal/draft/eventlog"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/lifecycle"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 9, 6, 17, 0, 0, 0, time.UTC)

func newController(st store.Store, clock clockwork.Clock) *lifecycle.Controller {
	app := leagues.NewApp(clock)
	return lifecycle.NewController(st, clock, app, app, autopick.NewResolverWithSource(rand.NewSource(11)))
}

func eventNames(evs []models.DraftEvent) []events.Name {
	out := make([]events.Name, len(evs))
	for i, ev := range evs {
		out[i] = events.Name(ev.Name)
	}
	return out
}

func TestPostgresStore(t *testing.T) {
	db, _ := drafttest.StartPostgres(t)
	st := store.NewPostgresStore(db)
	ctx := context.Background()

	t.Run("draft runs to completion", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		ctrl := newController(st, clock)
		league := drafttest.SeedPostgresLeague(t, db, drafttest.LeagueOptions{
			Teams: 2, PlayersPerTeam: 1, AllowedPlayers: 3,
		})

		require.NoError(t, ctrl.StartDraft(ctx, league.ID))
		d, err := st.GetLeagueDraft(ctx, league.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStateDrafting, d.State)
		assert.ElementsMatch(t, league.TeamIDs(), d.PickOrder)
		require.NotNil(t, d.CurrentPickingTeamID)
		require.NotNil(t, d.CurrentPickEndsAt)
		assert.True(t, d.CurrentPickEndsAt.Equal(t0.Add(30*time.Second)))

		require.NoError(t, ctrl.SubmitPick(ctx, league.ID, *d.CurrentPickingTeamID, league.AllowedPlayers[0]))

		// The second turn times out and is auto-selected.
		clock.Advance(31 * time.Second)
		due, err := st.ListExpiredTurns(ctx, clock.Now(), 10)
		require.NoError(t, err)
		var found bool
		for _, turn := range due {
			if turn.LeagueID == league.ID {
				found = true
				assert.Equal(t, 2, turn.PickNumber)
				assert.True(t, turn.EndsAt.Equal(t0.Add(30*time.Second)))
			}
		}
		require.True(t, found, "expired turn not listed")
		require.NoError(t, ctrl.EndDraftTurnAt(ctx, league.ID, 2))

		d, err = st.GetLeagueDraft(ctx, league.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatePostDraft, d.State)

		evs, err := st.ListEvents(ctx, store.EventQuery{LeagueID: league.ID})
		require.NoError(t, err)
		assert.Equal(t, []events.Name{
			events.DraftStart,
			events.PickTurnStarted,
			events.PlayerDrafted,
			events.PickTurnEnded,
			events.PickTurnStarted,
			events.PickTurnEnded,
			events.PlayerDrafted,
			events.DraftEnd,
		}, eventNames(evs))
		require.NotNil(t, d.LastEventID)
		assert.Equal(t, evs[len(evs)-1].ID, *d.LastEventID)
		for i := 1; i < len(evs); i++ {
			assert.Greater(t, evs[i].Seq, evs[i-1].Seq)
		}

		var scheduled int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM schedule_requests WHERE league_id = $1`, league.ID).Scan(&scheduled))
		assert.Equal(t, 1, scheduled)
	})

	t.Run("catch-up cursors", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		ctrl := newController(st, clock)
		league := drafttest.SeedPostgresLeague(t, db, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 4})
		require.NoError(t, ctrl.StartDraft(ctx, league.ID))
		require.NoError(t, ctrl.RecordJoin(ctx, league.ID, league.Teams[0].OwnerID, "alice"))

		log := eventlog.New(clock)
		all, err := log.FindSince(ctx, st, league.ID, eventlog.FullHistory(), true)
		require.NoError(t, err)
		assert.Equal(t, []events.Name{events.DraftStart, events.PickTurnStarted}, eventNames(all))

		after, err := log.FindSince(ctx, st, league.ID, eventlog.After(all[0].ID), true)
		require.NoError(t, err)
		assert.Equal(t, []events.Name{events.PickTurnStarted}, eventNames(after))

		none, err := log.FindSince(ctx, st, league.ID, eventlog.NoCatchup(), true)
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = log.FindSince(ctx, st, league.ID, eventlog.After(uuid.New()), true)
		assert.ErrorIs(t, err, drafterr.ErrInvalidCatchupToken)

		withClient, err := log.FindSince(ctx, st, league.ID, eventlog.FullHistory(), false)
		require.NoError(t, err)
		assert.Equal(t, events.UserJoined, events.Name(withClient[2].Name))
		_, err = log.FindSince(ctx, st, league.ID, eventlog.After(withClient[2].ID), true)
		assert.ErrorIs(t, err, drafterr.ErrInvalidCatchupToken)
	})

	t.Run("unique assignment per league", func(t *testing.T) {
		league := drafttest.SeedPostgresLeague(t, db, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 1})
		assign := func(teamID uuid.UUID) error {
			return st.InTx(ctx, func(tx store.Tx) error {
				return tx.InsertRosterAssignment(ctx, &models.RosterAssignment{
					ID:         uuid.New(),
					LeagueID:   league.ID,
					TeamID:     teamID,
					PlayerID:   league.AllowedPlayers[0],
					PickNumber: 1,
					CreatedAt:  t0,
				})
			})
		}
		require.NoError(t, assign(league.Teams[0].ID))
		assert.ErrorIs(t, assign(league.Teams[1].ID), store.ErrDuplicateAssignment)

		err := st.InTx(ctx, func(tx store.Tx) error {
			return tx.InsertRosterAssignment(ctx, &models.RosterAssignment{
				ID: uuid.New(), LeagueID: league.ID, TeamID: league.Teams[1].ID, PlayerID: uuid.New(), PickNumber: 2, CreatedAt: t0,
			})
		})
		assert.ErrorIs(t, err, store.ErrUnknownPlayer)
	})

	t.Run("row lock serializes controllers in different processes", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		league := drafttest.SeedPostgresLeague(t, db, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 6})
		require.NoError(t, newController(st, clock).StartDraft(ctx, league.ID))
		clock.Advance(time.Minute)

		// Separate controllers share no in-process lock.
		const racers = 4
		errs := make([]error, racers)
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = newController(st, clock).EndDraftTurnAt(ctx, league.ID, 1)
			}(i)
		}
		wg.Wait()

		var ok, invalid int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case drafterr.IsInvalidState(err):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, racers-1, invalid)

		var assigned int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM roster_assignments WHERE league_id = $1`, league.ID).Scan(&assigned))
		assert.Equal(t, 1, assigned)

		ended, err := st.ListEvents(ctx, store.EventQuery{LeagueID: league.ID})
		require.NoError(t, err)
		var turnEnds int
		for _, ev := range ended {
			if events.Name(ev.Name) == events.PickTurnEnded {
				turnEnds++
			}
		}
		assert.Equal(t, 1, turnEnds)
	})

	t.Run("outbox tracks publication", func(t *testing.T) {
		league := drafttest.SeedPostgresLeague(t, db, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 2})
		require.NoError(t, newController(st, clockwork.NewFakeClockAt(t0)).StartDraft(ctx, league.ID))

		pending, err := st.ListUnpublishedEvents(ctx, 1000)
		require.NoError(t, err)
		require.NotEmpty(t, pending)
		for i := 1; i < len(pending); i++ {
			assert.Greater(t, pending[i].Seq, pending[i-1].Seq)
		}

		for _, ev := range pending {
			require.NoError(t, st.MarkEventPublished(ctx, ev.ID, t0))
		}
		n, err := st.CountUnpublishedEvents(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
