package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/autopick"
	"github.com/mcdev12/draftlobby/go/internal/draft/drafttest"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/pick"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 9, 6, 17, 0, 0, 0, time.UTC)

type harness struct {
	store  *drafttest.MemStore
	clock  *clockwork.FakeClock
	ctrl   *Controller
	league *drafttest.League
}

func newHarness(t *testing.T, opts drafttest.LeagueOptions, ctrlOpts ...Option) *harness {
	t.Helper()
	m := drafttest.NewMemStore()
	clock := clockwork.NewFakeClockAt(t0)
	app := leagues.NewApp(clock)
	// Keep creation order so snake assertions are deterministic.
	ctrlOpts = append([]Option{WithShuffle(func([]uuid.UUID) {})}, ctrlOpts...)
	return &harness{
		store:  m,
		clock:  clock,
		ctrl:   NewController(m, clock, app, app, autopick.NewResolverWithSource(rand.NewSource(42)), ctrlOpts...),
		league: m.SeedLeague(opts),
	}
}

func (h *harness) draft() *models.LeagueDraft {
	return h.store.Draft(h.league.ID)
}

func (h *harness) names() []events.Name {
	return h.store.EventNames(h.league.ID)
}

func decode[T any](t *testing.T, ev models.DraftEvent) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

func eventsNamed(evs []models.DraftEvent, name events.Name) []models.DraftEvent {
	var out []models.DraftEvent
	for _, ev := range evs {
		if ev.Name == string(name) {
			out = append(out, ev)
		}
	}
	return out
}

func TestStartDraft(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 4, AllowedPlayers: 10})
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	d := h.draft()
	assert.Equal(t, models.DraftStateDrafting, d.State)
	assert.Equal(t, h.league.TeamIDs(), d.PickOrder)
	assert.Equal(t, 1, d.CurrentPickNumber)
	assert.Equal(t, h.league.Teams[0].ID, *d.CurrentPickingTeamID)
	assert.True(t, t0.Equal(*d.CurrentPickStartsAt))
	assert.True(t, t0.Add(30*time.Second).Equal(*d.CurrentPickEndsAt))
	assert.Equal(t, []events.Name{events.DraftStart, events.PickTurnStarted}, h.names())

	evs := h.store.Events(h.league.ID)
	assert.Equal(t, evs[len(evs)-1].ID, *d.LastEventID)
	started := decode[events.PickTurnStartedPayload](t, evs[1])
	assert.Equal(t, 1, started.PickNumber)
	assert.Equal(t, h.league.Teams[0].ID, started.TeamID)
	assert.True(t, started.EndsAt.Equal(t0.Add(30*time.Second)))
}

func TestStartDraft_ShufflesPickOrder(t *testing.T) {
	reversed := func(ids []uuid.UUID) {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	h := newHarness(t, drafttest.LeagueOptions{Teams: 3}, WithShuffle(reversed))

	require.NoError(t, h.ctrl.StartDraft(context.Background(), h.league.ID))

	ids := h.league.TeamIDs()
	assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, h.draft().PickOrder)
	assert.Equal(t, ids[2], *h.draft().CurrentPickingTeamID)
}

func TestStartDraft_CancelledBelowMinimumTeams(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 1, MinTeams: 2})
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	assert.Equal(t, models.DraftStateCancelled, h.draft().State)
	assert.Equal(t, []events.Name{events.DraftCancelled}, h.names())
	payload := decode[events.DraftCancelledPayload](t, h.store.Events(h.league.ID)[0])
	assert.Equal(t, "not enough teams", payload.Reason)

	err := h.ctrl.StartDraft(ctx, h.league.ID)
	assert.True(t, drafterr.IsInvalidState(err), "got %v", err)
}

func TestStartDraft_NotPreDraft(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	err := h.ctrl.StartDraft(ctx, h.league.ID)
	var ise *drafterr.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, string(models.DraftStateDrafting), ise.State)
	assert.Len(t, h.names(), 2)
}

func TestStartDraft_UnknownLeague(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2})
	err := h.ctrl.StartDraft(context.Background(), uuid.New())
	assert.ErrorIs(t, err, drafterr.ErrNotFound)
}

// Four teams, 30 second turns, nobody picks: every turn times out and is filled
// by auto-select in snake order until every roster is full.
func TestDraft_EndToEndWithTimeouts(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 4, PlayersPerTeam: 2, AllowedPlayers: 20})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	for i := 0; i < 100 && h.draft().State == models.DraftStateDrafting; i++ {
		d := h.draft()
		h.clock.Advance(d.CurrentPickEndsAt.Sub(h.clock.Now()))
		require.NoError(t, h.ctrl.EndDraftTurnAt(ctx, h.league.ID, d.CurrentPickNumber))
	}

	d := h.draft()
	require.Equal(t, models.DraftStatePostDraft, d.State)
	assert.Nil(t, d.CurrentPickEndsAt)
	assert.Equal(t, 8, d.CurrentPickNumber)
	assert.Equal(t, []uuid.UUID{h.league.ID}, h.store.ScheduleRequests())

	evs := h.store.Events(h.league.ID)
	assert.Equal(t, events.DraftEnd, events.Name(evs[len(evs)-1].Name))
	assert.Equal(t, evs[len(evs)-1].ID, *d.LastEventID)

	ids := h.league.TeamIDs()
	wantTeams := []uuid.UUID{ids[0], ids[1], ids[2], ids[3], ids[3], ids[2], ids[1], ids[0]}

	drafted := eventsNamed(evs, events.PlayerDrafted)
	require.Len(t, drafted, 8)
	for i, ev := range drafted {
		p := decode[events.PlayerDraftedPayload](t, ev)
		assert.Equal(t, i+1, p.PickNumber)
		assert.Equal(t, wantTeams[i], p.TeamID, "pick %d", i+1)
		assert.True(t, p.WasAutoSelected)
		assert.Contains(t, h.league.AllowedPlayers, p.PlayerID)
	}

	started := eventsNamed(evs, events.PickTurnStarted)
	require.Len(t, started, 8)
	for i, ev := range started {
		p := decode[events.PickTurnStartedPayload](t, ev)
		assert.Equal(t, i+1, p.PickNumber)
		assert.True(t, p.StartsAt.Equal(t0.Add(time.Duration(i)*30*time.Second)), "pick %d starts at %s", i+1, p.StartsAt)
		assert.Equal(t, 30*time.Second, p.EndsAt.Sub(p.StartsAt))
	}
	assert.Len(t, eventsNamed(evs, events.PickTurnEnded), 8)

	for i := 1; i < len(evs); i++ {
		assert.True(t, evs[i-1].Before(&evs[i]), "events out of order at %d", i)
	}
	assert.Len(t, h.store.Assignments(h.league.ID), 8)
}

func TestSubmitPick_AdvancesTurn(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 2, AllowedPlayers: 6})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))
	h.clock.Advance(5 * time.Second)

	team := h.league.Teams[0]
	player := h.league.AllowedPlayers[2]
	require.NoError(t, h.ctrl.SubmitPick(ctx, h.league.ID, team.ID, player))

	assert.Equal(t, []events.Name{
		events.DraftStart,
		events.PickTurnStarted,
		events.PlayerDrafted,
		events.PickTurnEnded,
		events.PickTurnStarted,
	}, h.names())

	evs := h.store.Events(h.league.ID)
	drafted := decode[events.PlayerDraftedPayload](t, evs[2])
	assert.Equal(t, player, drafted.PlayerID)
	assert.Equal(t, 1, drafted.PickNumber)
	assert.False(t, drafted.WasAutoSelected)
	require.NotNil(t, drafted.TeamOwnerID)
	assert.Equal(t, team.OwnerID, *drafted.TeamOwnerID)
	assert.Equal(t, team.OwnerUsername, drafted.TeamOwnerUsername)

	d := h.draft()
	assert.Equal(t, 2, d.CurrentPickNumber)
	assert.Equal(t, h.league.Teams[1].ID, *d.CurrentPickingTeamID)
	assert.True(t, t0.Add(5*time.Second).Equal(*d.CurrentPickStartsAt))

	assigned := h.store.Assignments(h.league.ID)
	require.Len(t, assigned, 1)
	assert.Equal(t, 1, assigned[0].PickNumber)
	assert.False(t, assigned[0].WasAutoSelected)
}

func TestSubmitPick_LastPickEndsDraft(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 1, AllowedPlayers: 4})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	require.NoError(t, h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[0].ID, h.league.AllowedPlayers[0]))
	require.NoError(t, h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[1].ID, h.league.AllowedPlayers[1]))

	assert.Equal(t, models.DraftStatePostDraft, h.draft().State)
	names := h.names()
	assert.Equal(t, events.DraftEnd, names[len(names)-1])
}

func TestSubmitPick_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		submit func(h *harness) error
		reason string
	}{
		{
			name: "not your turn",
			submit: func(h *harness) error {
				return h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[1].ID, h.league.AllowedPlayers[0])
			},
			reason: pick.ReasonNotYourTurn,
		},
		{
			name: "already drafted",
			submit: func(h *harness) error {
				h.store.Assign(h.league.ID, h.league.Teams[1].ID, h.league.AllowedPlayers[0])
				return h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[0].ID, h.league.AllowedPlayers[0])
			},
			reason: pick.ReasonAlreadyDrafted,
		},
		{
			name: "unknown player",
			submit: func(h *harness) error {
				return h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[0].ID, uuid.New())
			},
			reason: pick.ReasonUnknownPlayer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 4})
			require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))
			before := h.names()

			err := tt.submit(h)
			reason, ok := drafterr.IsRejected(err)
			require.True(t, ok, "expected rejection, got %v", err)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, before, h.names())
			assert.Equal(t, 1, h.draft().CurrentPickNumber)
		})
	}
}

func TestSubmitPick_NotDrafting(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 2})
	err := h.ctrl.SubmitPick(context.Background(), h.league.ID, h.league.Teams[0].ID, h.league.AllowedPlayers[0])
	reason, ok := drafterr.IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, pick.ReasonNotYourTurn, reason)
}

func TestSubmitPick_ConcurrentDoublePick(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 3, AllowedPlayers: 10})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	team := h.league.Teams[0].ID
	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.ctrl.SubmitPick(ctx, h.league.ID, team, h.league.AllowedPlayers[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		reason, ok := drafterr.IsRejected(err)
		require.True(t, ok, "unexpected error %v", err)
		assert.Equal(t, pick.ReasonNotYourTurn, reason)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, h.store.Assignments(h.league.ID), 1)
	assert.Len(t, eventsNamed(h.store.Events(h.league.ID), events.PlayerDrafted), 1)
	assert.Equal(t, 2, h.draft().CurrentPickNumber)
}

func TestSubmitPick_SamePlayerRace(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 3, AllowedPlayers: 4})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	player := h.league.AllowedPlayers[0]
	require.NoError(t, h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[0].ID, player))

	err := h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[1].ID, player)
	reason, ok := drafterr.IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, pick.ReasonAlreadyDrafted, reason)
}

func TestEndDraftTurnAt_StalePickNumber(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 2, AllowedPlayers: 4})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))
	require.NoError(t, h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[0].ID, h.league.AllowedPlayers[0]))
	before := h.names()

	err := h.ctrl.EndDraftTurnAt(ctx, h.league.ID, 1)
	assert.True(t, drafterr.IsInvalidState(err), "got %v", err)
	assert.Equal(t, before, h.names())
}

func TestEndDraftTurn_PrefersWatchlist(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 2, AllowedPlayers: 6})
	ctx := context.Background()
	team := h.league.Teams[0].ID
	h.store.SetWatchlist(team, h.league.AllowedPlayers[4], h.league.AllowedPlayers[1])
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	require.NoError(t, h.ctrl.EndDraftTurn(ctx, h.league.ID))

	drafted := eventsNamed(h.store.Events(h.league.ID), events.PlayerDrafted)
	require.Len(t, drafted, 1)
	p := decode[events.PlayerDraftedPayload](t, drafted[0])
	assert.Equal(t, h.league.AllowedPlayers[4], p.PlayerID)
	assert.Equal(t, team, p.TeamID)
	assert.True(t, p.WasAutoSelected)
	assert.Equal(t, h.league.Team(team).OwnerUsername, p.TeamOwnerUsername)
}

func TestEndDraftTurn_AlreadyPickedSkipsAutoSelect(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 2, AllowedPlayers: 6})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	player := h.league.AllowedPlayers[0]
	require.NoError(t, h.ctrl.RecordPick(ctx, h.league.ID, h.league.Teams[0].ID, &player, false))
	require.NoError(t, h.ctrl.EndDraftTurn(ctx, h.league.ID))

	assert.Len(t, h.store.Assignments(h.league.ID), 1)
	assert.Equal(t, []events.Name{
		events.DraftStart,
		events.PickTurnStarted,
		events.PlayerDrafted,
		events.PickTurnEnded,
		events.PickTurnStarted,
	}, h.names())
}

func TestEndDraftTurn_NoPlayersLeftEndsDraft(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, PlayersPerTeam: 2, AllowedPlayers: 1})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	require.NoError(t, h.ctrl.EndDraftTurnAt(ctx, h.league.ID, 1))
	assert.Equal(t, models.DraftStateDrafting, h.draft().State)

	require.NoError(t, h.ctrl.EndDraftTurnAt(ctx, h.league.ID, 2))
	assert.Equal(t, models.DraftStatePostDraft, h.draft().State)

	names := h.names()
	assert.Equal(t, []events.Name{events.NoPlayerDrafted, events.DraftEnd}, names[len(names)-2:])
	p := decode[events.NoPlayerDraftedPayload](t, eventsNamed(h.store.Events(h.league.ID), events.NoPlayerDrafted)[0])
	assert.Equal(t, 2, p.PickNumber)
	assert.Equal(t, h.league.Teams[1].ID, p.TeamID)
}

func TestRecordPick_NilPlayerDoesNotAdvance(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 2})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))

	require.NoError(t, h.ctrl.RecordPick(ctx, h.league.ID, h.league.Teams[0].ID, nil, true))

	assert.Equal(t, 1, h.draft().CurrentPickNumber)
	names := h.names()
	assert.Equal(t, events.NoPlayerDrafted, names[len(names)-1])
}

func TestEndDraft(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2})
	ctx := context.Background()

	assert.True(t, drafterr.IsInvalidState(h.ctrl.EndDraft(ctx, h.league.ID)))

	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))
	require.NoError(t, h.ctrl.EndDraft(ctx, h.league.ID))
	assert.Equal(t, models.DraftStatePostDraft, h.draft().State)
	assert.Equal(t, []uuid.UUID{h.league.ID}, h.store.ScheduleRequests())

	assert.True(t, drafterr.IsInvalidState(h.ctrl.EndDraft(ctx, h.league.ID)))
	assert.True(t, drafterr.IsInvalidState(h.ctrl.EndDraftTurn(ctx, h.league.ID)))
	assert.True(t, drafterr.IsInvalidState(h.ctrl.StartNextDraftTurn(ctx, h.league.ID)))
}

func TestTransition_RollsBackOnFailure(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 4})
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))
	before := h.draft()
	beforeNames := h.names()

	boom := errors.New("connection reset")
	h.store.FailNextCommit(boom)
	h.clock.Advance(30 * time.Second)
	err := h.ctrl.EndDraftTurnAt(ctx, h.league.ID, 1)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, before, h.draft())
	assert.Equal(t, beforeNames, h.names())
	assert.Empty(t, h.store.Assignments(h.league.ID))

	require.NoError(t, h.ctrl.EndDraftTurnAt(ctx, h.league.ID, 1))
	assert.Equal(t, 2, h.draft().CurrentPickNumber)
}

func TestRecordJoin(t *testing.T) {
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2})
	user := h.league.Teams[0].OwnerID

	require.NoError(t, h.ctrl.RecordJoin(context.Background(), h.league.ID, user, "sam"))

	evs := h.store.Events(h.league.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, string(events.UserJoined), evs[0].Name)
	assert.True(t, evs[0].ServerOriginated())
	p := decode[events.UserJoinedPayload](t, evs[0])
	assert.Equal(t, user, p.UserID)
	assert.Equal(t, "sam", p.Username)
}

func TestMetrics_RecordTransitionResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(reg)
	h := newHarness(t, drafttest.LeagueOptions{Teams: 2, AllowedPlayers: 2}, WithMetrics(metrics))
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartDraft(ctx, h.league.ID))
	_ = h.ctrl.StartDraft(ctx, h.league.ID)
	_ = h.ctrl.SubmitPick(ctx, h.league.ID, h.league.Teams[1].ID, h.league.AllowedPlayers[0])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("start_draft", resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("start_draft", resultInvalidState)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("submit_pick", resultRejected)))
}
