package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/drafttest"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *drafttest.MemStore
	clock  *clockwork.FakeClock
	log    *Log
	league *drafttest.League
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := drafttest.NewMemStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC))
	return &fixture{
		store:  m,
		clock:  clock,
		log:    New(clock),
		league: m.SeedLeague(drafttest.LeagueOptions{Teams: 2}),
	}
}

func (f *fixture) append(t *testing.T, name events.Name, sender *uuid.UUID) models.DraftEvent {
	t.Helper()
	var out *models.DraftEvent
	err := f.store.InTx(context.Background(), func(tx store.Tx) error {
		ev, err := f.log.Append(context.Background(), tx, f.league.ID, name, sender,
			events.DraftStartPayload{LeagueID: f.league.ID})
		out = ev
		return err
	})
	require.NoError(t, err)
	return *out
}

func ids(evs []models.DraftEvent) []uuid.UUID {
	out := make([]uuid.UUID, len(evs))
	for i, ev := range evs {
		out[i] = ev.ID
	}
	return out
}

func TestAppend_MovesLastEventPointer(t *testing.T) {
	f := newFixture(t)

	first := f.append(t, events.DraftStart, nil)
	assert.Equal(t, first.ID, *f.store.Draft(f.league.ID).LastEventID)

	f.clock.Advance(time.Second)
	second := f.append(t, events.PickTurnStarted, nil)
	assert.Equal(t, second.ID, *f.store.Draft(f.league.ID).LastEventID)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestAppend_TimestampTruncatedToMillis(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(1234567 * time.Nanosecond)

	ev := f.append(t, events.DraftStart, nil)
	assert.Equal(t, 1000000, ev.At.Nanosecond())
	assert.Equal(t, time.UTC, ev.At.Location())
}

func TestAppend_RollbackLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.store.InTx(context.Background(), func(tx store.Tx) error {
		if _, err := f.log.Append(context.Background(), tx, f.league.ID, events.DraftStart, nil, struct{}{}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.store.Events(f.league.ID))
	assert.Nil(t, f.store.Draft(f.league.ID).LastEventID)
}

func TestAppend_UnknownName(t *testing.T) {
	f := newFixture(t)
	err := f.store.InTx(context.Background(), func(tx store.Tx) error {
		_, err := f.log.Append(context.Background(), tx, f.league.ID, events.Name("bogus"), nil, struct{}{})
		return err
	})
	assert.ErrorIs(t, err, drafterr.ErrInvalidInput)
}

func TestFindSince_Cursors(t *testing.T) {
	f := newFixture(t)
	sender := uuid.New()

	e1 := f.append(t, events.DraftStart, nil)
	f.clock.Advance(time.Second)
	e2 := f.append(t, events.PickTurnStarted, nil)
	f.clock.Advance(time.Second)
	clientEv := f.append(t, events.UserJoined, &sender)
	f.clock.Advance(time.Second)
	e3 := f.append(t, events.PlayerDrafted, nil)

	ctx := context.Background()

	t.Run("omitted cursor replays nothing", func(t *testing.T) {
		got, err := f.log.FindSince(ctx, f.store, f.league.ID, NoCatchup(), true)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("full history excludes sender-originated", func(t *testing.T) {
		got, err := f.log.FindSince(ctx, f.store, f.league.ID, FullHistory(), true)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{e1.ID, e2.ID, e3.ID}, ids(got))
	})

	t.Run("after an event is strictly after", func(t *testing.T) {
		got, err := f.log.FindSince(ctx, f.store, f.league.ID, After(e1.ID), true)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{e2.ID, e3.ID}, ids(got))
	})

	t.Run("after the last event is empty", func(t *testing.T) {
		got, err := f.log.FindSince(ctx, f.store, f.league.ID, After(e3.ID), true)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("including sender-originated", func(t *testing.T) {
		got, err := f.log.FindSince(ctx, f.store, f.league.ID, After(e2.ID), false)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{clientEv.ID, e3.ID}, ids(got))
	})

	t.Run("sender-originated cursor is rejected", func(t *testing.T) {
		_, err := f.log.FindSince(ctx, f.store, f.league.ID, After(clientEv.ID), true)
		assert.ErrorIs(t, err, drafterr.ErrInvalidCatchupToken)
	})

	t.Run("unknown cursor", func(t *testing.T) {
		_, err := f.log.FindSince(ctx, f.store, f.league.ID, After(uuid.New()), true)
		assert.ErrorIs(t, err, drafterr.ErrInvalidCatchupToken)
	})
}

func TestFindSince_CursorFromAnotherLeague(t *testing.T) {
	f := newFixture(t)
	other := f.store.SeedLeague(drafttest.LeagueOptions{Teams: 2})

	var foreign *models.DraftEvent
	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		ev, err := f.log.Append(context.Background(), tx, other.ID, events.DraftStart, nil, struct{}{})
		foreign = ev
		return err
	}))

	_, err := f.log.FindSince(context.Background(), f.store, f.league.ID, After(foreign.ID), true)
	assert.ErrorIs(t, err, drafterr.ErrInvalidCatchupToken)
}

func TestFindSince_SameTimestampOrderedByInsertion(t *testing.T) {
	f := newFixture(t)

	a := f.append(t, events.PickTurnEnded, nil)
	b := f.append(t, events.PlayerDrafted, nil)
	c := f.append(t, events.PickTurnStarted, nil)
	require.True(t, a.At.Equal(c.At))

	got, err := f.log.FindSince(context.Background(), f.store, f.league.ID, After(a.ID), true)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID, c.ID}, ids(got))
}
