//go:build integration

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/autopick"
	"github.com/mcdev12/draftlobby/go/internal/draft/backplane"
	"github.com/mcdev12/draftlobby/go/internal/draft/drafttest"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/lifecycle"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayPublishesCommittedEventsInOrder(t *testing.T) {
	db, dsn := drafttest.StartPostgres(t)
	natsURL := drafttest.StartNATS(t)
	st := store.NewPostgresStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, js, err := backplane.Connect(natsURL, "relay-test")
	require.NoError(t, err)
	defer nc.Close()
	_, err = backplane.EnsureStream(ctx, js, 0)
	require.NoError(t, err)

	received := make(chan events.Envelope, 64)
	cc, err := backplane.Follow(ctx, js, func(_ context.Context, env events.Envelope) {
		received <- env
	})
	require.NoError(t, err)
	defer cc.Stop()

	notifier, err := NewPQNotifier(dsn)
	require.NoError(t, err)
	listener := NewListener(st, notifier, NewJetStreamPublisher(js), clockwork.NewRealClock(), ListenerConfig{
		FallbackInterval: 500 * time.Millisecond,
		MaxRetries:       3,
		RetryDelay:       50 * time.Millisecond,
	}, nil)
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	clock := clockwork.NewRealClock()
	app := leagues.NewApp(clock)
	ctrl := lifecycle.NewController(st, clock, app, app, autopick.NewResolver())
	league := drafttest.SeedPostgresLeague(t, db, drafttest.LeagueOptions{Teams: 3, AllowedPlayers: 9})
	require.NoError(t, ctrl.StartDraft(ctx, league.ID))
	require.NoError(t, ctrl.RecordJoin(ctx, league.ID, league.Teams[0].OwnerID, "alice"))

	committed, err := st.ListEvents(ctx, store.EventQuery{LeagueID: league.ID})
	require.NoError(t, err)
	require.Len(t, committed, 3)

	for i, want := range committed {
		select {
		case env := <-received:
			assert.Equal(t, want.ID, env.ID, "event %d", i)
			assert.Equal(t, want.Seq, env.Seq, "event %d", i)
			assert.Equal(t, events.Name(want.Name), env.Name, "event %d", i)
			assert.Equal(t, league.ID, env.LeagueID)
		case <-time.After(10 * time.Second):
			t.Fatalf("event %d (%s) was not relayed", i, want.Name)
		}
	}

	require.Eventually(t, func() bool {
		n, err := st.CountUnpublishedEvents(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
