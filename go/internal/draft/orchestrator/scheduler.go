package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type deadlineTimer struct {
	timer      clockwork.Timer
	pickNumber int
	cancel     chan struct{}
}

// ScheduleTurnDeadline arms a one-shot timer that ends the turn exactly at
// endsAt instead of on the next scan. Any timer already armed for the league is
// replaced. The scan remains the source of truth.
func (o *Orchestrator) ScheduleTurnDeadline(ctx context.Context, leagueID uuid.UUID, pickNumber int, endsAt time.Time) {
	j := job{kind: jobEndTurn, leagueID: leagueID, pickNumber: pickNumber}

	wait := endsAt.Sub(o.clock.Now())
	if wait <= 0 {
		o.cancelTimer(leagueID)
		go o.enqueue(ctx, j)
		return
	}

	dt := &deadlineTimer{
		timer:      o.clock.NewTimer(wait),
		pickNumber: pickNumber,
		cancel:     make(chan struct{}),
	}
	o.replaceTimer(leagueID, dt)

	go func() {
		select {
		case <-dt.timer.Chan():
			o.removeTimer(leagueID, dt)
			o.enqueue(ctx, j)
		case <-dt.cancel:
		case <-ctx.Done():
			stopAndDrainTimer(dt.timer)
			o.removeTimer(leagueID, dt)
		}
	}()

	log.Debug().
		Str("league_id", leagueID.String()).
		Int("pick_number", pickNumber).
		Time("deadline", endsAt).
		Dur("duration", wait).
		Msg("scheduled turn deadline")
}

// replaceTimer atomically replaces the timer for a league, cancelling any existing one.
func (o *Orchestrator) replaceTimer(leagueID uuid.UUID, dt *deadlineTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, ok := o.activeTimers[leagueID]; ok {
		existing.stop()
	}
	o.activeTimers[leagueID] = dt
}

// removeTimer forgets dt if it is still the league's current timer.
func (o *Orchestrator) removeTimer(leagueID uuid.UUID, dt *deadlineTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	if o.activeTimers[leagueID] == dt {
		delete(o.activeTimers, leagueID)
	}
}

// cancelTimer cancels and removes the league's timer, if any.
func (o *Orchestrator) cancelTimer(leagueID uuid.UUID) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	if dt, ok := o.activeTimers[leagueID]; ok {
		dt.stop()
		delete(o.activeTimers, leagueID)
	}
}

func (o *Orchestrator) cancelAllTimers() {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	for id, dt := range o.activeTimers {
		dt.stop()
		delete(o.activeTimers, id)
	}
}

func (o *Orchestrator) armedTimers() int {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	return len(o.activeTimers)
}

func (dt *deadlineTimer) stop() {
	stopAndDrainTimer(dt.timer)
	close(dt.cancel)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
