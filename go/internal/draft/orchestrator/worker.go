package orchestrator

import (
	"context"
	"sync"

	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/rs/zerolog/log"
)

// worker processes due leagues from the work channel
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case j := <-o.workCh:
			o.process(ctx, j, workerID)
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, j job, workerID int) {
	// Clean up in-flight tracking regardless of success/failure
	defer o.done(j.leagueID)

	err := o.handle(ctx, j)
	logger := log.With().
		Str("league_id", j.leagueID.String()).
		Str("job", string(j.kind)).
		Int("pick_number", j.pickNumber).
		Str("instance", o.instanceID).
		Int("worker_id", workerID).
		Logger()

	switch {
	case err == nil:
		o.metrics.RecordJob(string(j.kind), "ok")
		logger.Debug().Msg("job done")
	case drafterr.IsInvalidState(err):
		// Another process or a user pick got there first.
		o.metrics.RecordJob(string(j.kind), "invalid_state")
		logger.Debug().Err(err).Msg("job skipped")
	default:
		o.metrics.RecordJob(string(j.kind), "error")
		logger.Error().Err(err).Msg("job failed; retrying on next scan")
	}
}

func (o *Orchestrator) handle(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TransitionTimeout)
	defer cancel()

	switch j.kind {
	case jobEndTurn:
		return o.lifecycle.EndDraftTurnAt(ctx, j.leagueID, j.pickNumber)
	case jobStartDraft:
		return o.lifecycle.StartDraft(ctx, j.leagueID)
	}
	return nil
}
