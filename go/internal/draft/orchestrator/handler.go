package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// HandleEvent reacts to committed events from the backplane. Turn starts arm a
// precise deadline timer; terminal events disarm it.
func (o *Orchestrator) HandleEvent(ctx context.Context, env events.Envelope) {
	switch env.Name {
	case events.PickTurnStarted:
		var p events.PickTurnStartedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Error().
				Err(fmt.Errorf("unmarshal %s: %w", env.Name, err)).
				Str("event_id", env.ID.String()).
				Msg("dropping malformed event")
			return
		}
		o.ScheduleTurnDeadline(ctx, env.LeagueID, p.PickNumber, p.EndsAt)

	case events.DraftEnd, events.DraftCancelled:
		o.cancelTimer(env.LeagueID)
		log.Debug().
			Str("league_id", env.LeagueID.String()).
			Str("event", string(env.Name)).
			Msg("cancelled turn deadline")
	}
}
