package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/draftlobby/go/internal/draft/backplane"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher puts one committed event on the backplane.
type Publisher interface {
	Publish(ctx context.Context, ev models.DraftEvent) error
}

// JetStreamPublisher publishes to the draft event stream, one subject per league.
type JetStreamPublisher struct {
	js jetstream.JetStream
}

func NewJetStreamPublisher(js jetstream.JetStream) *JetStreamPublisher {
	return &JetStreamPublisher{js: js}
}

func (p *JetStreamPublisher) Publish(ctx context.Context, ev models.DraftEvent) error {
	subject := events.Subject(ev.LeagueID)

	data, err := json.Marshal(events.NewEnvelope(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Name": []string{ev.Name},
			"League-ID":  []string{ev.LeagueID.String()},
			"Event-ID":   []string{ev.ID.String()},
		},
	},
		jetstream.WithMsgID(ev.ID.String()),
		jetstream.WithExpectStream(backplane.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", ev.ID.String()).
		Int64("seq", ev.Seq).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")

	return nil
}
