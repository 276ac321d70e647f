// Package backplane connects draft processes to the NATS JetStream stream that
// carries committed draft events between them.
package backplane

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// StreamName is the JetStream stream holding draft events.
const StreamName = "DRAFT_EVENTS"

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second

	// DefaultMaxAge bounds how long events stay in the stream.
	DefaultMaxAge = 24 * time.Hour
	// duplicateWindow is how long JetStream remembers message ids for dedupe.
	duplicateWindow = 10 * time.Minute
)

// Connect creates a NATS connection with JetStream.
func Connect(url, name string) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates the draft event stream or updates its configuration.
func EnsureStream(ctx context.Context, js jetstream.JetStream, maxAge time.Duration) (jetstream.Stream, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed draft events, one subject per league",
		Subjects:    []string{events.SubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      maxAge,
		Duplicates:  duplicateWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	return stream, nil
}

// Handler receives events in stream order.
type Handler func(ctx context.Context, env events.Envelope)

// Follow starts an ordered consumer that delivers every event published from
// now on. Each call gets its own consumer, so every process sees every event.
func Follow(ctx context.Context, js jetstream.JetStream, h Handler) (jetstream.ConsumeContext, error) {
	consumer, err := js.OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{events.SubjectPrefix + ".>"},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		env, err := events.DecodeEnvelope(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable draft event")
			return
		}
		h(ctx, env)
	}, jetstream.ConsumeErrHandler(func(cc jetstream.ConsumeContext, err error) {
		if errors.Is(err, jetstream.ErrConsumerDeleted) || errors.Is(err, context.Canceled) {
			return
		}
		log.Warn().Err(err).Msg("draft event consumer error")
	}))
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	return cc, nil
}
