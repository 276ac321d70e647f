// Package outbox relays committed draft events from Postgres to the JetStream
// backplane. Commits NOTIFY the relay; a fallback poll catches anything missed.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
)

// NotifyChannel is the channel event inserts pg_notify on.
const NotifyChannel = store.NotifyChannel

type ListenerConfig struct {
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int // Max events to fetch per batch
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		FallbackInterval: 5 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Notifier delivers NOTIFY payloads. *pq.Listener satisfies it.
type Notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// NewPQNotifier opens a dedicated LISTEN connection on NotifyChannel.
func NewPQNotifier(dsn string) (*pq.Listener, error) {
	l := pq.NewListener(
		dsn,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", NotifyChannel).
		Msg("listening for notifications")
	return l, nil
}

// Listener publishes unpublished events in log order. A failed publish stops
// the batch so later events never overtake an earlier one.
type Listener struct {
	outbox    store.Outbox
	notifier  Notifier
	publisher Publisher
	clock     clockwork.Clock
	cfg       ListenerConfig
	metrics   MetricsCollector

	mu            sync.Mutex
	running       bool
	processed     uint64
	lastPublished time.Time
}

func NewListener(outbox store.Outbox, notifier Notifier, publisher Publisher, clock clockwork.Clock, cfg ListenerConfig, metrics MetricsCollector) *Listener {
	def := DefaultListenerConfig()
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = def.FallbackInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &Listener{
		outbox:    outbox,
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		metrics:   metrics,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	l.setRunning(true)
	defer l.setRunning(false)

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	// Catch up on anything committed while the relay was down.
	l.processUnsent(ctx)

	notes := l.notifier.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.notifier.Close()
		case note := <-notes:
			if note == nil {
				// nil notification means the connection was re-established; notifications may have been lost
				log.Warn().Msg("listener reconnected; draining outbox")
			} else {
				log.Debug().Str("event_id", note.Extra).Msg("notification received")
			}
			l.processUnsent(ctx)
		case <-fallbackTicker.Chan():
			l.processUnsent(ctx)
		case <-pingTicker.Chan():
			if err := l.notifier.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// processUnsent drains the outbox and logs instead of returning; the next
// notification or fallback tick retries.
func (l *Listener) processUnsent(ctx context.Context) {
	start := l.clock.Now()
	n, err := l.drain(ctx)
	l.metrics.RecordBatchProcessed(n, l.clock.Since(start))
	if err != nil {
		log.Error().Err(err).Int("published", n).Msg("failed to process unsent events")
	}

	if pending, err := l.outbox.CountUnpublishedEvents(ctx); err != nil {
		log.Error().Err(err).Msg("failed to count unsent events")
	} else {
		l.metrics.RecordOutboxLag(pending)
	}
}

func (l *Listener) drain(ctx context.Context) (int, error) {
	published := 0
	for {
		unsent, err := l.outbox.ListUnpublishedEvents(ctx, l.cfg.BatchSize)
		if err != nil {
			return published, fmt.Errorf("failed to fetch unsent events: %w", err)
		}

		for _, ev := range unsent {
			if err := l.publishWithRetry(ctx, ev); err != nil {
				return published, fmt.Errorf("event %s seq %d: %w", ev.ID, ev.Seq, err)
			}
			if err := l.outbox.MarkEventPublished(ctx, ev.ID, l.clock.Now()); err != nil {
				// Publishing again later is harmless; JetStream dedupes on the event id.
				return published, fmt.Errorf("failed to mark event %s as sent: %w", ev.ID, err)
			}
			published++
			l.recordPublished()
		}

		if len(unsent) < l.cfg.BatchSize {
			return published, nil
		}
	}
}

// publishWithRetry attempts to publish an event with a linear backoff and max retries.
func (l *Listener) publishWithRetry(ctx context.Context, ev models.DraftEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 && l.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(l.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := l.publisher.Publish(ctx, ev); err != nil {
			lastErr = err
			l.metrics.RecordPublishAttempt(ev.Name, attempt+1, false)
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", ev.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		l.metrics.RecordPublishAttempt(ev.Name, attempt+1, true)
		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", ev.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	// All attempts exhausted
	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}

func (l *Listener) setRunning(running bool) {
	l.mu.Lock()
	l.running = running
	l.mu.Unlock()
}

func (l *Listener) recordPublished() {
	l.mu.Lock()
	l.processed++
	l.lastPublished = l.clock.Now()
	l.mu.Unlock()
}

// Stats returns the number of events published and when the last one was.
func (l *Listener) Stats() (uint64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed, l.lastPublished
}

// Running reports whether Start is looping.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
