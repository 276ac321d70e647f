// Package eventlog is the append-only, per-league ordered record of draft
// occurrences and the catch-up queries served from it.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

// Appender is the transactional write the log needs.
type Appender interface {
	InsertEvent(ctx context.Context, ev *models.DraftEvent) error
}

// Reader is what catch-up queries need.
type Reader interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (*models.DraftEvent, error)
	ListEvents(ctx context.Context, q store.EventQuery) ([]models.DraftEvent, error)
}

// Cursor describes what a reconnecting client asked to replay.
type Cursor struct {
	requested bool
	after     *uuid.UUID
}

// NoCatchup replays nothing.
func NoCatchup() Cursor { return Cursor{} }

// FullHistory replays every server-originated event.
func FullHistory() Cursor { return Cursor{requested: true} }

// After replays events strictly after id.
func After(id uuid.UUID) Cursor { return Cursor{requested: true, after: &id} }

// Requested reports whether any replay was asked for.
func (c Cursor) Requested() bool { return c.requested }

// AfterID returns the event the replay starts after, or nil for full history.
func (c Cursor) AfterID() *uuid.UUID { return c.after }

type Log struct {
	clock clockwork.Clock
}

func New(clock clockwork.Clock) *Log {
	return &Log{clock: clock}
}

// Append records an event. It must run inside the transaction that made the
// change it describes; the store moves the league's last event pointer in the
// same transaction.
func (l *Log) Append(
	ctx context.Context,
	tx Appender,
	leagueID uuid.UUID,
	name events.Name,
	senderID *uuid.UUID,
	payload any,
) (*models.DraftEvent, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("%w: unknown event name %q", drafterr.ErrInvalidInput, name)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	ev := &models.DraftEvent{
		ID:       id,
		LeagueID: leagueID,
		Name:     string(name),
		SenderID: senderID,
		At:       l.clock.Now().UTC().Truncate(time.Millisecond),
		Data:     data,
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("append %s: %w", name, err)
	}
	return ev, nil
}

// FindSince returns the league's events selected by cursor in log order.
// A cursor naming an event that is not part of the league's server-originated
// history fails with drafterr.ErrInvalidCatchupToken.
func (l *Log) FindSince(
	ctx context.Context,
	r Reader,
	leagueID uuid.UUID,
	cursor Cursor,
	excludeSenderOriginated bool,
) ([]models.DraftEvent, error) {
	if !cursor.Requested() {
		return nil, nil
	}

	q := store.EventQuery{LeagueID: leagueID, ServerOnly: excludeSenderOriginated}
	if id := cursor.AfterID(); id != nil {
		from, err := r.GetEvent(ctx, *id)
		if errors.Is(err, drafterr.ErrNotFound) {
			return nil, fmt.Errorf("event %s: %w", id, drafterr.ErrInvalidCatchupToken)
		}
		if err != nil {
			return nil, err
		}
		if from.LeagueID != leagueID || (excludeSenderOriginated && !from.ServerOriginated()) {
			return nil, fmt.Errorf("event %s: %w", id, drafterr.ErrInvalidCatchupToken)
		}
		q.After = from
	}

	evs, err := r.ListEvents(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find events since: %w", err)
	}
	return evs, nil
}
