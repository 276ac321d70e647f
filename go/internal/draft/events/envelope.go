package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

// SubjectPrefix is the backplane subject namespace for draft events.
const SubjectPrefix = "draft.events"

// Subject returns the backplane subject events for leagueID are published on.
func Subject(leagueID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, leagueID)
}

// TimestampLayout is the wire format for envelope timestamps: ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Envelope is the backplane representation of a committed draft event.
type Envelope struct {
	ID       uuid.UUID       `json:"id"`
	Seq      int64           `json:"seq"`
	LeagueID uuid.UUID       `json:"leagueId"`
	Name     Name            `json:"eventName"`
	SenderID *uuid.UUID      `json:"senderId,omitempty"`
	At       time.Time       `json:"at"`
	Data     json.RawMessage `json:"data"`
}

// NewEnvelope wraps a stored event for publication.
func NewEnvelope(ev models.DraftEvent) Envelope {
	return Envelope{
		ID:       ev.ID,
		Seq:      ev.Seq,
		LeagueID: ev.LeagueID,
		Name:     Name(ev.Name),
		SenderID: ev.SenderID,
		At:       ev.At,
		Data:     ev.Data,
	}
}

// DraftEvent converts the envelope back into the stored form.
func (e Envelope) DraftEvent() models.DraftEvent {
	return models.DraftEvent{
		ID:       e.ID,
		Seq:      e.Seq,
		LeagueID: e.LeagueID,
		Name:     string(e.Name),
		SenderID: e.SenderID,
		At:       e.At,
		Data:     e.Data,
	}
}

// DecodeEnvelope parses a backplane message body.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.ID == uuid.Nil || env.LeagueID == uuid.Nil {
		return Envelope{}, fmt.Errorf("event envelope missing id or leagueId")
	}
	return env, nil
}
