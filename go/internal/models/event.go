package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DraftEvent is one immutable entry of a league's draft log.
type DraftEvent struct {
	ID       uuid.UUID       `json:"id"`
	Seq      int64           `json:"seq"`
	LeagueID uuid.UUID       `json:"league_id"`
	Name     string          `json:"event_name"`
	SenderID *uuid.UUID      `json:"sender_id,omitempty"`
	At       time.Time       `json:"at"`
	Data     json.RawMessage `json:"data"`
}

// ServerOriginated reports whether the event was produced by the server rather than a client.
func (e *DraftEvent) ServerOriginated() bool {
	return e.SenderID == nil
}

// Before orders events by timestamp, then by insertion sequence.
func (e *DraftEvent) Before(other *DraftEvent) bool {
	if !e.At.Equal(other.At) {
		return e.At.Before(other.At)
	}
	return e.Seq < other.Seq
}
