package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/draft/eventlog"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

// MessageType tags an inbound frame.
type MessageType string

const (
	MessageJoinDraftLobby MessageType = "joinDraftLobby"
	MessagePickPlayer     MessageType = "pickPlayer"
)

// Outbound frame types.
const (
	frameAck   = "ack"
	frameEvent = "event"
)

// SchemaError is an inbound frame that does not match the expected shape.
type SchemaError struct {
	msg string
}

func (e *SchemaError) Error() string { return e.msg }

func schemaErrorf(format string, args ...any) error {
	return &SchemaError{msg: fmt.Sprintf(format, args...)}
}

// Frame is the envelope every client message arrives in.
type Frame struct {
	ID   string          `json:"id"`
	At   *string         `json:"at,omitempty"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// parseFrame decodes and validates the envelope. The frame is returned even on
// a schema error when its id could be read, so the failure can be acked.
func parseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, schemaErrorf("Event is not valid JSON")
	}
	if f.ID == "" {
		return &f, schemaErrorf("Event is missing an identifier `event.id`")
	}
	if f.At != nil {
		if _, err := time.Parse(time.RFC3339Nano, *f.At); err != nil {
			return &f, schemaErrorf("Event timestamp `event.at` is in the incorrect format")
		}
	}
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return &f, schemaErrorf("Event is missing payload `event.data`")
	}
	return &f, nil
}

// JoinRequest is the data of a joinDraftLobby frame.
type JoinRequest struct {
	LeagueID uuid.UUID
	Cursor   eventlog.Cursor
}

// UnmarshalJSON keeps the difference between an omitted lastEventId (no
// replay) and a present but falsey one (full history).
func (j *JoinRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		LeagueID *uuid.UUID `json:"leagueId"`
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return schemaErrorf("Event payload `event.data` must be an object")
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return schemaErrorf("Event is missing `data.leagueId`")
	}
	if raw.LeagueID == nil || *raw.LeagueID == uuid.Nil {
		return schemaErrorf("Event is missing `data.leagueId`")
	}
	j.LeagueID = *raw.LeagueID

	last, present := keys["lastEventId"]
	switch {
	case !present:
		j.Cursor = eventlog.NoCatchup()
	case isFalsey(last):
		j.Cursor = eventlog.FullHistory()
	default:
		var s string
		if err := json.Unmarshal(last, &s); err != nil {
			return invalidCursor{raw: string(last)}
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return invalidCursor{raw: s}
		}
		j.Cursor = eventlog.After(id)
	}
	return nil
}

// invalidCursor is a lastEventId that cannot name any event.
type invalidCursor struct{ raw string }

func (e invalidCursor) Error() string {
	return fmt.Sprintf("%s is not a valid server-side event ID", e.raw)
}

func isFalsey(v json.RawMessage) bool {
	switch string(bytes.TrimSpace(v)) {
	case "null", `""`, "false", "0":
		return true
	}
	return false
}

// PickRequest is the data of a pickPlayer frame.
type PickRequest struct {
	LeagueID uuid.UUID `json:"leagueId"`
	PlayerID uuid.UUID `json:"playerId"`
}

func (p *PickRequest) validate() error {
	if p.PlayerID == uuid.Nil {
		return schemaErrorf("Event is missing `data.playerId`")
	}
	if p.LeagueID == uuid.Nil {
		return schemaErrorf("Event is missing `data.leagueId`")
	}
	return nil
}

func decodeData(f *Frame, v any) error {
	if err := json.Unmarshal(f.Data, v); err != nil {
		var se *SchemaError
		var ic invalidCursor
		if errors.As(err, &se) || errors.As(err, &ic) {
			return err
		}
		return schemaErrorf("Event payload `event.data` is malformed")
	}
	return nil
}

// Ack answers one inbound frame.
type Ack struct {
	Type            string  `json:"type"`
	OriginalEventID string  `json:"originalEventId"`
	Success         bool    `json:"success"`
	Message         *string `json:"message,omitempty"`
}

func newAck(originalID string, success bool, message string) Ack {
	a := Ack{Type: frameAck, OriginalEventID: originalID, Success: success}
	if message != "" {
		a.Message = &message
	}
	return a
}

// EventFrame carries one draft event to a client, live or replayed.
type EventFrame struct {
	Type  string          `json:"type"`
	Event events.Name     `json:"event"`
	ID    uuid.UUID       `json:"id"`
	At    string          `json:"at"`
	Data  json.RawMessage `json:"data"`
}

func newEventFrame(ev models.DraftEvent) EventFrame {
	return EventFrame{
		Type:  frameEvent,
		Event: events.Name(ev.Name),
		ID:    ev.ID,
		At:    events.FormatTimestamp(ev.At),
		Data:  ev.Data,
	}
}
