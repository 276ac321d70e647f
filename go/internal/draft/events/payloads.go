package events

import (
	"time"

	"github.com/google/uuid"
)

// Name identifies the channel event a payload is delivered under.
type Name string

const (
	DraftStart      Name = "draftStart"
	DraftCancelled  Name = "draftCancelled"
	PickTurnStarted Name = "pickTurnStarted"
	PlayerDrafted   Name = "playerDrafted"
	NoPlayerDrafted Name = "noPlayerDrafted"
	PickTurnEnded   Name = "pickTurnEnded"
	DraftEnd        Name = "draftEnd"
	UserJoined      Name = "userJoined"
)

// Valid reports whether n is a known event name.
func (n Name) Valid() bool {
	switch n {
	case DraftStart, DraftCancelled, PickTurnStarted, PlayerDrafted,
		NoPlayerDrafted, PickTurnEnded, DraftEnd, UserJoined:
		return true
	}
	return false
}

// ResolvesPick reports whether an event of this name settles a pick number.
func (n Name) ResolvesPick() bool {
	return n == PlayerDrafted || n == NoPlayerDrafted
}

// Event payload types shared between the lifecycle controller and the gateway.

type DraftStartPayload struct {
	LeagueID uuid.UUID `json:"leagueId"`
}

type DraftCancelledPayload struct {
	LeagueID uuid.UUID `json:"leagueId"`
	Reason   string    `json:"reason"`
}

type PickTurnStartedPayload struct {
	LeagueID   uuid.UUID `json:"leagueId"`
	TeamID     uuid.UUID `json:"teamId"`
	PickNumber int       `json:"pickNumber"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
}

type PlayerDraftedPayload struct {
	LeagueID          uuid.UUID  `json:"leagueId"`
	PickNumber        int        `json:"pickNumber"`
	TeamID            uuid.UUID  `json:"teamId"`
	PlayerID          uuid.UUID  `json:"playerId"`
	WasAutoSelected   bool       `json:"wasAutoSelected"`
	TeamOwnerID       *uuid.UUID `json:"teamOwnerId,omitempty"`
	TeamOwnerUsername string     `json:"teamOwnerUsername,omitempty"`
}

type NoPlayerDraftedPayload struct {
	LeagueID   uuid.UUID `json:"leagueId"`
	PickNumber int       `json:"pickNumber"`
	TeamID     uuid.UUID `json:"teamId"`
}

type PickTurnEndedPayload struct {
	LeagueID   uuid.UUID `json:"leagueId"`
	TeamID     uuid.UUID `json:"teamId"`
	PickNumber int       `json:"pickNumber"`
}

type DraftEndPayload struct {
	LeagueID uuid.UUID `json:"leagueId"`
}

type UserJoinedPayload struct {
	LeagueID uuid.UUID `json:"leagueId"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

// PickRef is the subset of pick payloads needed to find which pick an event settles.
type PickRef struct {
	PickNumber int `json:"pickNumber"`
}
