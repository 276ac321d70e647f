package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftState defines where a league is in its draft lifecycle.
type DraftState string

const (
	DraftStatePreDraft  DraftState = "PRE_DRAFT"
	DraftStateDrafting  DraftState = "DRAFTING"
	DraftStatePostDraft DraftState = "POST_DRAFT"
	DraftStateCancelled DraftState = "CANCELLED"
)

var allowedDraftTransitions = map[DraftState][]DraftState{
	DraftStatePreDraft: {DraftStateDrafting, DraftStateCancelled},
	DraftStateDrafting: {DraftStatePostDraft},
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
func (s DraftState) CanTransitionTo(next DraftState) bool {
	for _, allowed := range allowedDraftTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LeagueDraft is the mutable per-league draft projection.
type LeagueDraft struct {
	LeagueID             uuid.UUID   `json:"league_id"`
	State                DraftState  `json:"state"`
	PickOrder            []uuid.UUID `json:"pick_order"`
	CurrentPickNumber    int         `json:"current_pick_number"`
	CurrentPickingTeamID *uuid.UUID  `json:"current_picking_team_id,omitempty"`
	TimePerPickSec       int         `json:"time_per_pick_sec"`
	CurrentPickStartsAt  *time.Time  `json:"current_pick_starts_at,omitempty"`
	CurrentPickEndsAt    *time.Time  `json:"current_pick_ends_at,omitempty"`
	DraftStartsAt        *time.Time  `json:"draft_starts_at,omitempty"`
	LastEventID          *uuid.UUID  `json:"last_event_id,omitempty"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// TimePerPick returns the turn window as a duration.
func (d *LeagueDraft) TimePerPick() time.Duration {
	return time.Duration(d.TimePerPickSec) * time.Second
}

// IsPicking reports whether teamID holds the current turn.
func (d *LeagueDraft) IsPicking(teamID uuid.UUID) bool {
	return d.State == DraftStateDrafting &&
		d.CurrentPickingTeamID != nil &&
		*d.CurrentPickingTeamID == teamID
}

// Clone returns a deep copy.
func (d *LeagueDraft) Clone() *LeagueDraft {
	c := *d
	c.PickOrder = append([]uuid.UUID(nil), d.PickOrder...)
	c.CurrentPickingTeamID = cloneUUID(d.CurrentPickingTeamID)
	c.LastEventID = cloneUUID(d.LastEventID)
	c.CurrentPickStartsAt = cloneTime(d.CurrentPickStartsAt)
	c.CurrentPickEndsAt = cloneTime(d.CurrentPickEndsAt)
	c.DraftStartsAt = cloneTime(d.DraftStartsAt)
	return &c
}

// DueTurn identifies a turn whose deadline has passed.
type DueTurn struct {
	LeagueID   uuid.UUID
	PickNumber int
	EndsAt     time.Time
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
