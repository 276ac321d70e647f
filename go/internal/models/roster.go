package models

import (
	"time"

	"github.com/google/uuid"
)

// RosterAssignment records that a player was drafted onto a team. A player is
// assigned at most once per league.
type RosterAssignment struct {
	ID              uuid.UUID `json:"id"`
	LeagueID        uuid.UUID `json:"league_id"`
	TeamID          uuid.UUID `json:"team_id"`
	PlayerID        uuid.UUID `json:"player_id"`
	PickNumber      int       `json:"pick_number"`
	WasAutoSelected bool      `json:"was_auto_selected"`
	CreatedAt       time.Time `json:"created_at"`
}
