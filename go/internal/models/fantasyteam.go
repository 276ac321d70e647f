package models

import (
	"github.com/google/uuid"
	"time"
)

// FantasyTeam is one owner's draft slot in a league. OwnerUsername is the
// display name drafted events carry; it may be empty.
type FantasyTeam struct {
	ID            uuid.UUID `json:"id"`
	LeagueID      uuid.UUID `json:"league_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	OwnerUsername string    `json:"owner_username"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
}
