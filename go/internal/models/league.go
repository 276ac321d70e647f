package models

import (
	"time"

	"github.com/google/uuid"
)

// League holds the league settings the draft engine reads.
type League struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	MinTeams       int       `json:"min_teams"`
	MaxTeams       int       `json:"max_teams"`
	PlayersPerTeam int       `json:"players_per_team"`
	CreatedAt      time.Time `json:"created_at"`
}
