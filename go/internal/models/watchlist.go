package models

import "github.com/google/uuid"

type WatchlistEntry struct {
	TeamID   uuid.UUID `json:"team_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Order    int       `json:"order"`
}
