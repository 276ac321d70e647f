package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a draftable player. PoolID is the source pool (pro league) it belongs to.
type Player struct {
	ID        uuid.UUID `json:"id"`
	PoolID    uuid.UUID `json:"pool_id"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}
