// Package pick decides whether a user-initiated pick may be recorded.
package pick

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

// Rejection reasons sent back to the requesting client.
const (
	ReasonNotYourTurn     = "not your turn"
	ReasonAlreadyDrafted  = "already drafted"
	ReasonAlreadyResolved = "pick already made this turn"
	ReasonUnknownPlayer   = "unknown player"
)

// Queries is the read access validation needs. store.Tx satisfies it.
type Queries interface {
	GetLeagueDraft(ctx context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error)
	IsPlayerAssigned(ctx context.Context, leagueID, playerID uuid.UUID) (bool, error)
	PickResolved(ctx context.Context, leagueID uuid.UUID, pickNumber int) (bool, error)
}

// Validate checks, in order, that teamID holds the current turn, that the
// player is still unassigned in the league, and that the turn has not already
// been resolved. A failed check is returned as a *drafterr.RejectedError.
func Validate(ctx context.Context, q Queries, leagueID, teamID, playerID uuid.UUID) (*models.LeagueDraft, error) {
	d, err := q.GetLeagueDraft(ctx, leagueID)
	if errors.Is(err, drafterr.ErrNotFound) {
		return nil, drafterr.Rejected(ReasonNotYourTurn)
	}
	if err != nil {
		return nil, fmt.Errorf("validate pick: %w", err)
	}
	if !d.IsPicking(teamID) {
		return nil, drafterr.Rejected(ReasonNotYourTurn)
	}

	assigned, err := q.IsPlayerAssigned(ctx, leagueID, playerID)
	if err != nil {
		return nil, fmt.Errorf("validate pick: %w", err)
	}
	if assigned {
		return nil, drafterr.Rejected(ReasonAlreadyDrafted)
	}

	resolved, err := q.PickResolved(ctx, leagueID, d.CurrentPickNumber)
	if err != nil {
		return nil, fmt.Errorf("validate pick: %w", err)
	}
	if resolved {
		return nil, drafterr.Rejected(ReasonAlreadyResolved)
	}
	return d, nil
}
