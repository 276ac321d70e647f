package leagues

import (
	"fmt"

	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

// ValidateLeague checks the settings a league needs before it can draft.
func ValidateLeague(l models.League) error {
	if l.Name == "" {
		return fmt.Errorf("%w: name is required", drafterr.ErrInvalidInput)
	}
	if l.MinTeams < 1 {
		return fmt.Errorf("%w: min_teams must be at least 1", drafterr.ErrInvalidInput)
	}
	if l.MaxTeams < l.MinTeams {
		return fmt.Errorf("%w: max_teams %d below min_teams %d", drafterr.ErrInvalidInput, l.MaxTeams, l.MinTeams)
	}
	if l.PlayersPerTeam < 1 {
		return fmt.Errorf("%w: players_per_team must be at least 1", drafterr.ErrInvalidInput)
	}
	return nil
}

// ValidateTimePerPick checks a draft's turn window.
func ValidateTimePerPick(seconds int) error {
	if seconds < 1 {
		return fmt.Errorf("%w: time_per_pick_sec must be positive", drafterr.ErrInvalidInput)
	}
	return nil
}
