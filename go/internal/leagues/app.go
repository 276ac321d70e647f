// Package leagues answers the league-level questions the draft engine delegates:
// membership, minimum team count, roster size and post-draft scheduling.
package leagues

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNotMember is returned when a user owns no team in the league.
var ErrNotMember = errors.New("not a member of league")

// ReasonNotEnoughTeams is the cancellation reason when a league misses its minimum.
const ReasonNotEnoughTeams = "not enough teams"

// App implements the league collaborators over the draft store.
type App struct {
	clock clockwork.Clock
}

// NewApp creates a new leagues App
func NewApp(clock clockwork.Clock) *App {
	return &App{clock: clock}
}

// HasMinimumTeams reports whether the league has enough teams to draft. When it
// does not, the returned reason is suitable for a draftCancelled payload.
func (a *App) HasMinimumTeams(ctx context.Context, r store.Reader, leagueID uuid.UUID) (bool, string, error) {
	league, err := r.GetLeague(ctx, leagueID)
	if err != nil {
		return false, "", fmt.Errorf("failed to get league: %w", err)
	}
	teams, err := r.ListTeams(ctx, leagueID)
	if err != nil {
		return false, "", fmt.Errorf("failed to list teams: %w", err)
	}
	if len(teams) < league.MinTeams || len(teams) == 0 {
		log.Info().
			Str("league_id", leagueID.String()).
			Int("teams", len(teams)).
			Int("min_teams", league.MinTeams).
			Msg("league below minimum team count")
		return false, ReasonNotEnoughTeams, nil
	}
	return true, "", nil
}

// RosterSize returns how many players each team drafts.
func (a *App) RosterSize(ctx context.Context, r store.Reader, leagueID uuid.UUID) (int, error) {
	league, err := r.GetLeague(ctx, leagueID)
	if err != nil {
		return 0, fmt.Errorf("failed to get league: %w", err)
	}
	return league.PlayersPerTeam, nil
}

// RequestSchedule records that the league's season schedule should be generated.
// It writes inside tx so the request commits with the draft's end.
func (a *App) RequestSchedule(ctx context.Context, tx store.Tx, leagueID uuid.UUID) error {
	if err := tx.InsertScheduleRequest(ctx, leagueID, a.clock.Now().UTC()); err != nil {
		return fmt.Errorf("failed to request schedule: %w", err)
	}
	log.Info().Str("league_id", leagueID.String()).Msg("schedule requested")
	return nil
}

// TeamForUser returns the team userID owns in the league.
func (a *App) TeamForUser(ctx context.Context, r store.Reader, leagueID, userID uuid.UUID) (*models.FantasyTeam, error) {
	team, err := r.GetTeamByOwner(ctx, leagueID, userID)
	if errors.Is(err, drafterr.ErrNotFound) {
		return nil, fmt.Errorf("user %s, league %s: %w", userID, leagueID, ErrNotMember)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}
