package drafttest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

// LeagueOptions shapes a seeded league.
type LeagueOptions struct {
	Teams          int
	MinTeams       int
	PlayersPerTeam int
	TimePerPickSec int
	// AllowedPlayers are created in a pool the league may draft from.
	AllowedPlayers int
	// OtherPlayers are created in a pool outside the league's allowed pools.
	OtherPlayers  int
	DraftStartsAt *time.Time
}

// League is a seeded league and its participants.
type League struct {
	ID             uuid.UUID
	Teams          []models.FantasyTeam
	AllowedPlayers []uuid.UUID
	OtherPlayers   []uuid.UUID
}

// TeamIDs returns the ids of the seeded teams in creation order.
func (l *League) TeamIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(l.Teams))
	for i, t := range l.Teams {
		ids[i] = t.ID
	}
	return ids
}

// Team returns the seeded team with the given id.
func (l *League) Team(id uuid.UUID) models.FantasyTeam {
	for _, t := range l.Teams {
		if t.ID == id {
			return t
		}
	}
	panic(fmt.Sprintf("team %s not in league %s", id, l.ID))
}

// SeedLeague creates a PRE_DRAFT league with teams, players and pools.
func (m *MemStore) SeedLeague(opts LeagueOptions) *League {
	if opts.MinTeams == 0 {
		opts.MinTeams = 2
	}
	if opts.PlayersPerTeam == 0 {
		opts.PlayersPerTeam = 2
	}
	if opts.TimePerPickSec == 0 {
		opts.TimePerPickSec = 30
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &League{ID: uuid.New()}
	m.state.leagues[l.ID] = models.League{
		ID:             l.ID,
		Name:           "league " + l.ID.String()[:8],
		MinTeams:       opts.MinTeams,
		MaxTeams:       12,
		PlayersPerTeam: opts.PlayersPerTeam,
		CreatedAt:      created,
	}
	m.state.drafts[l.ID] = &models.LeagueDraft{
		LeagueID:       l.ID,
		State:          models.DraftStatePreDraft,
		TimePerPickSec: opts.TimePerPickSec,
		DraftStartsAt:  opts.DraftStartsAt,
		UpdatedAt:      created,
	}

	for i := 0; i < opts.Teams; i++ {
		team := models.FantasyTeam{
			ID:            uuid.New(),
			LeagueID:      l.ID,
			OwnerID:       uuid.New(),
			OwnerUsername: fmt.Sprintf("owner%d", i+1),
			Name:          fmt.Sprintf("team %d", i+1),
			CreatedAt:     created.Add(time.Duration(i) * time.Second),
		}
		m.state.teams[team.ID] = team
		l.Teams = append(l.Teams, team)
	}

	allowedPool, otherPool := uuid.New(), uuid.New()
	m.state.allowedPools[l.ID] = map[uuid.UUID]bool{allowedPool: true}
	for i := 0; i < opts.AllowedPlayers; i++ {
		id := uuid.New()
		m.state.players[id] = models.Player{ID: id, PoolID: allowedPool, FullName: fmt.Sprintf("allowed %d", i)}
		l.AllowedPlayers = append(l.AllowedPlayers, id)
	}
	for i := 0; i < opts.OtherPlayers; i++ {
		id := uuid.New()
		m.state.players[id] = models.Player{ID: id, PoolID: otherPool, FullName: fmt.Sprintf("other %d", i)}
		l.OtherPlayers = append(l.OtherPlayers, id)
	}
	return l
}

// SetWatchlist replaces a team's watchlist; players are ordered as given starting at 1.
func (m *MemStore) SetWatchlist(teamID uuid.UUID, players ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]models.WatchlistEntry, len(players))
	for i, p := range players {
		entries[i] = models.WatchlistEntry{TeamID: teamID, PlayerID: p, Order: i + 1}
	}
	m.state.watchlists[teamID] = entries
}

// Assign records a roster assignment directly, bypassing the lifecycle.
func (m *MemStore) Assign(leagueID, teamID, playerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.assignments[leaguePlayer{leagueID: leagueID, playerID: playerID}] = models.RosterAssignment{
		ID:       uuid.New(),
		LeagueID: leagueID,
		TeamID:   teamID,
		PlayerID: playerID,
	}
}

// PutDraft overwrites a league's draft row, including the fields transitions never write.
func (m *MemStore) PutDraft(d *models.LeagueDraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.drafts[d.LeagueID] = d.Clone()
}
