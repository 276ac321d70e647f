// Package store is the persistence boundary of the draft engine. Every lifecycle
// transition runs inside a single Tx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

var (
	// ErrDuplicateAssignment is returned when a player already has a roster
	// assignment in the league.
	ErrDuplicateAssignment = errors.New("player already assigned in league")
	// ErrUnknownPlayer is returned when a roster assignment names a player that does not exist.
	ErrUnknownPlayer = errors.New("unknown player")
)

// EventQuery selects a league's events in log order.
type EventQuery struct {
	LeagueID uuid.UUID
	// After, when set, restricts results to events strictly after it.
	After *models.DraftEvent
	// ServerOnly drops events whose sender is set.
	ServerOnly bool
	// Limit caps the result; 0 means unbounded.
	Limit int
}

// Reader is the read side shared by transactional and non-transactional access.
type Reader interface {
	GetLeague(ctx context.Context, leagueID uuid.UUID) (*models.League, error)
	GetLeagueDraft(ctx context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error)
	GetTeam(ctx context.Context, teamID uuid.UUID) (*models.FantasyTeam, error)
	GetTeamByOwner(ctx context.Context, leagueID, ownerID uuid.UUID) (*models.FantasyTeam, error)
	ListTeams(ctx context.Context, leagueID uuid.UUID) ([]models.FantasyTeam, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*models.DraftEvent, error)
	ListEvents(ctx context.Context, q EventQuery) ([]models.DraftEvent, error)
	ListExpiredTurns(ctx context.Context, now time.Time, limit int) ([]models.DueTurn, error)
	ListDueDraftStarts(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Tx is the query set available inside one transaction.
type Tx interface {
	Reader

	// LockLeagueDraft reads the league draft row and holds it until the transaction ends.
	LockLeagueDraft(ctx context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error)
	// UpdateLeagueDraft persists turn state. It never touches LastEventID.
	UpdateLeagueDraft(ctx context.Context, d *models.LeagueDraft) error
	// InsertEvent appends ev, sets its Seq, and moves the league's last event
	// pointer to it.
	InsertEvent(ctx context.Context, ev *models.DraftEvent) error

	InsertRosterAssignment(ctx context.Context, a *models.RosterAssignment) error
	IsPlayerAssigned(ctx context.Context, leagueID, playerID uuid.UUID) (bool, error)
	// PickResolved reports whether a drafted or not-drafted event exists for pickNumber.
	PickResolved(ctx context.Context, leagueID uuid.UUID, pickNumber int) (bool, error)
	CountRostersByTeam(ctx context.Context, leagueID uuid.UUID) (map[uuid.UUID]int, error)

	// FirstAvailableWatchlistPlayer returns the lowest-order watchlist player of
	// teamID not assigned anywhere in the league, or nil.
	FirstAvailableWatchlistPlayer(ctx context.Context, leagueID, teamID uuid.UUID) (*uuid.UUID, error)
	// CountAvailablePlayers counts unassigned players, optionally restricted to
	// the league's allowed pools.
	CountAvailablePlayers(ctx context.Context, leagueID uuid.UUID, poolRestricted bool) (int, error)
	// AvailablePlayerAt returns the offset-th unassigned player ordered by id.
	AvailablePlayerAt(ctx context.Context, leagueID uuid.UUID, poolRestricted bool, offset int) (uuid.UUID, error)

	ReplaceWatchlist(ctx context.Context, teamID uuid.UUID, entries []models.WatchlistEntry) error
	InsertScheduleRequest(ctx context.Context, leagueID uuid.UUID, requestedAt time.Time) error
}

// Store opens transactions.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Outbox is the relay's view of events awaiting publication.
type Outbox interface {
	ListUnpublishedEvents(ctx context.Context, limit int) ([]models.DraftEvent, error)
	MarkEventPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error
	CountUnpublishedEvents(ctx context.Context) (int, error)
}
