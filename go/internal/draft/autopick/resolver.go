// Package autopick chooses a player on behalf of a team whose turn expired.
package autopick

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Queries is the read access selection needs. store.Tx satisfies it.
type Queries interface {
	FirstAvailableWatchlistPlayer(ctx context.Context, leagueID, teamID uuid.UUID) (*uuid.UUID, error)
	CountAvailablePlayers(ctx context.Context, leagueID uuid.UUID, poolRestricted bool) (int, error)
	AvailablePlayerAt(ctx context.Context, leagueID uuid.UUID, poolRestricted bool, offset int) (uuid.UUID, error)
}

// Resolver picks the team's first available watchlist player, then a random
// unassigned player from the league's allowed pools, then a random unassigned
// player from any pool.
type Resolver struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewResolver constructs a Resolver with its own seed.
func NewResolver() *Resolver {
	return NewResolverWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewResolverWithSource constructs a Resolver over src; tests use a fixed seed.
func NewResolverWithSource(src rand.Source) *Resolver {
	return &Resolver{rng: rand.New(src)}
}

// Select returns the player to draft for teamID, or nil when nothing is left.
func (r *Resolver) Select(ctx context.Context, q Queries, leagueID, teamID uuid.UUID) (*uuid.UUID, error) {
	id, err := q.FirstAvailableWatchlistPlayer(ctx, leagueID, teamID)
	if err != nil {
		return nil, fmt.Errorf("watchlist lookup: %w", err)
	}
	if id != nil {
		log.Debug().
			Str("league_id", leagueID.String()).
			Str("team_id", teamID.String()).
			Str("player_id", id.String()).
			Msg("auto-select from watchlist")
		return id, nil
	}

	for _, poolRestricted := range []bool{true, false} {
		id, err := r.random(ctx, q, leagueID, poolRestricted)
		if err != nil {
			return nil, err
		}
		if id != nil {
			log.Debug().
				Str("league_id", leagueID.String()).
				Str("team_id", teamID.String()).
				Str("player_id", id.String()).
				Bool("pool_restricted", poolRestricted).
				Msg("auto-select at random")
			return id, nil
		}
	}
	return nil, nil
}

func (r *Resolver) random(ctx context.Context, q Queries, leagueID uuid.UUID, poolRestricted bool) (*uuid.UUID, error) {
	n, err := q.CountAvailablePlayers(ctx, leagueID, poolRestricted)
	if err != nil {
		return nil, fmt.Errorf("count available players: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	r.mu.Lock()
	offset := r.rng.Intn(n)
	r.mu.Unlock()

	id, err := q.AvailablePlayerAt(ctx, leagueID, poolRestricted, offset)
	if err != nil {
		return nil, fmt.Errorf("available player at %d: %w", offset, err)
	}
	return &id, nil
}
