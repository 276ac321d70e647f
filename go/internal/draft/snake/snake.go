// Package snake resolves which team holds a pick in a snake draft.
package snake

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
)

// Position returns the zero-based index into the pick order for pickNumber
// (1-indexed) with n teams. Even rounds run ascending, odd rounds descending.
func Position(pickNumber, n int) (int, error) {
	if n < 1 {
		return 0, fmt.Errorf("%w: snake order needs at least one team, got %d", drafterr.ErrInvalidInput, n)
	}
	if pickNumber < 1 {
		return 0, fmt.Errorf("%w: pick number must be >= 1, got %d", drafterr.ErrInvalidInput, pickNumber)
	}

	idx := pickNumber - 1
	round := idx / n
	p := idx % n
	if round%2 == 0 {
		return p, nil
	}
	return n - 1 - p, nil
}

// TeamForPick returns the team whose turn pickNumber is.
func TeamForPick(pickNumber int, teams []uuid.UUID) (uuid.UUID, error) {
	pos, err := Position(pickNumber, len(teams))
	if err != nil {
		return uuid.Nil, err
	}
	return teams[pos], nil
}
