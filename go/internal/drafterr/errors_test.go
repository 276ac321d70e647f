package drafterr

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsRejected(t *testing.T) {
	wrapped := fmt.Errorf("submit pick: %w", Rejected("not your turn"))

	reason, ok := IsRejected(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "not your turn", reason)

	_, ok = IsRejected(ErrNotFound)
	assert.False(t, ok)
}

func TestIsInvalidState(t *testing.T) {
	err := fmt.Errorf("tick: %w", &InvalidStateError{LeagueID: uuid.New(), State: "DRAFTING", Op: "startDraft"})
	assert.True(t, IsInvalidState(err))
	assert.Contains(t, err.Error(), "startDraft not allowed")
	assert.False(t, IsInvalidState(ErrInvalidCatchupToken))
}
