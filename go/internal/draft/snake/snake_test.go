package snake

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_TwoRoundSymmetry(t *testing.T) {
	for n := 1; n <= 12; n++ {
		var got []int
		for pick := 1; pick <= 2*n; pick++ {
			pos, err := Position(pick, n)
			require.NoError(t, err)
			got = append(got, pos)
		}

		var want []int
		for i := 0; i < n; i++ {
			want = append(want, i)
		}
		for i := n - 1; i >= 0; i-- {
			want = append(want, i)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("n=%d snake order mismatch (-want +got):\n%s", n, diff)
		}
	}
}

func TestPosition_RepeatsEveryTwoRounds(t *testing.T) {
	const n = 5
	for pick := 1; pick <= 4*n; pick++ {
		a, err := Position(pick, n)
		require.NoError(t, err)
		b, err := Position(pick+2*n, n)
		require.NoError(t, err)
		assert.Equal(t, a, b, "pick %d", pick)
	}
}

func TestTeamForPick(t *testing.T) {
	teams := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	tests := []struct {
		pick int
		want uuid.UUID
	}{
		{1, teams[0]},
		{4, teams[3]},
		{5, teams[3]},
		{8, teams[0]},
		{9, teams[0]},
		{10, teams[1]},
	}
	for _, tt := range tests {
		got, err := TeamForPick(tt.pick, teams)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "pick %d", tt.pick)
	}
}

func TestTeamForPick_InvalidInput(t *testing.T) {
	_, err := TeamForPick(1, nil)
	assert.True(t, errors.Is(err, drafterr.ErrInvalidInput))

	_, err = TeamForPick(0, []uuid.UUID{uuid.New()})
	assert.True(t, errors.Is(err, drafterr.ErrInvalidInput))
}
