package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp_Milliseconds(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2026-03-01T17:30:45.123Z", FormatTimestamp(ts))
}

func TestSubject(t *testing.T) {
	id := uuid.MustParse("7b0cbd8e-0d53-4a47-9b9a-4c2f6f1f7a10")
	assert.Equal(t, "draft.events.7b0cbd8e-0d53-4a47-9b9a-4c2f6f1f7a10", Subject(id))
}

func TestDecodeEnvelope_RejectsMissingIDs(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"eventName":"draftStart","data":{}}`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestEnvelope_CarriesStoredEvent(t *testing.T) {
	ev := models.DraftEvent{
		ID:       uuid.New(),
		Seq:      42,
		LeagueID: uuid.New(),
		Name:     string(PickTurnEnded),
		At:       time.Now().UTC().Truncate(time.Millisecond),
		Data:     json.RawMessage(`{"pickNumber":3}`),
	}
	body, err := json.Marshal(NewEnvelope(ev))
	require.NoError(t, err)

	env, err := DecodeEnvelope(body)
	require.NoError(t, err)
	got := env.DraftEvent()
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Seq, got.Seq)
	assert.Equal(t, ev.Name, got.Name)
	assert.True(t, ev.At.Equal(got.At))
	assert.JSONEq(t, string(ev.Data), string(got.Data))
}

func TestName_ResolvesPick(t *testing.T) {
	assert.True(t, PlayerDrafted.ResolvesPick())
	assert.True(t, NoPlayerDrafted.ResolvesPick())
	assert.False(t, PickTurnEnded.ResolvesPick())
	assert.False(t, Name("chat").Valid())
}
