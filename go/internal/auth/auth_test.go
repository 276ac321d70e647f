package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	secret = []byte("test-secret")
	now    = time.Date(2026, 9, 6, 17, 0, 0, 0, time.UTC)
)

func TestJWTResolver(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	r := NewJWTResolver(secret, clock)
	ctx := context.Background()
	userID := uuid.New()

	token, err := SignToken(secret, userID, "mcdev", now, time.Hour)
	require.NoError(t, err)

	id, err := r.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: userID, Username: "mcdev"}, id)

	t.Run("expired", func(t *testing.T) {
		later := NewJWTResolver(secret, clockwork.NewFakeClockAt(now.Add(2*time.Hour)))
		_, err := later.Resolve(ctx, token)
		assert.ErrorIs(t, err, drafterr.ErrUnauthorized)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := SignToken([]byte("other"), userID, "mcdev", now, time.Hour)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, other)
		assert.ErrorIs(t, err, drafterr.ErrUnauthorized)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := r.Resolve(ctx, "")
		assert.ErrorIs(t, err, drafterr.ErrUnauthorized)
	})

	t.Run("subject not a uuid", func(t *testing.T) {
		bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "alice",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}).SignedString(secret)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, bad)
		assert.ErrorIs(t, err, drafterr.ErrUnauthorized)
	})

	t.Run("no expiry", func(t *testing.T) {
		bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		}).SignedString(secret)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, bad)
		assert.ErrorIs(t, err, drafterr.ErrUnauthorized)
	})
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/draft?token=from-query", nil)
	assert.Equal(t, "from-query", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(req))

	req = httptest.NewRequest("GET", "/ws/draft", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(req))
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	id := &Identity{UserID: uuid.New(), Username: "u"}
	got, ok := FromContext(WithIdentity(context.Background(), id))
	require.True(t, ok)
	assert.Same(t, id, got)
}
