package main

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/draft/adminapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupServer(t *testing.T) {
	cfg := &config.Config{
		APIAddr:        ":0",
		JWTSecret:      "api-secret",
		AllowedOrigins: []string{"*"},
	}
	// Nothing listens on port 1, so the store is reachable only on paper.
	db, err := sql.Open("postgres", "host=127.0.0.1 port=1 dbname=draftlobby sslmode=disable connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := setupServer(cfg, setupServices(db, cfg))
	assert.Equal(t, ":0", srv.Addr)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health reports the database", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("admin service requires a token", func(t *testing.T) {
		client := adminapi.NewClient(ts.Client(), ts.URL, "")
		_, err := client.GetDraftState(context.Background(), &adminapi.GetDraftStateRequest{LeagueID: uuid.New()})
		require.Error(t, err)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})
}
