package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/draftlobby/go/internal/auth"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/rs/zerolog/log"
)

// Routes mounts the websocket endpoint and connection stats.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws/draft", g.HandleDraftConnection)
	r.Get("/ws/stats", g.HandleConnectionStats)
	return r
}

// HandleDraftConnection authenticates the request and upgrades it. Requests
// without a valid token are refused before the upgrade.
func (g *Gateway) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	ctx, ok := g.running()
	if !ok {
		http.Error(w, "gateway is shutting down", http.StatusServiceUnavailable)
		return
	}

	token := auth.TokenFromRequest(r)
	if token == "" {
		http.Error(w, "missing access token", http.StatusUnauthorized)
		return
	}
	identity, err := g.tokens.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, drafterr.ErrUnauthorized) {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("failed to resolve access token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Error().
			Err(err).
			Str("user_id", identity.UserID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}
	g.serve(ctx, ws, *identity)
}

// HandleConnectionStats returns statistics about active connections
func (g *Gateway) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(g.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}
