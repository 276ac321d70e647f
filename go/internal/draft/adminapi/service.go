// Package adminapi serves the draft admin RPCs over connect: starting a draft,
// inspecting its state and log, and managing a team's watchlist.
package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/auth"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
)

// Lifecycle is the part of the lifecycle controller the admin API drives.
type Lifecycle interface {
	StartDraft(ctx context.Context, leagueID uuid.UUID) error
}

// Membership resolves a user's team in a league.
type Membership interface {
	TeamForUser(ctx context.Context, r store.Reader, leagueID, userID uuid.UUID) (*models.FantasyTeam, error)
}

// Service implements the DraftAdminService procedures.
type Service struct {
	store      store.Store
	lifecycle  Lifecycle
	membership Membership
}

func NewService(st store.Store, lifecycle Lifecycle, membership Membership) *Service {
	return &Service{store: st, lifecycle: lifecycle, membership: membership}
}

// NewHandler builds an HTTP handler from the service implementation. It
// returns the path on which to mount the handler and the handler itself.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(DraftAdminServiceStartDraftProcedure, connect.NewUnaryHandler(
		DraftAdminServiceStartDraftProcedure, svc.StartDraft, opts...))
	mux.Handle(DraftAdminServiceGetDraftStateProcedure, connect.NewUnaryHandler(
		DraftAdminServiceGetDraftStateProcedure, svc.GetDraftState, opts...))
	mux.Handle(DraftAdminServiceListEventsProcedure, connect.NewUnaryHandler(
		DraftAdminServiceListEventsProcedure, svc.ListEvents, opts...))
	mux.Handle(DraftAdminServiceSetWatchlistProcedure, connect.NewUnaryHandler(
		DraftAdminServiceSetWatchlistProcedure, svc.SetWatchlist, opts...))
	return "/" + DraftAdminServiceName + "/", mux
}

// StartDraft starts a PRE_DRAFT league's draft now, ahead of its scheduled time.
func (s *Service) StartDraft(ctx context.Context, req *connect.Request[StartDraftRequest]) (*connect.Response[StartDraftResponse], error) {
	leagueID := req.Msg.LeagueID
	if leagueID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("leagueId is required"))
	}
	if _, err := s.requireMember(ctx, leagueID); err != nil {
		return nil, err
	}

	if err := s.lifecycle.StartDraft(ctx, leagueID); err != nil {
		return nil, toConnectError(err)
	}

	d, err := s.store.GetLeagueDraft(ctx, leagueID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StartDraftResponse{Draft: draftStateFromModel(d)}), nil
}

// GetDraftState returns the league's current draft row.
func (s *Service) GetDraftState(ctx context.Context, req *connect.Request[GetDraftStateRequest]) (*connect.Response[GetDraftStateResponse], error) {
	leagueID := req.Msg.LeagueID
	if leagueID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("leagueId is required"))
	}
	if _, err := s.requireMember(ctx, leagueID); err != nil {
		return nil, err
	}

	d, err := s.store.GetLeagueDraft(ctx, leagueID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetDraftStateResponse{Draft: draftStateFromModel(d)}), nil
}

// ListEvents pages through the league's event log in log order.
func (s *Service) ListEvents(ctx context.Context, req *connect.Request[ListEventsRequest]) (*connect.Response[ListEventsResponse], error) {
	msg := req.Msg
	if msg.LeagueID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("leagueId is required"))
	}
	limit := msg.Limit
	switch {
	case limit < 0:
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("limit must not be negative"))
	case limit == 0:
		limit = defaultEventLimit
	case limit > maxEventLimit:
		limit = maxEventLimit
	}
	if _, err := s.requireMember(ctx, msg.LeagueID); err != nil {
		return nil, err
	}

	q := store.EventQuery{
		LeagueID:   msg.LeagueID,
		ServerOnly: !msg.IncludeClientEvents,
		Limit:      limit + 1,
	}
	if msg.AfterEventID != nil {
		after, err := s.store.GetEvent(ctx, *msg.AfterEventID)
		if err != nil && !errors.Is(err, drafterr.ErrNotFound) {
			return nil, toConnectError(err)
		}
		if after == nil || after.LeagueID != msg.LeagueID {
			return nil, connect.NewError(connect.CodeInvalidArgument,
				fmt.Errorf("event %s: %w", *msg.AfterEventID, drafterr.ErrInvalidCatchupToken))
		}
		q.After = after
	}

	evs, err := s.store.ListEvents(ctx, q)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &ListEventsResponse{Events: make([]Event, 0, len(evs))}
	if len(evs) > limit {
		evs = evs[:limit]
		next := evs[limit-1].ID
		resp.NextAfterEventID = &next
	}
	for _, ev := range evs {
		resp.Events = append(resp.Events, eventFromModel(ev))
	}
	return connect.NewResponse(resp), nil
}

// SetWatchlist replaces the caller's team watchlist with the given players,
// ordered as listed.
func (s *Service) SetWatchlist(ctx context.Context, req *connect.Request[SetWatchlistRequest]) (*connect.Response[SetWatchlistResponse], error) {
	msg := req.Msg
	if msg.TeamID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("teamId is required"))
	}
	caller, ok := auth.FromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, drafterr.ErrUnauthorized)
	}

	seen := make(map[uuid.UUID]bool, len(msg.PlayerIDs))
	entries := make([]models.WatchlistEntry, 0, len(msg.PlayerIDs))
	for i, playerID := range msg.PlayerIDs {
		if playerID == uuid.Nil || seen[playerID] {
			return nil, connect.NewError(connect.CodeInvalidArgument,
				fmt.Errorf("playerIds[%d]: missing or duplicate player", i))
		}
		seen[playerID] = true
		entries = append(entries, models.WatchlistEntry{TeamID: msg.TeamID, PlayerID: playerID, Order: i + 1})
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		team, err := tx.GetTeam(ctx, msg.TeamID)
		if err != nil {
			return err
		}
		if team.OwnerID != caller.UserID {
			return connect.NewError(connect.CodePermissionDenied,
				fmt.Errorf("team %s is not owned by user %s", team.ID, caller.UserID))
		}
		return tx.ReplaceWatchlist(ctx, team.ID, entries)
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	log.Info().
		Str("team_id", msg.TeamID.String()).
		Int("entries", len(entries)).
		Msg("watchlist replaced")

	resp := &SetWatchlistResponse{Entries: make([]WatchlistEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = WatchlistEntry{PlayerID: e.PlayerID, Order: e.Order}
	}
	return connect.NewResponse(resp), nil
}

// requireMember returns the caller's team in the league.
func (s *Service) requireMember(ctx context.Context, leagueID uuid.UUID) (*models.FantasyTeam, error) {
	caller, ok := auth.FromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, drafterr.ErrUnauthorized)
	}
	team, err := s.membership.TeamForUser(ctx, s.store, leagueID, caller.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return team, nil
}

func toConnectError(err error) error {
	var ce *connect.Error
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, drafterr.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, leagues.ErrNotMember):
		return connect.NewError(connect.CodePermissionDenied, err)
	case drafterr.IsInvalidState(err):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, drafterr.ErrInvalidInput), errors.Is(err, store.ErrUnknownPlayer):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		log.Error().Err(err).Msg("admin api call failed")
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
}
