package adminapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

const (
	// DraftAdminServiceName is the fully-qualified name of the DraftAdminService service.
	DraftAdminServiceName = "draftlobby.draft.v1.DraftAdminService"

	DraftAdminServiceStartDraftProcedure    = "/" + DraftAdminServiceName + "/StartDraft"
	DraftAdminServiceGetDraftStateProcedure = "/" + DraftAdminServiceName + "/GetDraftState"
	DraftAdminServiceListEventsProcedure    = "/" + DraftAdminServiceName + "/ListEvents"
	DraftAdminServiceSetWatchlistProcedure  = "/" + DraftAdminServiceName + "/SetWatchlist"
)

type StartDraftRequest struct {
	LeagueID uuid.UUID `json:"leagueId"`
}

type StartDraftResponse struct {
	Draft DraftState `json:"draft"`
}

type GetDraftStateRequest struct {
	LeagueID uuid.UUID `json:"leagueId"`
}

type GetDraftStateResponse struct {
	Draft DraftState `json:"draft"`
}

// ListEventsRequest pages through a league's log. AfterEventID empty means
// from the beginning.
type ListEventsRequest struct {
	LeagueID            uuid.UUID  `json:"leagueId"`
	AfterEventID        *uuid.UUID `json:"afterEventId,omitempty"`
	IncludeClientEvents bool       `json:"includeClientEvents,omitempty"`
	Limit               int        `json:"limit,omitempty"`
}

type ListEventsResponse struct {
	Events []Event `json:"events"`
	// NextAfterEventID is set when more events may follow.
	NextAfterEventID *uuid.UUID `json:"nextAfterEventId,omitempty"`
}

type SetWatchlistRequest struct {
	TeamID    uuid.UUID   `json:"teamId"`
	PlayerIDs []uuid.UUID `json:"playerIds"`
}

type SetWatchlistResponse struct {
	Entries []WatchlistEntry `json:"entries"`
}

// DraftState is the wire form of a league's draft row.
type DraftState struct {
	LeagueID             uuid.UUID   `json:"leagueId"`
	State                string      `json:"state"`
	PickOrder            []uuid.UUID `json:"pickOrder"`
	CurrentPickNumber    int         `json:"currentPickNumber"`
	CurrentPickingTeamID *uuid.UUID  `json:"currentPickingTeamId,omitempty"`
	TimePerPickSec       int         `json:"timePerPickSec"`
	CurrentPickStartsAt  *time.Time  `json:"currentPickStartsAt,omitempty"`
	CurrentPickEndsAt    *time.Time  `json:"currentPickEndsAt,omitempty"`
	DraftStartsAt        *time.Time  `json:"draftStartsAt,omitempty"`
	LastEventID          *uuid.UUID  `json:"lastEventId,omitempty"`
}

type Event struct {
	ID       uuid.UUID       `json:"id"`
	Seq      int64           `json:"seq"`
	Name     string          `json:"eventName"`
	SenderID *uuid.UUID      `json:"senderId,omitempty"`
	At       time.Time       `json:"at"`
	Data     json.RawMessage `json:"data"`
}

type WatchlistEntry struct {
	PlayerID uuid.UUID `json:"playerId"`
	Order    int       `json:"order"`
}

func draftStateFromModel(d *models.LeagueDraft) DraftState {
	return DraftState{
		LeagueID:             d.LeagueID,
		State:                string(d.State),
		PickOrder:            d.PickOrder,
		CurrentPickNumber:    d.CurrentPickNumber,
		CurrentPickingTeamID: d.CurrentPickingTeamID,
		TimePerPickSec:       d.TimePerPickSec,
		CurrentPickStartsAt:  d.CurrentPickStartsAt,
		CurrentPickEndsAt:    d.CurrentPickEndsAt,
		DraftStartsAt:        d.DraftStartsAt,
		LastEventID:          d.LastEventID,
	}
}

func eventFromModel(ev models.DraftEvent) Event {
	return Event{
		ID:       ev.ID,
		Seq:      ev.Seq,
		Name:     ev.Name,
		SenderID: ev.SenderID,
		At:       ev.At,
		Data:     ev.Data,
	}
}
