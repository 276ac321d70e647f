// Package drafttest provides an in-memory store and fixtures for exercising the
// draft engine without Postgres.
package drafttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
)

type leaguePlayer struct {
	leagueID uuid.UUID
	playerID uuid.UUID
}

type state struct {
	leagues      map[uuid.UUID]models.League
	drafts       map[uuid.UUID]*models.LeagueDraft
	teams        map[uuid.UUID]models.FantasyTeam
	players      map[uuid.UUID]models.Player
	allowedPools map[uuid.UUID]map[uuid.UUID]bool
	events       []models.DraftEvent
	published    map[uuid.UUID]bool
	assignments  map[leaguePlayer]models.RosterAssignment
	watchlists   map[uuid.UUID][]models.WatchlistEntry
	schedules    []uuid.UUID
	seq          int64
}

func newState() *state {
	return &state{
		leagues:      make(map[uuid.UUID]models.League),
		drafts:       make(map[uuid.UUID]*models.LeagueDraft),
		teams:        make(map[uuid.UUID]models.FantasyTeam),
		players:      make(map[uuid.UUID]models.Player),
		allowedPools: make(map[uuid.UUID]map[uuid.UUID]bool),
		published:    make(map[uuid.UUID]bool),
		assignments:  make(map[leaguePlayer]models.RosterAssignment),
		watchlists:   make(map[uuid.UUID][]models.WatchlistEntry),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.leagues {
		c.leagues[k] = v
	}
	for k, v := range s.drafts {
		c.drafts[k] = v.Clone()
	}
	for k, v := range s.teams {
		c.teams[k] = v
	}
	for k, v := range s.players {
		c.players[k] = v
	}
	for k, pools := range s.allowedPools {
		m := make(map[uuid.UUID]bool, len(pools))
		for p := range pools {
			m[p] = true
		}
		c.allowedPools[k] = m
	}
	c.events = append([]models.DraftEvent(nil), s.events...)
	for k, v := range s.published {
		c.published[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.watchlists {
		c.watchlists[k] = append([]models.WatchlistEntry(nil), v...)
	}
	c.schedules = append([]uuid.UUID(nil), s.schedules...)
	c.seq = s.seq
	return c
}

// MemStore is an in-memory store.Store. Transactions are serialized and run
// against a copy of the state that replaces the original only on success.
type MemStore struct {
	mu    sync.RWMutex
	state *state

	hookMu   sync.Mutex
	onCommit func(models.DraftEvent)

	// FailNextTx, when set, makes the next InTx fail after fn runs.
	failMu     sync.Mutex
	failNextTx error
}

func NewMemStore() *MemStore {
	return &MemStore{state: newState()}
}

// OnCommit registers fn to receive every event appended by a committed transaction, in log order.
func (m *MemStore) OnCommit(fn func(models.DraftEvent)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onCommit = fn
}

// FailNextCommit makes the next transaction roll back with err after its body runs.
func (m *MemStore) FailNextCommit(err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failNextTx = err
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	work := m.state.clone()
	before := len(work.events)
	if err := fn(&memTx{s: work}); err != nil {
		m.mu.Unlock()
		return err
	}
	m.failMu.Lock()
	failErr := m.failNextTx
	m.failNextTx = nil
	m.failMu.Unlock()
	if failErr != nil {
		m.mu.Unlock()
		return failErr
	}
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = work
	committed := append([]models.DraftEvent(nil), work.events[before:]...)

	// Hooks fire before the lock is released so that commit order is delivery order.
	m.hookMu.Lock()
	hook := m.onCommit
	m.hookMu.Unlock()
	if hook != nil {
		for _, ev := range committed {
			hook(ev)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *MemStore) read() *memTx {
	return &memTx{s: m.state}
}

func (m *MemStore) GetLeague(ctx context.Context, leagueID uuid.UUID) (*models.League, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetLeague(ctx, leagueID)
}

func (m *MemStore) GetLeagueDraft(ctx context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetLeagueDraft(ctx, leagueID)
}

func (m *MemStore) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.FantasyTeam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetTeam(ctx, teamID)
}

func (m *MemStore) GetTeamByOwner(ctx context.Context, leagueID, ownerID uuid.UUID) (*models.FantasyTeam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetTeamByOwner(ctx, leagueID, ownerID)
}

func (m *MemStore) ListTeams(ctx context.Context, leagueID uuid.UUID) ([]models.FantasyTeam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListTeams(ctx, leagueID)
}

func (m *MemStore) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.DraftEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetEvent(ctx, eventID)
}

func (m *MemStore) ListEvents(ctx context.Context, q store.EventQuery) ([]models.DraftEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListEvents(ctx, q)
}

func (m *MemStore) ListExpiredTurns(ctx context.Context, now time.Time, limit int) ([]models.DueTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListExpiredTurns(ctx, now, limit)
}

func (m *MemStore) ListDueDraftStarts(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListDueDraftStarts(ctx, now, limit)
}

func (m *MemStore) ListUnpublishedEvents(_ context.Context, limit int) ([]models.DraftEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DraftEvent
	for _, ev := range m.state.events {
		if m.state.published[ev.ID] {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) MarkEventPublished(_ context.Context, eventID uuid.UUID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.published[eventID] = true
	return nil
}

func (m *MemStore) CountUnpublishedEvents(ctx context.Context) (int, error) {
	evs, err := m.ListUnpublishedEvents(ctx, 0)
	return len(evs), err
}

// Events returns every stored event of a league in log order.
func (m *MemStore) Events(leagueID uuid.UUID) []models.DraftEvent {
	evs, _ := m.ListEvents(context.Background(), store.EventQuery{LeagueID: leagueID})
	return evs
}

// EventNames returns the names of Events(leagueID).
func (m *MemStore) EventNames(leagueID uuid.UUID) []events.Name {
	var names []events.Name
	for _, ev := range m.Events(leagueID) {
		names = append(names, events.Name(ev.Name))
	}
	return names
}

// Assignments returns the roster assignments of a league ordered by pick number.
func (m *MemStore) Assignments(leagueID uuid.UUID) []models.RosterAssignment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RosterAssignment
	for k, a := range m.state.assignments {
		if k.leagueID == leagueID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickNumber < out[j].PickNumber })
	return out
}

// Watchlist returns a team's watchlist in preference order.
func (m *MemStore) Watchlist(teamID uuid.UUID) []models.WatchlistEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().watchlist(teamID)
}

// ScheduleRequests returns the leagues a schedule was requested for.
func (m *MemStore) ScheduleRequests() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uuid.UUID(nil), m.state.schedules...)
}

// Draft returns a copy of a league's draft state; it panics if the league is unknown.
func (m *MemStore) Draft(leagueID uuid.UUID) *models.LeagueDraft {
	d, err := m.GetLeagueDraft(context.Background(), leagueID)
	if err != nil {
		panic(err)
	}
	return d
}

// memTx implements store.Tx over one state snapshot.
type memTx struct {
	s *state
}

func (t *memTx) GetLeague(_ context.Context, leagueID uuid.UUID) (*models.League, error) {
	l, ok := t.s.leagues[leagueID]
	if !ok {
		return nil, fmt.Errorf("league: %w", drafterr.ErrNotFound)
	}
	return &l, nil
}

func (t *memTx) GetLeagueDraft(_ context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error) {
	d, ok := t.s.drafts[leagueID]
	if !ok {
		return nil, fmt.Errorf("league draft: %w", drafterr.ErrNotFound)
	}
	return d.Clone(), nil
}

func (t *memTx) LockLeagueDraft(ctx context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error) {
	return t.GetLeagueDraft(ctx, leagueID)
}

func (t *memTx) UpdateLeagueDraft(_ context.Context, d *models.LeagueDraft) error {
	cur, ok := t.s.drafts[d.LeagueID]
	if !ok {
		return fmt.Errorf("update league draft: %w", drafterr.ErrNotFound)
	}
	next := d.Clone()
	next.LastEventID = cur.LastEventID
	next.DraftStartsAt = cur.DraftStartsAt
	next.TimePerPickSec = cur.TimePerPickSec
	t.s.drafts[d.LeagueID] = next
	return nil
}

func (t *memTx) GetTeam(_ context.Context, teamID uuid.UUID) (*models.FantasyTeam, error) {
	team, ok := t.s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team: %w", drafterr.ErrNotFound)
	}
	return &team, nil
}

func (t *memTx) GetTeamByOwner(_ context.Context, leagueID, ownerID uuid.UUID) (*models.FantasyTeam, error) {
	for _, team := range t.s.teams {
		if team.LeagueID == leagueID && team.OwnerID == ownerID {
			team := team
			return &team, nil
		}
	}
	return nil, fmt.Errorf("team: %w", drafterr.ErrNotFound)
}

func (t *memTx) ListTeams(_ context.Context, leagueID uuid.UUID) ([]models.FantasyTeam, error) {
	var out []models.FantasyTeam
	for _, team := range t.s.teams {
		if team.LeagueID == leagueID {
			out = append(out, team)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *memTx) GetEvent(_ context.Context, eventID uuid.UUID) (*models.DraftEvent, error) {
	for _, ev := range t.s.events {
		if ev.ID == eventID {
			ev := ev
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("draft event: %w", drafterr.ErrNotFound)
}

func (t *memTx) ListEvents(_ context.Context, q store.EventQuery) ([]models.DraftEvent, error) {
	var out []models.DraftEvent
	for _, ev := range t.s.events {
		if ev.LeagueID != q.LeagueID {
			continue
		}
		if q.ServerOnly && !ev.ServerOriginated() {
			continue
		}
		if q.After != nil && !q.After.Before(&ev) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev *models.DraftEvent) error {
	d, ok := t.s.drafts[ev.LeagueID]
	if !ok {
		return fmt.Errorf("move last event pointer: %w", drafterr.ErrNotFound)
	}
	t.s.seq++
	ev.Seq = t.s.seq
	t.s.events = append(t.s.events, *ev)
	id := ev.ID
	d.LastEventID = &id
	return nil
}

func (t *memTx) watchlist(teamID uuid.UUID) []models.WatchlistEntry {
	entries := append([]models.WatchlistEntry(nil), t.s.watchlists[teamID]...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })
	return entries
}

func (t *memTx) ListExpiredTurns(_ context.Context, now time.Time, limit int) ([]models.DueTurn, error) {
	var due []models.DueTurn
	for _, d := range t.s.drafts {
		if d.State == models.DraftStateDrafting && d.CurrentPickEndsAt != nil && !d.CurrentPickEndsAt.After(now) {
			due = append(due, models.DueTurn{LeagueID: d.LeagueID, PickNumber: d.CurrentPickNumber, EndsAt: *d.CurrentPickEndsAt})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndsAt.Before(due[j].EndsAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (t *memTx) ListDueDraftStarts(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, d := range t.s.drafts {
		if d.State == models.DraftStatePreDraft && d.DraftStartsAt != nil && !d.DraftStartsAt.After(now) {
			ids = append(ids, d.LeagueID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (t *memTx) InsertRosterAssignment(_ context.Context, a *models.RosterAssignment) error {
	if _, ok := t.s.players[a.PlayerID]; !ok {
		return store.ErrUnknownPlayer
	}
	key := leaguePlayer{leagueID: a.LeagueID, playerID: a.PlayerID}
	if _, taken := t.s.assignments[key]; taken {
		return store.ErrDuplicateAssignment
	}
	t.s.assignments[key] = *a
	return nil
}

func (t *memTx) IsPlayerAssigned(_ context.Context, leagueID, playerID uuid.UUID) (bool, error) {
	_, ok := t.s.assignments[leaguePlayer{leagueID: leagueID, playerID: playerID}]
	return ok, nil
}

func (t *memTx) PickResolved(_ context.Context, leagueID uuid.UUID, pickNumber int) (bool, error) {
	for _, ev := range t.s.events {
		if ev.LeagueID != leagueID || !events.Name(ev.Name).ResolvesPick() {
			continue
		}
		var ref events.PickRef
		if err := json.Unmarshal(ev.Data, &ref); err != nil {
			return false, fmt.Errorf("decode pick ref: %w", err)
		}
		if ref.PickNumber == pickNumber {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountRostersByTeam(_ context.Context, leagueID uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	for k, a := range t.s.assignments {
		if k.leagueID == leagueID {
			counts[a.TeamID]++
		}
	}
	return counts, nil
}

func (t *memTx) FirstAvailableWatchlistPlayer(_ context.Context, leagueID, teamID uuid.UUID) (*uuid.UUID, error) {
	for _, e := range t.watchlist(teamID) {
		if _, taken := t.s.assignments[leaguePlayer{leagueID: leagueID, playerID: e.PlayerID}]; !taken {
			id := e.PlayerID
			return &id, nil
		}
	}
	return nil, nil
}

func (t *memTx) availablePlayers(leagueID uuid.UUID, poolRestricted bool) []uuid.UUID {
	var ids []uuid.UUID
	for id, p := range t.s.players {
		if _, taken := t.s.assignments[leaguePlayer{leagueID: leagueID, playerID: id}]; taken {
			continue
		}
		if poolRestricted && !t.s.allowedPools[leagueID][p.PoolID] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (t *memTx) CountAvailablePlayers(_ context.Context, leagueID uuid.UUID, poolRestricted bool) (int, error) {
	return len(t.availablePlayers(leagueID, poolRestricted)), nil
}

func (t *memTx) AvailablePlayerAt(_ context.Context, leagueID uuid.UUID, poolRestricted bool, offset int) (uuid.UUID, error) {
	ids := t.availablePlayers(leagueID, poolRestricted)
	if offset < 0 || offset >= len(ids) {
		return uuid.Nil, fmt.Errorf("available player: %w", drafterr.ErrNotFound)
	}
	return ids[offset], nil
}

func (t *memTx) ReplaceWatchlist(_ context.Context, teamID uuid.UUID, entries []models.WatchlistEntry) error {
	for _, e := range entries {
		if _, ok := t.s.players[e.PlayerID]; !ok {
			return store.ErrUnknownPlayer
		}
	}
	cp := make([]models.WatchlistEntry, len(entries))
	for i, e := range entries {
		e.TeamID = teamID
		cp[i] = e
	}
	t.s.watchlists[teamID] = cp
	return nil
}

func (t *memTx) InsertScheduleRequest(_ context.Context, leagueID uuid.UUID, _ time.Time) error {
	t.s.schedules = append(t.s.schedules, leagueID)
	return nil
}

var (
	_ store.Store  = (*MemStore)(nil)
	_ store.Tx     = (*memTx)(nil)
	_ store.Outbox = (*MemStore)(nil)
)
