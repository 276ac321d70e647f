package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
)

// subscription is one connection's membership in one league channel. Until it
// goes live it buffers deliveries so a join's replay is always sent first.
type subscription struct {
	conn     *Connection
	leagueID uuid.UUID

	mu       sync.Mutex
	live     bool
	buffered []models.DraftEvent
	lastSeq  int64
}

// deliver sends ev, or buffers it while the join's replay is in progress.
// Events at or below the last sequence already sent are dropped.
func (s *subscription) deliver(ev models.DraftEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live {
		s.buffered = append(s.buffered, ev)
		return
	}
	s.sendLocked(ev)
}

// activate flushes buffered events newer than floor and switches to live
// delivery. The flush waits for buffer room without holding the lock, so
// deliveries arriving meanwhile are buffered and flushed in a later pass.
func (s *subscription) activate(ctx context.Context, floor int64) error {
	s.mu.Lock()
	if floor > s.lastSeq {
		s.lastSeq = floor
	}
	for len(s.buffered) > 0 {
		batch := s.buffered
		s.buffered = nil
		sort.SliceStable(batch, func(i, j int) bool { return batch[i].Seq < batch[j].Seq })
		pending := batch[:0]
		for _, ev := range batch {
			if ev.Seq > s.lastSeq {
				s.lastSeq = ev.Seq
				pending = append(pending, ev)
			}
		}
		s.mu.Unlock()

		for _, ev := range pending {
			if err := s.conn.replayEvent(ctx, ev); err != nil {
				return err
			}
		}
		s.mu.Lock()
	}
	s.live = true
	s.mu.Unlock()
	return nil
}

func (s *subscription) sendLocked(ev models.DraftEvent) {
	if ev.Seq <= s.lastSeq {
		return
	}
	s.lastSeq = ev.Seq
	s.conn.sendEvent(ev)
}

// registry maps league channels to the local subscriptions joined to them.
type registry struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]map[*Connection]*subscription
	conns    map[*Connection]struct{}
}

func newRegistry() *registry {
	return &registry{
		channels: make(map[uuid.UUID]map[*Connection]*subscription),
		conns:    make(map[*Connection]struct{}),
	}
}

func (r *registry) addConnection(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

// subscribe registers c on the league channel in buffering mode. A repeated
// join replaces the earlier subscription. It returns nil once c has been
// removed, so a connection closed mid-join never rejoins a channel.
func (r *registry) subscribe(c *Connection, leagueID uuid.UUID) *subscription {
	sub := &subscription{conn: c, leagueID: leagueID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return nil
	}
	if r.channels[leagueID] == nil {
		r.channels[leagueID] = make(map[*Connection]*subscription)
	}
	r.channels[leagueID][c] = sub

	log.Debug().
		Str("connection_id", c.ID).
		Str("league_id", leagueID.String()).
		Int("channel_connections", len(r.channels[leagueID])).
		Msg("connection subscribed")
	return sub
}

// unsubscribe removes sub if it is still c's subscription for its league.
func (r *registry) unsubscribe(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sub.conn, sub.leagueID, sub)
}

// removeConnection drops c from every channel.
func (r *registry) removeConnection(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return
	}
	delete(r.conns, c)
	for leagueID := range r.channels {
		r.removeLocked(c, leagueID, nil)
	}
}

func (r *registry) removeLocked(c *Connection, leagueID uuid.UUID, only *subscription) {
	subs, ok := r.channels[leagueID]
	if !ok {
		return
	}
	if cur, ok := subs[c]; ok && (only == nil || cur == only) {
		delete(subs, c)
	}
	// Clean up empty channels
	if len(subs) == 0 {
		delete(r.channels, leagueID)
	}
}

// deliver hands ev to every local subscription of its league.
func (r *registry) deliver(ev models.DraftEvent) int {
	r.mu.RLock()
	subs := make([]*subscription, 0, len(r.channels[ev.LeagueID]))
	for _, sub := range r.channels[ev.LeagueID] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(ev)
	}
	return len(subs)
}

func (r *registry) connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Stats is the /ws/stats payload.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveLeagues    int            `json:"active_leagues"`
	Channels         map[string]int `json:"channels"`
}

func (r *registry) stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalConnections: len(r.conns),
		ActiveLeagues:    len(r.channels),
		Channels:         make(map[string]int, len(r.channels)),
	}
	for leagueID, subs := range r.channels {
		s.Channels[leagueID.String()] = len(subs)
	}
	return s
}
