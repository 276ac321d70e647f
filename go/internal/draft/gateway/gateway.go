// Package gateway is the realtime edge of the draft engine. It authenticates
// websocket clients, joins them to league channels, replays missed events,
// relays picks to the lifecycle controller, and fans out committed events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/auth"
	"github.com/mcdev12/draftlobby/go/internal/draft/eventlog"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mcdev12/draftlobby/go/internal/draft/gateway"

const msgInternalError = "internal error"

// Lifecycle is the part of the lifecycle controller clients can drive.
type Lifecycle interface {
	SubmitPick(ctx context.Context, leagueID, teamID, playerID uuid.UUID) error
	RecordJoin(ctx context.Context, leagueID, userID uuid.UUID, username string) error
}

// Membership resolves a user's team in a league.
type Membership interface {
	TeamForUser(ctx context.Context, r store.Reader, leagueID, userID uuid.UUID) (*models.FantasyTeam, error)
}

// Config holds configuration for WebSocket connections
type Config struct {
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageBytes   int64
	ReadBufferSize    int
	WriteBufferSize   int
	SendBuffer        int
	InboundRatePerSec float64
	InboundBurst      int
	// TransitionTimeout bounds server-side work started by a client frame.
	TransitionTimeout time.Duration
	CheckOrigin       func(r *http.Request) bool
}

// DefaultConfig returns default WebSocket configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageBytes:   4096,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBuffer:        256,
		InboundRatePerSec: 10,
		InboundBurst:      20,
		TransitionTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Gateway owns the local channel registry. Construct with New, then Start;
// Stop disconnects every client.
type Gateway struct {
	cfg        Config
	store      store.Reader
	eventLog   *eventlog.Log
	lifecycle  Lifecycle
	membership Membership
	tokens     auth.TokenResolver
	clock      clockwork.Clock
	metrics    MetricsCollector
	tracer     trace.Tracer

	registry *registry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithMetrics(m MetricsCollector) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

func New(
	cfg Config,
	st store.Reader,
	eventLog *eventlog.Log,
	lifecycle Lifecycle,
	membership Membership,
	tokens auth.TokenResolver,
	clock clockwork.Clock,
	opts ...Option,
) *Gateway {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.TransitionTimeout <= 0 {
		cfg.TransitionTimeout = def.TransitionTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.InboundRatePerSec <= 0 {
		cfg.InboundRatePerSec = def.InboundRatePerSec
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = def.InboundBurst
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = def.CheckOrigin
	}

	g := &Gateway{
		cfg:        cfg,
		store:      st,
		eventLog:   eventLog,
		lifecycle:  lifecycle,
		membership: membership,
		tokens:     tokens,
		clock:      clock,
		metrics:    NoOpMetricsCollector{},
		tracer:     otel.Tracer(tracerName),
		registry:   newRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start makes the gateway accept connections. Connections are tied to ctx.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return errors.New("gateway already started")
	}
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.started = true
	log.Info().Msg("draft gateway started")
	return nil
}

// Stop disconnects every client and waits for their pumps to exit.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return
	}
	g.started = false
	g.cancel()
	g.mu.Unlock()

	for _, c := range g.registry.connections() {
		c.close()
	}
	g.wg.Wait()
	log.Info().Msg("draft gateway stopped")
}

func (g *Gateway) running() (context.Context, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx, g.started
}

// Deliver fans a committed event out to local subscribers of its league. It
// is the backplane handler.
func (g *Gateway) Deliver(_ context.Context, env events.Envelope) {
	n := g.registry.deliver(env.DraftEvent())
	g.metrics.RecordBroadcast(string(env.Name), n)
}

// Stats returns a snapshot of local connections.
func (g *Gateway) Stats() Stats {
	return g.registry.stats()
}

// serve registers an upgraded connection and runs its pumps.
func (g *Gateway) serve(ctx context.Context, ws *websocket.Conn, id auth.Identity) *Connection {
	c := newConnection(g, ws, id, g.clock)
	g.registry.addConnection(c)
	g.metrics.ConnectionOpened()

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		c.writePump()
	}()
	go func() {
		defer g.wg.Done()
		c.readPump(ctx)
	}()

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", id.UserID.String()).
		Msg("WebSocket connection established")
	return c
}

// handleMessage dispatches one inbound frame and acks it.
func (g *Gateway) handleMessage(ctx context.Context, c *Connection, raw []byte) {
	f, err := parseFrame(raw)
	if err != nil {
		if f != nil && f.ID != "" {
			c.sendAck(ctx, newAck(f.ID, false, err.Error()))
		}
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("rejected malformed frame")
		return
	}

	// Work started by a client outlives the client's connection.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.TransitionTimeout)
	defer cancel()

	switch f.Type {
	case MessageJoinDraftLobby:
		var req JoinRequest
		if err := decodeData(f, &req); err != nil {
			c.sendAck(ctx, newAck(f.ID, false, err.Error()))
			return
		}
		ack := g.join(opCtx, c, f.ID, req)
		c.sendAck(ctx, ack)
		if ack.Success {
			g.announceJoin(opCtx, c, req.LeagueID)
		}

	case MessagePickPlayer:
		var req PickRequest
		if err := decodeData(f, &req); err == nil {
			err = req.validate()
		}
		if err != nil {
			c.sendAck(ctx, newAck(f.ID, false, err.Error()))
			return
		}
		c.sendAck(ctx, g.pick(opCtx, c, f.ID, req))

	default:
		c.sendAck(ctx, newAck(f.ID, false, fmt.Sprintf("unknown message type %q", f.Type)))
	}
}

// join subscribes c to a league channel. Replay is sent before any live event
// and before the ack.
func (g *Gateway) join(ctx context.Context, c *Connection, frameID string, req JoinRequest) (ack Ack) {
	ctx, span := g.tracer.Start(ctx, "gateway.join", trace.WithAttributes(
		attribute.String("league_id", req.LeagueID.String()),
		attribute.String("user_id", c.Identity.UserID.String()),
	))
	defer func() {
		if !ack.Success {
			span.SetStatus(codes.Error, "join failed")
		}
		g.metrics.RecordJoin(ack.Success)
		span.End()
	}()

	logger := log.With().
		Str("connection_id", c.ID).
		Str("league_id", req.LeagueID.String()).
		Str("user_id", c.Identity.UserID.String()).
		Logger()

	if _, err := g.membership.TeamForUser(ctx, g.store, req.LeagueID, c.Identity.UserID); err != nil {
		if errors.Is(err, leagues.ErrNotMember) {
			return newAck(frameID, false, fmt.Sprintf("User %s is not a member of league %s", c.Identity.UserID, req.LeagueID))
		}
		logger.Error().Err(err).Msg("membership check failed")
		return newAck(frameID, false, msgInternalError)
	}

	sub := g.registry.subscribe(c, req.LeagueID)
	if sub == nil {
		return newAck(frameID, false, errConnectionClosed.Error())
	}

	missed, err := g.eventLog.FindSince(ctx, g.store, req.LeagueID, req.Cursor, true)
	if err != nil {
		g.registry.unsubscribe(sub)
		if errors.Is(err, drafterr.ErrInvalidCatchupToken) {
			return newAck(frameID, false, fmt.Sprintf("%s is not a valid server-side event ID for league %s", *req.Cursor.AfterID(), req.LeagueID))
		}
		logger.Error().Err(err).Msg("catch-up query failed")
		return newAck(frameID, false, msgInternalError)
	}

	floor, err := g.replayFloor(ctx, req.Cursor, missed)
	if err != nil {
		g.registry.unsubscribe(sub)
		logger.Error().Err(err).Msg("catch-up cursor lookup failed")
		return newAck(frameID, false, msgInternalError)
	}
	// Replay is paced by the client's reads, not by the transition timeout.
	replayCtx := context.WithoutCancel(ctx)
	for _, ev := range missed {
		if err := c.replayEvent(replayCtx, ev); err != nil {
			g.registry.unsubscribe(sub)
			logger.Debug().Err(err).Msg("catch-up replay interrupted")
			return newAck(frameID, false, err.Error())
		}
	}
	if err := sub.activate(replayCtx, floor); err != nil {
		g.registry.unsubscribe(sub)
		logger.Debug().Err(err).Msg("catch-up replay interrupted")
		return newAck(frameID, false, err.Error())
	}

	logger.Debug().Int("replayed", len(missed)).Msg("joined draft lobby")
	return newAck(frameID, true, "")
}

// announceJoin tells the lobby a user joined. The join itself has already
// succeeded, so a failure here only loses the notice.
func (g *Gateway) announceJoin(ctx context.Context, c *Connection, leagueID uuid.UUID) {
	if err := g.lifecycle.RecordJoin(ctx, leagueID, c.Identity.UserID, c.Identity.Username); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("league_id", leagueID.String()).
			Msg("failed to record join")
	}
}

// replayFloor is the highest sequence the client already has once the replay
// is sent. Buffered live events at or below it are duplicates.
func (g *Gateway) replayFloor(ctx context.Context, cursor eventlog.Cursor, replayed []models.DraftEvent) (int64, error) {
	if n := len(replayed); n > 0 {
		return replayed[n-1].Seq, nil
	}
	if id := cursor.AfterID(); id != nil {
		ev, err := g.store.GetEvent(ctx, *id)
		if err != nil {
			return 0, err
		}
		return ev.Seq, nil
	}
	return 0, nil
}

// pick submits a client's pick for its own team.
func (g *Gateway) pick(ctx context.Context, c *Connection, frameID string, req PickRequest) (ack Ack) {
	ctx, span := g.tracer.Start(ctx, "gateway.pick", trace.WithAttributes(
		attribute.String("league_id", req.LeagueID.String()),
		attribute.String("player_id", req.PlayerID.String()),
	))
	result := "ok"
	defer func() {
		if !ack.Success {
			span.SetStatus(codes.Error, result)
		}
		g.metrics.RecordPick(result)
		span.End()
	}()

	logger := log.With().
		Str("connection_id", c.ID).
		Str("league_id", req.LeagueID.String()).
		Str("player_id", req.PlayerID.String()).
		Logger()

	team, err := g.membership.TeamForUser(ctx, g.store, req.LeagueID, c.Identity.UserID)
	if err != nil {
		if errors.Is(err, leagues.ErrNotMember) {
			result = "rejected"
			return newAck(frameID, false, fmt.Sprintf("User %s is not a member of league %s", c.Identity.UserID, req.LeagueID))
		}
		result = "error"
		logger.Error().Err(err).Msg("membership check failed")
		return newAck(frameID, false, msgInternalError)
	}

	err = g.lifecycle.SubmitPick(ctx, req.LeagueID, team.ID, req.PlayerID)
	if reason, ok := drafterr.IsRejected(err); ok {
		result = "rejected"
		return newAck(frameID, false, fmt.Sprintf("Could not draft player %s. %s", req.PlayerID, reason))
	}
	if drafterr.IsInvalidState(err) {
		result = "rejected"
		return newAck(frameID, false, fmt.Sprintf("Could not draft player %s. draft is not in progress", req.PlayerID))
	}
	if err != nil {
		result = "error"
		logger.Error().Err(err).Str("team_id", team.ID.String()).Msg("pick failed")
		return newAck(frameID, false, msgInternalError)
	}
	return newAck(frameID, true, "")
}
