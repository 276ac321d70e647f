package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/auth"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Connection represents a WebSocket connection to an authenticated client
type Connection struct {
	ID       string
	Identity auth.Identity

	ws      *websocket.Conn
	send    chan []byte
	gateway *Gateway
	limiter *rate.Limiter

	// Connection metadata
	ConnectedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(g *Gateway, ws *websocket.Conn, id auth.Identity, clock clockwork.Clock) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		Identity:    id,
		ws:          ws,
		send:        make(chan []byte, g.cfg.SendBuffer),
		gateway:     g,
		limiter:     rate.NewLimiter(rate.Limit(g.cfg.InboundRatePerSec), g.cfg.InboundBurst),
		ConnectedAt: clock.Now(),
		done:        make(chan struct{}),
	}
}

// enqueue queues a frame for the writer. A client too slow to drain its
// buffer is disconnected.
func (c *Connection) enqueue(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal frame")
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("user_id", c.Identity.UserID.String()).
			Msg("connection send buffer full, closing connection")
		c.gateway.metrics.RecordSlowConsumer()
		c.close()
	}
}

var errConnectionClosed = errors.New("connection closed")

// enqueueWait queues a frame, waiting for room in the buffer. A client that
// stops reading is dropped by the writer's deadline, which closes done.
func (c *Connection) enqueueWait(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendEvent is the live fan-out path and never blocks the caller.
func (c *Connection) sendEvent(ev models.DraftEvent) {
	c.enqueue(newEventFrame(ev))
}

// replayEvent sends a catch-up event, waiting for the writer to drain.
func (c *Connection) replayEvent(ctx context.Context, ev models.DraftEvent) error {
	return c.enqueueWait(ctx, newEventFrame(ev))
}

func (c *Connection) sendAck(ctx context.Context, ack Ack) {
	if err := c.enqueueWait(ctx, ack); err != nil && !errors.Is(err, errConnectionClosed) {
		log.Debug().Err(err).Str("connection_id", c.ID).Str("ack_id", ack.OriginalEventID).Msg("ack not sent")
	}
}

// close is idempotent; it unregisters the connection and stops both pumps.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.gateway.registry.removeConnection(c)
		c.ws.Close()
		c.gateway.metrics.ConnectionClosed()

		log.Info().
			Str("connection_id", c.ID).
			Str("user_id", c.Identity.UserID.String()).
			Msg("connection closed")
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	cfg := c.gateway.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. Frames
// are handled one at a time so a client sees acks in request order.
func (c *Connection) readPump(ctx context.Context) {
	cfg := c.gateway.cfg
	defer c.close()

	c.ws.SetReadLimit(cfg.MaxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		if !c.limiter.Allow() {
			c.gateway.metrics.RecordRateLimited()
			if f, _ := parseFrame(message); f != nil && f.ID != "" {
				c.sendAck(ctx, newAck(f.ID, false, "rate limit exceeded"))
			}
			continue
		}
		c.gateway.handleMessage(ctx, c, message)
	}
}
