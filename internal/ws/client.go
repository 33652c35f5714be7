package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatcore/internal/security"
)

// ClientOptions bounds a connection's queue and timing.
type ClientOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	MaxFrameSize int64
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = 64 << 10
	}
	return o
}

func (o ClientOptions) pingInterval() time.Duration {
	return o.PongTimeout * 9 / 10
}

// Client is one authenticated realtime connection. Outbound frames go
// through a buffered queue drained by writePump; conn is never written from
// anywhere else.
type Client struct {
	id       string
	identity security.Identity
	conn     *websocket.Conn
	send     chan Frame
	inbox    chan Envelope
	done     chan struct{}
	opts     ClientOptions
	log      zerolog.Logger

	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newClient(conn *websocket.Conn, identity security.Identity, opts ClientOptions, log zerolog.Logger) *Client {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan Frame, opts.SendBuffer),
		inbox:    make(chan Envelope, opts.SendBuffer),
		done:     make(chan struct{}),
		opts:     opts,
		rooms:    make(map[string]struct{}),
		log: log.With().
			Str("conn_id", id).
			Str("user_id", identity.UserID).
			Logger(),
	}
}

// ID uniquely identifies the connection across instances.
func (c *Client) ID() string { return c.id }

func (c *Client) Identity() security.Identity { return c.identity }

// Enqueue queues f without blocking. It reports false when the queue is full
// or the connection is closed.
func (c *Client) Enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Client) sendEvent(event string, data any) {
	f, err := NewFrame(event, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	if !c.Enqueue(f) {
		c.log.Warn().Str("event", event).Msg("send queue full, event dropped")
	}
}

func (c *Client) sendError(msg string) {
	c.sendEvent(EventError, ErrorPayload{Message: msg})
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) trackRoom(roomID string, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.rooms[roomID] = struct{}{}
	} else {
		delete(c.rooms, roomID)
	}
}

func (c *Client) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// writePump drains the send queue and keeps the connection alive with pings
// until the client is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingInterval())
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, f.Bytes); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// processPump runs handle for queued inbound events in arrival order until
// the client is closed. ctx is cancelled on close.
func (c *Client) processPump(handle func(context.Context, *Client, Envelope)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case env := <-c.inbox:
			handle(ctx, c, env)
		}
	}
}

// readPump decodes inbound frames and queues them for processPump until the
// peer goes away or stops answering pings. It never waits on a handler.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.opts.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.sendError("malformed event: expected {\"event\": ..., \"data\": ...}")
			continue
		}
		select {
		case c.inbox <- env:
		default:
			c.sendError(fmt.Sprintf("%s: too many pending events", env.Event))
		}
	}
}
