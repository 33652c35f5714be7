package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatcore/internal/domain"
	"chatcore/internal/metrics"
	"chatcore/internal/security"
)

// RoomAuthorizer resolves a conversation for a requester, failing with
// domain.ErrNotFound or domain.ErrForbidden.
type RoomAuthorizer interface {
	GetConversation(ctx context.Context, requesterID, conversationID string) (*domain.Conversation, error)
}

type ReadMarker interface {
	MarkRead(ctx context.Context, userID, conversationID string) (time.Time, error)
}

type IdentityRecorder interface {
	Remember(ctx context.Context, id security.Identity) error
}

type GatewayOptions struct {
	AllowedOrigins []string
	Client         ClientOptions
}

// Gateway is the realtime endpoint: it authenticates the handshake, runs
// each connection and re-emits durable changes to rooms.
type Gateway struct {
	hub      *Hub
	fanout   Fanout
	verifier security.Verifier
	rooms    RoomAuthorizer
	reads    ReadMarker
	users    IdentityRecorder
	opts     GatewayOptions
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewGateway(
	hub *Hub,
	fanout Fanout,
	verifier security.Verifier,
	rooms RoomAuthorizer,
	reads ReadMarker,
	users IdentityRecorder,
	opts GatewayOptions,
	log zerolog.Logger,
) *Gateway {
	checkOrigin := makeCheckOrigin(opts.AllowedOrigins)
	return &Gateway{
		hub:      hub,
		fanout:   fanout,
		verifier: verifier,
		rooms:    rooms,
		reads:    reads,
		users:    users,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:  checkOrigin,
			Subprotocols: []string{"bearer"},
		},
		log: log.With().Str("component", "ws-gateway").Logger(),
	}
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimRight(strings.TrimSpace(strings.ToLower(origin)), "/")
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts requests without an Origin header (non-browser
// clients) and browser origins on the allow-list. "*" allows any origin.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if _, ok := allowed["*"]; ok {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		_, ok := allowed[fmt.Sprintf("%s://%s", u.Scheme, u.Host)]
		return ok
	}
}

// extractToken reads the bearer token from the Authorization header, the
// "bearer, <token>" subprotocol pair or the token query parameter.
func extractToken(r *http.Request) (string, error) {
	if token, err := security.BearerToken(r.Header.Get("Authorization")); err == nil {
		return token, nil
	}

	if protocolHeader := r.Header.Get("Sec-WebSocket-Protocol"); protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
}

// ServeHTTP authenticates the handshake and serves the connection until it
// closes. Nothing is upgraded without a verified identity.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.upgrader.CheckOrigin(r) {
		metrics.RejectedConnections.WithLabelValues("origin").Inc()
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	token, err := extractToken(r)
	if err != nil {
		metrics.RejectedConnections.WithLabelValues("missing_token").Inc()
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	identity, err := g.verifier.Verify(token)
	if err != nil {
		metrics.RejectedConnections.WithLabelValues("invalid_token").Inc()
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if g.users != nil {
		if err := g.users.Remember(r.Context(), identity); err != nil {
			g.log.Warn().Err(err).Str("user_id", identity.UserID).Msg("record identity")
		}
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := newClient(conn, identity, g.opts.Client, g.log)
	metrics.RecordConnectionOpened()
	c.log.Info().Msg("connected")

	go c.writePump()
	processed := make(chan struct{})
	go func() {
		defer close(processed)
		c.processPump(g.handle)
	}()
	defer func() {
		c.close()
		// No join may land after the rooms are released.
		<-processed
		g.hub.LeaveAll(c)
		metrics.RecordConnectionClosed()
		c.log.Info().Msg("disconnected")
	}()

	c.readPump()
}

func (g *Gateway) handle(ctx context.Context, c *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch env.Event {
	case EventJoinConversation:
		g.join(ctx, c, env)
	case EventLeaveConversation:
		ref, ok := decodeRoomRef(c, env)
		if !ok {
			return
		}
		g.hub.Leave(ref.ConversationID, c)
	case EventMarkAsRead:
		g.markAsRead(ctx, c, env)
	case EventUserTyping, EventUserStoppedTyping:
		g.typing(ctx, c, env)
	default:
		c.sendError(fmt.Sprintf("unknown event %q", env.Event))
	}
}

func decodeRoomRef(c *Client, env Envelope) (RoomRef, bool) {
	var ref RoomRef
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &ref) != nil {
		c.sendError(fmt.Sprintf("%s: invalid payload", env.Event))
		return ref, false
	}
	ref.ConversationID = strings.TrimSpace(ref.ConversationID)
	if ref.ConversationID == "" {
		c.sendError(fmt.Sprintf("%s: conversationId is required", env.Event))
		return ref, false
	}
	return ref, true
}

func (g *Gateway) join(ctx context.Context, c *Client, env Envelope) {
	ref, ok := decodeRoomRef(c, env)
	if !ok {
		return
	}
	if _, err := g.rooms.GetConversation(ctx, c.identity.UserID, ref.ConversationID); err != nil {
		c.sendError(fmt.Sprintf("%s: %s", env.Event, clientMessage(err)))
		return
	}
	g.hub.Join(ref.ConversationID, c)
	metrics.RoomJoins.Inc()
	c.sendEvent(EventJoinedConversation, ref)
}

func (g *Gateway) markAsRead(ctx context.Context, c *Client, env Envelope) {
	ref, ok := decodeRoomRef(c, env)
	if !ok {
		return
	}
	readAt, err := g.reads.MarkRead(ctx, c.identity.UserID, ref.ConversationID)
	if err != nil {
		c.sendError(fmt.Sprintf("%s: %s", env.Event, clientMessage(err)))
		return
	}
	g.EmitMessagesRead(ctx, ref.ConversationID, c.identity.UserID, readAt)
}

func (g *Gateway) typing(ctx context.Context, c *Client, env Envelope) {
	ref, ok := decodeRoomRef(c, env)
	if !ok {
		return
	}
	if !g.hub.InRoom(ref.ConversationID, c) {
		c.sendError(fmt.Sprintf("%s: join the conversation first", env.Event))
		return
	}
	g.emit(ctx, ref.ConversationID, env.Event, TypingPayload{
		ConversationID: ref.ConversationID,
		UserID:         c.identity.UserID,
		UserName:       c.identity.DisplayName,
	}, c.ID())
}

// clientMessage hides internal failures behind a generic message.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, domain.ErrForbidden):
		return "not a participant in this conversation"
	case errors.Is(err, domain.ErrInvalidArgument):
		return err.Error()
	default:
		return "internal error"
	}
}

func (g *Gateway) emit(ctx context.Context, roomID, event string, data any, exceptID string) {
	f, err := NewFrame(event, data)
	if err != nil {
		g.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	if err := g.fanout.Publish(ctx, roomID, f, exceptID); err != nil {
		g.log.Error().Err(err).Str("room", roomID).Str("event", event).Msg("fan-out failed")
	}
}

// EmitNewMessage pushes a persisted message to its room.
func (g *Gateway) EmitNewMessage(ctx context.Context, m *domain.Message) {
	g.emit(ctx, m.ConversationID, EventNewMessage, m, "")
}

func (g *Gateway) EmitMessageUpdated(ctx context.Context, m *domain.Message) {
	g.emit(ctx, m.ConversationID, EventMessageUpdated, m, "")
}

func (g *Gateway) EmitMessageDeleted(ctx context.Context, conversationID, messageID string) {
	g.emit(ctx, conversationID, EventMessageDeleted, MessageDeletedPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
	}, "")
}

func (g *Gateway) EmitMessagesRead(ctx context.Context, conversationID, userID string, readAt time.Time) {
	g.emit(ctx, conversationID, EventMessagesRead, MessagesReadPayload{
		ConversationID: conversationID,
		UserID:         userID,
		ReadAt:         readAt,
	}, "")
}
