package ws

import (
	"sync"

	"github.com/rs/zerolog"

	"chatcore/internal/metrics"
)

// Hub is the process-local room registry. Each room guards its own member
// set; the registry lock only covers creating and removing rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   zerolog.Logger
}

type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		log:   log.With().Str("component", "ws-hub").Logger(),
	}
}

// Join adds c to the room. Joining twice is a no-op.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{members: make(map[*Client]struct{})}
		h.rooms[roomID] = r
	}
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
	h.mu.Unlock()

	c.trackRoom(roomID, true)
}

// Leave removes c from the room, dropping the room once it is empty.
func (h *Hub) Leave(roomID string, c *Client) {
	h.mu.Lock()
	if r, ok := h.rooms[roomID]; ok {
		r.mu.Lock()
		delete(r.members, c)
		empty := len(r.members) == 0
		r.mu.Unlock()
		if empty {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	c.trackRoom(roomID, false)
}

// LeaveAll removes c from every room it joined.
func (h *Hub) LeaveAll(c *Client) {
	for _, roomID := range c.joinedRooms() {
		h.Leave(roomID, c)
	}
}

// InRoom reports whether c has joined the room.
func (h *Hub) InRoom(roomID string, c *Client) bool {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok = r.members[c]
	return ok
}

// RoomSize returns the number of connections joined to the room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Deliver queues f on every member of the room except the connection whose
// id equals exceptID. It never blocks on a slow member: a full queue drops
// the frame for that member. Returns the number of members it was queued to.
func (h *Hub) Deliver(roomID string, f Frame, exceptID string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	targets := make([]*Client, 0, len(r.members))
	for c := range r.members {
		if c.ID() != exceptID {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		if c.isClosed() {
			continue
		}
		ok := c.Enqueue(f)
		metrics.RecordDelivery(f.Event, !ok)
		if !ok {
			h.log.Warn().
				Str("room", roomID).
				Str("event", f.Event).
				Str("user_id", c.Identity().UserID).
				Msg("send queue full, event dropped")
			continue
		}
		delivered++
	}
	return delivered
}
