// Package hub fans events out to live connections, grouped into
// per-project rooms. It owns room membership only; it never closes
// adapter-owned transports.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamforge/realtime/internal/domain"
)

// Frame is a marshaled wire payload.
type Frame []byte

// Conn is a live transport endpoint. Owned by the adapter; the
// adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats. Delivery is fire-and-forget:
// dropped receivers are counted, never retried.
type PublishResult struct {
	SentTo  int
	Dropped int
}

type connState struct {
	user  domain.UserID
	rooms map[domain.ProjectID]struct{}
}

type Hub struct {
	mu     sync.RWMutex
	rooms  map[domain.ProjectID]map[Conn]struct{}
	conns  map[Conn]*connState
	byUser map[domain.UserID]map[Conn]struct{}
}

func New() *Hub {
	return &Hub{
		rooms:  make(map[domain.ProjectID]map[Conn]struct{}),
		conns:  make(map[Conn]*connState),
		byUser: make(map[domain.UserID]map[Conn]struct{}),
	}
}

// BindUser associates a connection with its authenticated user id.
// Rebinding to a new id moves the connection between user buckets.
func (h *Hub) BindUser(c Conn, uid domain.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.state(c)
	if st.user == uid {
		return
	}
	if st.user != "" {
		h.unindexUser(c, st.user)
	}
	st.user = uid
	if _, ok := h.byUser[uid]; !ok {
		h.byUser[uid] = make(map[Conn]struct{})
	}
	h.byUser[uid][c] = struct{}{}
	log.Info().Str("module", "hub").Str("user", string(uid)).Msg("bound user")
}

// UserOf returns the user id bound to the connection, if any.
func (h *Hub) UserOf(c Conn) (domain.UserID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.conns[c]
	if !ok || st.user == "" {
		return "", false
	}
	return st.user, true
}

// Join adds the connection to the project room. Idempotent.
func (h *Hub) Join(c Conn, room domain.ProjectID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.state(c).rooms[room] = struct{}{}
	log.Info().Str("module", "hub").Str("room", string(room)).Msg("joined room")
}

// Leave removes the connection from the project room. Idempotent,
// no error if absent.
func (h *Hub) Leave(c Conn, room domain.ProjectID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// Rooms returns the rooms the connection has joined.
func (h *Hub) Rooms(c Conn) []domain.ProjectID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.conns[c]
	if !ok {
		return nil
	}
	out := make([]domain.ProjectID, 0, len(st.rooms))
	for r := range st.rooms {
		out = append(out, r)
	}
	return out
}

// RoomSize returns the number of connections joined to the room.
func (h *Hub) RoomSize(room domain.ProjectID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast marshals payload once and delivers it to every connection
// in the room, skipping exclude if non-nil.
func (h *Hub) Broadcast(room domain.ProjectID, payload any, exclude Conn) PublishResult {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("broadcast marshal")
		return PublishResult{}
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c == exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	res := PublishResult{}
	for _, c := range targets {
		if err := c.TrySend(Frame(data)); err != nil {
			res.Dropped++
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "hub").Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast result")
	return res
}

// SendTo delivers payload to every live connection bound to the user.
// Used for events that must reach a specific user rather than a room.
func (h *Hub) SendTo(uid domain.UserID, payload any) PublishResult {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("sendto marshal")
		return PublishResult{}
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.byUser[uid]))
	for c := range h.byUser[uid] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	res := PublishResult{}
	for _, c := range targets {
		if err := c.TrySend(Frame(data)); err != nil {
			res.Dropped++
			continue
		}
		res.SentTo++
	}
	return res
}

// Drop removes the connection from every room and user bucket,
// returning the rooms it was in so the caller can reconcile call
// state. Safe to call for a connection the hub never saw.
func (h *Hub) Drop(c Conn) []domain.ProjectID {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.conns[c]
	if !ok {
		return nil
	}
	left := make([]domain.ProjectID, 0, len(st.rooms))
	for r := range st.rooms {
		left = append(left, r)
	}
	for _, r := range left {
		h.leaveLocked(c, r)
	}
	if st.user != "" {
		h.unindexUser(c, st.user)
	}
	delete(h.conns, c)
	log.Info().Str("module", "hub").Int("rooms_left", len(left)).Msg("dropped connection")
	return left
}

func (h *Hub) state(c Conn) *connState {
	st, ok := h.conns[c]
	if !ok {
		st = &connState{rooms: make(map[domain.ProjectID]struct{})}
		h.conns[c] = st
	}
	return st
}

func (h *Hub) leaveLocked(c Conn, room domain.ProjectID) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if st, ok := h.conns[c]; ok {
		delete(st.rooms, room)
	}
}

func (h *Hub) unindexUser(c Conn, uid domain.UserID) {
	if set, ok := h.byUser[uid]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, uid)
		}
	}
}
