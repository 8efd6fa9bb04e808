package ws

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/broker"
	"github.com/vedran77/hideout/internal/presence"
)

var ErrHubClosed = errors.New("ws hub: closed")

// Hub owns the live connections of this process, keyed by user. A user may
// hold several connections; each receives every event addressed to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	closed  bool

	tracker *presence.Tracker
}

func NewHub(tracker *presence.Tracker) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		tracker: tracker,
	}
}

// Register adds c and marks its user online.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	conns := len(set)
	h.mu.Unlock()

	log.Printf("ws hub: user %s connected (%d conns)", c.userID, conns)
	h.tracker.MarkOnline(c.userID)
	return nil
}

// Unregister removes c; only the first call for a client has any effect.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if ok {
		_, ok = set[c]
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()

	c.shutdown()
	if !ok {
		return
	}
	log.Printf("ws hub: user %s disconnected", c.userID)
	h.tracker.MarkOffline(c.userID)
}

// Deliver pushes an encoded event to its addressees. It never blocks: a
// client whose buffer is full is shut down and cleans itself up.
func (h *Hub) Deliver(env broker.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if env.All {
		for _, set := range h.clients {
			h.push(set, env.Event)
		}
		return
	}
	for _, id := range env.UserIDs {
		h.push(h.clients[id], env.Event)
	}
}

func (h *Hub) push(set map[*Client]struct{}, data []byte) {
	for c := range set {
		if !c.enqueue(data) {
			log.Printf("ws hub: dropping slow client %s", c.userID)
			c.shutdown()
		}
	}
}

// EmitPresence broadcasts a transition to the clients of this hub only.
// Counts are per process, so a transition is not relayed to other
// instances. Called by the tracker with its lock held.
func (h *Hub) EmitPresence(userID uuid.UUID, online bool) {
	data, err := encodeEvent(EventTypePresence, nil, PresencePayload{UserID: userID, Online: online})
	if err != nil {
		log.Printf("ws hub: presence marshal error: %v", err)
		return
	}
	h.Deliver(broker.Envelope{All: true, Event: data})
}

// seedPresence sends c everyone else who is online. The snapshot and the
// enqueue happen under the tracker lock, so no transition can be queued
// ahead of a stale snapshot.
func (h *Hub) seedPresence(c *Client) {
	h.tracker.Snapshot(func(online []uuid.UUID) {
		others := make([]uuid.UUID, 0, len(online))
		for _, id := range online {
			if id != c.userID {
				others = append(others, id)
			}
		}
		data, err := encodeEvent(EventTypeSnapshot, nil, SnapshotPayload{UserIDs: others})
		if err != nil {
			log.Printf("ws hub: snapshot marshal error: %v", err)
			return
		}
		if !c.enqueue(data) {
			log.Printf("ws hub: dropping client %s, buffer full before presence snapshot", c.userID)
			c.shutdown()
		}
	})
}

// Connections reports how many live connections userID has here.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close refuses new clients and shuts down existing ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.shutdown()
	}
}
