package socket

import (
	"encoding/json"
	"sync"
	"time"

	"scratchpad/internal/pad/service"
	"scratchpad/pkg/logger"
)

const (
	JoinType    = "join-pad"    // client opened a pad
	LeaveType   = "leave-pad"   // client navigated away
	UpdateType  = "pad-update"  // client typed, content snapshot follows
	UpdatedType = "pad-updated" // server fan-out to the rest of the room
)

// Message is the wire envelope for every relay event, both directions.
// PadID plays the part of the room address; LastModified is only set
// on server-sent pad-updated messages.
type Message struct {
	Type         string    `json:"type"`
	PadID        string    `json:"padId,omitempty"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified,omitzero"`
}

// Hub owns room membership and the update fan-out. Rooms are keyed by
// pad id; a session may sit in any number of rooms at once. Membership
// is the hub's only state, content always goes through the store.
type Hub struct {
	Register   chan *Session
	Unregister chan *Session

	store *service.PadStore

	mu       sync.Mutex
	rooms    map[string]map[*Session]bool
	sessions map[*Session]bool
}

func NewHub(store *service.PadStore) *Hub {
	return &Hub{
		Register:   make(chan *Session),
		Unregister: make(chan *Session),
		store:      store,
		rooms:      make(map[string]map[*Session]bool),
		sessions:   make(map[*Session]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case s := <-h.Register:
			h.mu.Lock()
			h.sessions[s] = true
			h.mu.Unlock()
			logger.Sugar.Infof("Session connected: %s", s.ID)

		case s := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				// Membership must never outlive the session.
				for padID := range s.rooms {
					h.leaveLocked(padID, s)
				}
				close(s.Send)
			}
			h.mu.Unlock()
			logger.Sugar.Infof("Session disconnected: %s", s.ID)
		}
	}
}

// Join is idempotent; the room is created on first join.
func (h *Hub) Join(padID string, s *Session) {
	h.mu.Lock()
	if h.rooms[padID] == nil {
		h.rooms[padID] = make(map[*Session]bool)
	}
	h.rooms[padID][s] = true
	s.rooms[padID] = true
	h.mu.Unlock()
	logger.Sugar.Infof("Session %s joined pad: %s", s.ID, padID)
}

// Leave is idempotent; the last member out prunes the room entry.
func (h *Hub) Leave(padID string, s *Session) {
	h.mu.Lock()
	h.leaveLocked(padID, s)
	h.mu.Unlock()
	logger.Sugar.Infof("Session %s left pad: %s", s.ID, padID)
}

func (h *Hub) leaveLocked(padID string, s *Session) {
	if room, ok := h.rooms[padID]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, padID)
		}
	}
	delete(s.rooms, padID)
}

// Members returns the session ids currently in a pad's room. An absent
// room reads as empty.
func (h *Hub) Members(padID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.rooms[padID]))
	for s := range h.rooms[padID] {
		ids = append(ids, s.ID)
	}
	return ids
}

// Publish persists the new snapshot and fans it out to every room
// member except the sender. Excluding the sender is what keeps a
// client from seeing its own edit come back as a foreign update.
// Returns the lastModified the store assigned to this write.
func (h *Hub) Publish(padID, senderID, content string) time.Time {
	// In-memory store update and fan-out happen under one lock so
	// concurrent publishes to the same room are stored and delivered
	// in the same order. Sends are non-blocking, so holding the lock
	// is cheap, and it guarantees we never enqueue on a channel the
	// unregister path has already closed. The durable write waits
	// until after unlock: a slow database must not stall the relay.
	h.mu.Lock()
	pad := h.store.Apply(padID, content)

	payload, err := json.Marshal(Message{
		Type:         UpdatedType,
		PadID:        padID,
		Content:      pad.Content,
		LastModified: pad.LastModified,
	})
	if err != nil {
		h.mu.Unlock()
		logger.Sugar.Errorf("Error marshalling pad-updated for %s: %v", padID, err)
		return pad.LastModified
	}

	var lagging []*Session
	for s := range h.rooms[padID] {
		if s.ID == senderID {
			continue
		}
		select {
		case s.Send <- payload:
		default:
			// Delivery is best-effort: a member whose buffer is full
			// simply misses this update, and a member that far behind
			// is not worth keeping.
			lagging = append(lagging, s)
		}
	}
	h.mu.Unlock()

	for _, s := range lagging {
		logger.Sugar.Warnf("Session %s's send buffer is full. Unregistering.", s.ID)
		h.Unregister <- s
	}

	// Apply marked the pad dirty; a failure here is retried by the
	// flush worker while the room keeps serving the live view.
	h.store.Persist(pad)
	return pad.LastModified
}

// RemovePad evicts a deleted pad's room so stale members stop
// receiving broadcasts for it. Connections stay open; a later
// join-pad would simply auto-vivify a fresh pad.
func (h *Hub) RemovePad(padID string) {
	h.mu.Lock()
	if room, ok := h.rooms[padID]; ok {
		for s := range room {
			delete(s.rooms, padID)
		}
		delete(h.rooms, padID)
	}
	h.mu.Unlock()
	logger.Sugar.Infof("Removed room for deleted pad: %s", padID)
}
