package websocket

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Hub routes events to live connections. Each user may hold several connections, and
// connections opened by admins or officers are also indexed for staff broadcasts.
type Hub struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[string]Subscriber
	staff  map[string]Subscriber
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		byUser: make(map[uuid.UUID]map[string]Subscriber),
		staff:  make(map[string]Subscriber),
	}
}

// Register indexes a subscriber under its user and, for staff, the staff set
func (h *Hub) Register(s Subscriber) {
	identity := s.Identity()

	h.mu.Lock()
	conns := h.byUser[identity.UserID]
	if conns == nil {
		conns = make(map[string]Subscriber)
		h.byUser[identity.UserID] = conns
	}
	conns[s.ID()] = s
	if identity.Role.IsStaff() {
		h.staff[s.ID()] = s
	}
	h.mu.Unlock()

	log.Debug().
		Str("user_id", identity.UserID.String()).
		Str("role", string(identity.Role)).
		Str("client_id", s.ID()).
		Msg("WebSocket client registered")
}

// Unregister drops a subscriber. Unknown subscribers are ignored.
func (h *Hub) Unregister(s Subscriber) {
	userID := s.Identity().UserID

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.staff, s.ID())
	conns, ok := h.byUser[userID]
	if !ok {
		return
	}
	if _, ok := conns[s.ID()]; !ok {
		return
	}
	delete(conns, s.ID())
	if len(conns) == 0 {
		delete(h.byUser, userID)
	}

	log.Debug().
		Str("user_id", userID.String()).
		Str("client_id", s.ID()).
		Msg("WebSocket client unregistered")
}

// SendToUser delivers an event to every connection of one user
func (h *Hub) SendToUser(userID uuid.UUID, event Event) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.byUser[userID]))
	for _, s := range h.byUser[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

// SendToStaff delivers an event to every admin and officer connection
func (h *Hub) SendToStaff(event Event) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.staff))
	for _, s := range h.staff {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

// deliver encodes once and hands the frame to each subscriber. A subscriber whose
// buffer is full is closed; its connection loop unregisters it.
func (h *Hub) deliver(targets []Subscriber, event Event) {
	if len(targets) == 0 {
		return
	}
	data, err := event.Encode()
	if err != nil {
		log.Error().Err(err).Str("event_type", event.Type).Msg("Failed to encode WebSocket event")
		return
	}

	for _, s := range targets {
		err := s.Send(data)
		switch {
		case err == nil, errors.Is(err, ErrClientClosed):
		case errors.Is(err, ErrSlowConsumer):
			log.Warn().
				Str("client_id", s.ID()).
				Str("event_type", event.Type).
				Msg("Dropping slow WebSocket client")
			_ = s.Close()
		default:
			log.Debug().Err(err).Str("client_id", s.ID()).Msg("WebSocket send failed")
		}
	}
}

// ClientCount returns the number of live connections for a user
func (h *Hub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// StaffCount returns the number of live staff connections
func (h *Hub) StaffCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.staff)
}

// TotalClientCount returns the number of live connections
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.byUser {
		total += len(conns)
	}
	return total
}
