package websocket

import "github.com/google/uuid"

// EventPublisher pushes events to connected clients
type EventPublisher interface {
	// Publish delivers to every connection of one user
	Publish(userID uuid.UUID, event Event)
	// PublishToStaff delivers to every admin and officer connection
	PublishToStaff(event Event)
}

var _ EventPublisher = (*Hub)(nil)

// Publish implements EventPublisher
func (h *Hub) Publish(userID uuid.UUID, event Event) {
	h.SendToUser(userID, event)
}

// PublishToStaff implements EventPublisher
func (h *Hub) PublishToStaff(event Event) {
	h.SendToStaff(event)
}

// NoOpPublisher discards every event
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(uuid.UUID, Event) {}

func (NoOpPublisher) PublishToStaff(Event) {}
