package websocket

import (
	"encoding/json"
	"time"
)

// EntityType names the kind of record an event describes
type EntityType string

const (
	EntityLoan         EntityType = "loan"
	EntityPayment      EntityType = "payment"
	EntityNotification EntityType = "notification"
	EntityAccrual      EntityType = "accrual"
)

// Event is one message pushed to connected clients
type Event struct {
	Type      string     `json:"type"` // "<entity>.<action>", e.g. "payment.recorded"
	Entity    EntityType `json:"entity"`
	Payload   any        `json:"payload"`
	Timestamp time.Time  `json:"timestamp"`
}

func newEvent(entity EntityType, action string, payload any) Event {
	return Event{
		Type:      string(entity) + "." + action,
		Entity:    entity,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Encode renders the event as a JSON text frame
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// NotificationCreated announces a new inbox entry
func NotificationCreated(payload any) Event {
	return newEvent(EntityNotification, "created", payload)
}

// PaymentRecorded announces a stored repayment and its allocation
func PaymentRecorded(payload any) Event {
	return newEvent(EntityPayment, "recorded", payload)
}

// LoanOverdue announces that a loan has unpaid installments past due
func LoanOverdue(payload any) Event {
	return newEvent(EntityLoan, "overdue", payload)
}

// LoanStatusChanged announces a lifecycle transition
func LoanStatusChanged(payload any) Event {
	return newEvent(EntityLoan, "status_changed", payload)
}

// AccrualCompleted announces the end of an accrual run to staff dashboards
func AccrualCompleted(payload any) Event {
	return newEvent(EntityAccrual, "completed", payload)
}
