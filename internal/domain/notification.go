package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var ErrNotificationNotFound = newNotFoundError("notification not found")

// NotificationType categorises inbox entries
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationAlert   NotificationType = "alert"
)

// Notification is one inbox entry for a user
type Notification struct {
	ID        int64            `json:"id"`
	UserID    uuid.UUID        `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	SenderID  *uuid.UUID       `json:"senderId,omitempty"`
	LoanID    *int32           `json:"loanId,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NotificationKind identifies a deduplicated notification stream
type NotificationKind string

const (
	NotificationKindOverdue NotificationKind = "loan_overdue"
)

// NotificationKey is the structured identity of a once-per-day notification
type NotificationKey struct {
	LoanID     int32
	NotifyDate time.Time
	Kind       NotificationKind
}

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) (*Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int32) ([]*Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, id int64) error
	// ClaimOnce records key and reports true only for the first caller
	ClaimOnce(ctx context.Context, key NotificationKey) (bool, error)
}

// NotificationSink delivers a notification to a user. Delivery failures are logged by the
// implementation and never surface to the caller.
type NotificationSink interface {
	SendNotification(ctx context.Context, n Notification)
}
