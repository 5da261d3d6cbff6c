package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lendbook/lendbook-backend/internal/domain"
)

const notificationColumns = `id, user_id, title, message, type, sender_id, loan_id, is_read, created_at`

// NotificationRepository implements domain.NotificationRepository using PostgreSQL
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create stores a notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	var loanID pgtype.Int4
	if n.LoanID != nil {
		loanID = pgtype.Int4{Int32: *n.LoanID, Valid: true}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, message, type, sender_id, loan_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		uuidToPg(n.UserID), n.Title, n.Message, string(n.Type), uuidPtrToPg(n.SenderID), loanID)
	return scanNotification(row)
}

// ListByUser returns a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int32) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR is_read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		uuidToPg(userID), unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead marks one of the user's notifications as read
func (r *NotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2`,
		id, uuidToPg(userID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// ClaimOnce inserts the key into notification_log. Only the first insert for a key
// affects a row, every later one hits the unique constraint and is ignored.
func (r *NotificationRepository) ClaimOnce(ctx context.Context, key domain.NotificationKey) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notification_log (loan_id, notify_date, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (loan_id, notify_date, kind) DO NOTHING`,
		key.LoanID, timeToPgDate(key.NotifyDate), string(key.Kind))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n         domain.Notification
		userID    pgtype.UUID
		senderID  pgtype.UUID
		loanID    pgtype.Int4
		nType     string
		createdAt pgtype.Timestamptz
	)
	err := row.Scan(&n.ID, &userID, &n.Title, &n.Message, &nType, &senderID, &loanID, &n.IsRead, &createdAt)
	if err != nil {
		return nil, err
	}
	n.UserID = userID.Bytes
	n.SenderID = pgUUIDToPtr(senderID)
	if loanID.Valid {
		id := loanID.Int32
		n.LoanID = &id
	}
	n.Type = domain.NotificationType(nType)
	n.CreatedAt = createdAt.Time
	return &n, nil
}
