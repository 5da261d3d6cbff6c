package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lendbook/lendbook-backend/internal/domain"
)

// AuditRepository implements domain.AuditRepository using PostgreSQL
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Create appends an audit entry; old and new values are stored as JSONB
func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	oldValues, err := marshalJSONB(entry.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalJSONB(entry.NewValues)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_id, action, table_name, record_id, old_values, new_values)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuidPtrToPg(entry.ActorID), entry.Action, entry.TableName, entry.RecordID, oldValues, newValues)
	return err
}

// ListByRecord returns the history of one record, oldest first
func (r *AuditRepository) ListByRecord(ctx context.Context, tableName, recordID string) ([]*domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, action, table_name, record_id, old_values, new_values, created_at
		FROM audit_log
		WHERE table_name = $1 AND record_id = $2
		ORDER BY created_at, id`,
		tableName, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e                    domain.AuditEntry
			actorID              pgtype.UUID
			oldValues, newValues []byte
			createdAt            pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.TableName, &e.RecordID, &oldValues, &newValues, &createdAt); err != nil {
			return nil, err
		}
		e.ActorID = pgUUIDToPtr(actorID)
		if len(oldValues) > 0 {
			if err := json.Unmarshal(oldValues, &e.OldValues); err != nil {
				return nil, err
			}
		}
		if len(newValues) > 0 {
			if err := json.Unmarshal(newValues, &e.NewValues); err != nil {
				return nil, err
			}
		}
		e.CreatedAt = createdAt.Time
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// marshalJSONB returns nil for empty maps so the column stays NULL
func marshalJSONB(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return json.Marshal(values)
}
