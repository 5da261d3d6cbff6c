package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditLoanCreated       = "loan.created"
	AuditLoanStatusChanged = "loan.status_changed"
	AuditLoanRateChanged   = "loan.rate_changed"
	AuditPaymentRecorded   = "payment.recorded"
	AuditAccrualRun        = "accrual.run"
	AuditUserRoleChanged   = "user.role_changed"
	AuditTableLoans        = "loans"
	AuditTableLoanPayments = "loan_payments"
	AuditTableInstallments = "loan_installments"
	AuditTableUsers        = "users"
)

// AuditEntry is one immutable audit log record. OldValues and NewValues are serialised as JSON.
type AuditEntry struct {
	ID        int64          `json:"id"`
	ActorID   *uuid.UUID     `json:"actorId,omitempty"`
	Action    string         `json:"action"`
	TableName string         `json:"tableName"`
	RecordID  string         `json:"recordId"`
	OldValues map[string]any `json:"oldValues,omitempty"`
	NewValues map[string]any `json:"newValues,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type AuditRepository interface {
	Create(ctx context.Context, entry *AuditEntry) error
	ListByRecord(ctx context.Context, tableName, recordID string) ([]*AuditEntry, error)
}

// AuditSink records audit entries. Implementations log and swallow their own failures;
// auditing never fails the operation being audited.
type AuditSink interface {
	LogAudit(ctx context.Context, entry AuditEntry)
}
