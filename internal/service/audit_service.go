package service

import (
	"context"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/rs/zerolog"
)

// AuditService persists audit entries. A failed write is logged and never fails the
// operation that produced it.
type AuditService struct {
	repo   domain.AuditRepository
	logger zerolog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo domain.AuditRepository, logger zerolog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger.With().Str("component", "audit_service").Logger(),
	}
}

// LogAudit implements domain.AuditSink
func (s *AuditService) LogAudit(ctx context.Context, entry domain.AuditEntry) {
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Error().
			Err(err).
			Str("action", entry.Action).
			Str("table", entry.TableName).
			Str("record_id", entry.RecordID).
			Msg("Failed to write audit entry")
	}
}

// ListByRecord returns the audit trail of one record, oldest first
func (s *AuditService) ListByRecord(ctx context.Context, tableName, recordID string) ([]*domain.AuditEntry, error) {
	entries, err := s.repo.ListByRecord(ctx, tableName, recordID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return entries, nil
}
