package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/lendbook/lendbook-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OverdueNotifier alerts staff about loans with overdue installments, at most once per
// loan per day
type OverdueNotifier struct {
	loanRepo         domain.LoanRepository
	installmentRepo  domain.InstallmentRepository
	userRepo         domain.UserRepository
	notificationRepo domain.NotificationRepository
	notifier         domain.NotificationSink
	eventPublisher   websocket.EventPublisher
	scale            int32
	logger           zerolog.Logger
}

// NewOverdueNotifier creates a new OverdueNotifier
func NewOverdueNotifier(
	loanRepo domain.LoanRepository,
	installmentRepo domain.InstallmentRepository,
	userRepo domain.UserRepository,
	notificationRepo domain.NotificationRepository,
	notifier domain.NotificationSink,
	scale int32,
	logger zerolog.Logger,
) *OverdueNotifier {
	return &OverdueNotifier{
		loanRepo:         loanRepo,
		installmentRepo:  installmentRepo,
		userRepo:         userRepo,
		notificationRepo: notificationRepo,
		notifier:         notifier,
		scale:            scale,
		logger:           logger.With().Str("component", "overdue_notifier").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (n *OverdueNotifier) SetEventPublisher(publisher websocket.EventPublisher) {
	n.eventPublisher = publisher
}

// overdueSummary is the payload of a loan.overdue event
type overdueSummary struct {
	LoanID        int32           `json:"loanId"`
	CustomerID    uuid.UUID       `json:"customerId"`
	OverdueCount  int             `json:"overdueCount"`
	OverdueAmount decimal.Decimal `json:"overdueAmount"`
	OldestDueDate string          `json:"oldestDueDate"`
	NotifyDate    string          `json:"notifyDate"`
}

// NotifyOverdue alerts every admin and the assigned officer of each active loan holding an
// overdue installment. A loan already notified for asOf is skipped. A zero asOf means today.
func (n *OverdueNotifier) NotifyOverdue(ctx context.Context, asOf time.Time) (*domain.OverdueNotifyResult, error) {
	if asOf.IsZero() {
		asOf = util.Today()
	}
	asOf = util.DateOnly(asOf)

	loanIDs, err := n.installmentRepo.ListLoanIDsWithOverdue(ctx)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	admins, err := n.userRepo.ListByRoles(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, domain.StorageError(err)
	}

	result := &domain.OverdueNotifyResult{AsOf: asOf}
	for _, loanID := range loanIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.LoansOverdue++

		sent, err := n.notifyLoan(ctx, loanID, asOf, admins)
		if err != nil {
			result.Errors++
			n.logger.Error().Err(err).Int32("loan_id", loanID).Msg("Failed to notify overdue loan")
			continue
		}
		if sent == 0 {
			result.Skipped++
			continue
		}
		result.Notifications += sent
	}

	n.logger.Info().
		Str("as_of", util.FormatDate(asOf)).
		Int("loans_overdue", result.LoansOverdue).
		Int("notifications", result.Notifications).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("Overdue notification run complete")
	return result, nil
}

func (n *OverdueNotifier) notifyLoan(ctx context.Context, loanID int32, asOf time.Time, admins []*domain.User) (int, error) {
	loan, err := n.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return 0, err
	}
	installments, err := n.installmentRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return 0, err
	}

	summary := overdueSummary{
		LoanID:     loan.ID,
		CustomerID: loan.CustomerID,
		NotifyDate: util.FormatDate(asOf),
	}
	for _, inst := range installments {
		if inst.Status != domain.InstallmentOverdue {
			continue
		}
		if summary.OverdueCount == 0 {
			summary.OldestDueDate = util.FormatDate(inst.DueDate)
		}
		summary.OverdueCount++
		summary.OverdueAmount = summary.OverdueAmount.Add(inst.RemainingDue())
	}

	recipients := make([]uuid.UUID, 0, len(admins)+1)
	seen := make(map[uuid.UUID]bool, len(admins)+1)
	for _, admin := range admins {
		if !seen[admin.ID] {
			seen[admin.ID] = true
			recipients = append(recipients, admin.ID)
		}
	}
	if loan.OfficerID != nil && !seen[*loan.OfficerID] {
		recipients = append(recipients, *loan.OfficerID)
	}

	claimed, err := n.notificationRepo.ClaimOnce(ctx, domain.NotificationKey{
		LoanID:     loanID,
		NotifyDate: asOf,
		Kind:       domain.NotificationKindOverdue,
	})
	if err != nil {
		return 0, err
	}
	if !claimed {
		return 0, nil
	}

	id := loan.ID
	message := fmt.Sprintf("Loan #%d has %d overdue installment(s) totalling %s, oldest due %s.",
		loan.ID, summary.OverdueCount, summary.OverdueAmount.StringFixed(n.scale), summary.OldestDueDate)
	for _, userID := range recipients {
		n.notifier.SendNotification(ctx, domain.Notification{
			UserID:  userID,
			Title:   "Loan overdue",
			Message: message,
			Type:    domain.NotificationAlert,
			LoanID:  &id,
		})
		if n.eventPublisher != nil {
			n.eventPublisher.Publish(userID, websocket.LoanOverdue(summary))
		}
	}
	return len(recipients), nil
}
