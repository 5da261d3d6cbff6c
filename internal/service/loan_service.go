package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/lendbook/lendbook-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LoanService handles the loan lifecycle and owns schedule persistence
type LoanService struct {
	tx              domain.Transactor
	loanRepo        domain.LoanRepository
	installmentRepo domain.InstallmentRepository
	paymentRepo     domain.PaymentRepository
	userRepo        domain.UserRepository
	audit           domain.AuditSink
	eventPublisher  websocket.EventPublisher
	scale           int32
	logger          zerolog.Logger
}

// NewLoanService creates a new LoanService
func NewLoanService(
	tx domain.Transactor,
	loanRepo domain.LoanRepository,
	installmentRepo domain.InstallmentRepository,
	paymentRepo domain.PaymentRepository,
	userRepo domain.UserRepository,
	audit domain.AuditSink,
	scale int32,
	logger zerolog.Logger,
) *LoanService {
	return &LoanService{
		tx:              tx,
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
		userRepo:        userRepo,
		audit:           audit,
		scale:           scale,
		logger:          logger.With().Str("component", "loan_service").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *LoanService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *LoanService) publishEvent(userID uuid.UUID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(userID, event)
	}
}

// CreateLoanInput contains input for creating a loan
type CreateLoanInput struct {
	CustomerID      uuid.UUID
	OfficerID       *uuid.UUID
	Principal       decimal.Decimal
	InterestRate    decimal.Decimal
	Term            int32
	TermUnit        domain.TermUnit
	ApplicationDate time.Time
	Purpose         *string
}

// CreateLoan validates the application, stores it as pending and generates its schedule
// from the application date, all in one transaction
func (s *LoanService) CreateLoan(ctx context.Context, actor *domain.User, input CreateLoanInput) (*domain.Loan, []*domain.Installment, error) {
	if actor == nil {
		return nil, nil, domain.ErrActorRequired
	}
	if input.ApplicationDate.IsZero() {
		input.ApplicationDate = util.Today()
	}
	if input.OfficerID == nil && actor.Role == domain.RoleOfficer {
		input.OfficerID = &actor.ID
	}
	if input.Purpose != nil {
		purpose := strings.TrimSpace(*input.Purpose)
		input.Purpose = &purpose
	}

	loan := &domain.Loan{
		CustomerID:      input.CustomerID,
		OfficerID:       input.OfficerID,
		Principal:       util.RoundMoney(input.Principal, s.scale),
		InterestRate:    input.InterestRate,
		Term:            input.Term,
		TermUnit:        input.TermUnit,
		ApplicationDate: util.DateOnly(input.ApplicationDate),
		Status:          domain.LoanStatusPending,
		Purpose:         input.Purpose,
	}
	if err := loan.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.checkParties(ctx, loan); err != nil {
		return nil, nil, err
	}

	var (
		created  *domain.Loan
		schedule []*domain.Installment
	)
	err := s.tx.WithinTx(ctx, func(tx any) error {
		var err error
		created, err = s.loanRepo.CreateTx(ctx, tx, loan)
		if err != nil {
			return err
		}
		schedule, err = s.replaceScheduleTx(ctx, tx, created)
		return err
	})
	if err != nil {
		return nil, nil, domain.StorageError(err)
	}

	s.logger.Info().
		Int32("loan_id", created.ID).
		Str("principal", created.Principal.String()).
		Int32("term", created.Term).
		Str("term_unit", string(created.TermUnit)).
		Msg("Loan created")

	s.audit.LogAudit(ctx, domain.AuditEntry{
		ActorID:   &actor.ID,
		Action:    domain.AuditLoanCreated,
		TableName: domain.AuditTableLoans,
		RecordID:  loanRecordID(created.ID),
		NewValues: loanAuditValues(created),
	})
	return created, schedule, nil
}

// checkParties makes sure the customer exists and the officer, when set, is staff
func (s *LoanService) checkParties(ctx context.Context, loan *domain.Loan) error {
	if _, err := s.userRepo.GetByID(ctx, loan.CustomerID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrInvalidCustomer
		}
		return domain.StorageError(err)
	}
	if loan.OfficerID == nil {
		return nil
	}
	officer, err := s.userRepo.GetByID(ctx, *loan.OfficerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrInvalidOfficer
		}
		return domain.StorageError(err)
	}
	if !officer.Role.IsStaff() {
		return domain.ErrInvalidOfficer
	}
	return nil
}

// GetLoan retrieves a loan by ID
func (s *LoanService) GetLoan(ctx context.Context, id int32) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return loan, nil
}

// ListLoans retrieves loans matching the filter
func (s *LoanService) ListLoans(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error) {
	loans, err := s.loanRepo.List(ctx, filter)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return loans, nil
}

// GetSchedule returns a loan's installments ordered by due date
func (s *LoanService) GetSchedule(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		return nil, domain.StorageError(err)
	}
	installments, err := s.installmentRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return installments, nil
}

// ApproveLoan moves a pending loan to approved
func (s *LoanService) ApproveLoan(ctx context.Context, actorID uuid.UUID, id int32) (*domain.Loan, error) {
	return s.transition(ctx, actorID, id, domain.LoanStatusApproved, nil)
}

// RejectLoan moves a pending loan to rejected
func (s *LoanService) RejectLoan(ctx context.Context, actorID uuid.UUID, id int32) (*domain.Loan, error) {
	return s.transition(ctx, actorID, id, domain.LoanStatusRejected, nil)
}

// DisburseLoan activates an approved loan and re-anchors its schedule on the
// disbursement date. A zero date means today.
func (s *LoanService) DisburseLoan(ctx context.Context, actorID uuid.UUID, id int32, date time.Time) (*domain.Loan, error) {
	if date.IsZero() {
		date = util.Today()
	}
	date = util.DateOnly(date)
	return s.transition(ctx, actorID, id, domain.LoanStatusActive, &date)
}

// MarkDefaulted moves an active loan to defaulted. Payments are still accepted afterwards.
func (s *LoanService) MarkDefaulted(ctx context.Context, actorID uuid.UUID, id int32) (*domain.Loan, error) {
	return s.transition(ctx, actorID, id, domain.LoanStatusDefaulted, nil)
}

func (s *LoanService) transition(ctx context.Context, actorID uuid.UUID, id int32, to domain.LoanStatus, disbursementDate *time.Time) (*domain.Loan, error) {
	if actorID == uuid.Nil {
		return nil, domain.ErrActorRequired
	}

	var before, after *domain.Loan
	err := s.tx.WithinTx(ctx, func(tx any) error {
		var err error
		before, err = s.loanRepo.GetByIDForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !before.Status.CanTransitionTo(to) {
			return domain.ErrInvalidTransition
		}
		if disbursementDate != nil && disbursementDate.Before(before.ApplicationDate) {
			return domain.ErrDisbursementBeforeApplication
		}

		after, err = s.loanRepo.UpdateStatusTx(ctx, tx, id, to, disbursementDate)
		if err != nil {
			return err
		}
		if disbursementDate != nil {
			_, err = s.replaceScheduleTx(ctx, tx, after)
		}
		return err
	})
	if err != nil {
		return nil, domain.StorageError(err)
	}

	s.logger.Info().
		Int32("loan_id", id).
		Str("from", string(before.Status)).
		Str("to", string(after.Status)).
		Msg("Loan status changed")

	newValues := map[string]any{"status": string(after.Status)}
	if disbursementDate != nil {
		newValues["disbursementDate"] = util.FormatDate(*disbursementDate)
	}
	s.audit.LogAudit(ctx, domain.AuditEntry{
		ActorID:   &actorID,
		Action:    domain.AuditLoanStatusChanged,
		TableName: domain.AuditTableLoans,
		RecordID:  loanRecordID(id),
		OldValues: map[string]any{"status": string(before.Status)},
		NewValues: newValues,
	})
	s.publishEvent(after.CustomerID, websocket.LoanStatusChanged(after))
	return after, nil
}

// UpdateInterestRate corrects a loan's rate and regenerates its schedule atomically.
// Refused once any money has been applied to the loan.
func (s *LoanService) UpdateInterestRate(ctx context.Context, actorID uuid.UUID, id int32, rate decimal.Decimal) (*domain.Loan, []*domain.Installment, error) {
	if actorID == uuid.Nil {
		return nil, nil, domain.ErrActorRequired
	}
	if err := domain.ValidateRate(rate); err != nil {
		return nil, nil, err
	}

	var (
		before, after *domain.Loan
		schedule      []*domain.Installment
	)
	err := s.tx.WithinTx(ctx, func(tx any) error {
		var err error
		before, err = s.loanRepo.GetByIDForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if before.Status.IsTerminal() {
			return domain.ErrInvalidTransition
		}
		after, err = s.loanRepo.UpdateInterestRateTx(ctx, tx, id, rate)
		if err != nil {
			return err
		}
		schedule, err = s.replaceScheduleTx(ctx, tx, after)
		return err
	})
	if err != nil {
		return nil, nil, domain.StorageError(err)
	}

	s.logger.Info().
		Int32("loan_id", id).
		Str("old_rate", before.InterestRate.String()).
		Str("new_rate", after.InterestRate.String()).
		Msg("Loan interest rate corrected")

	s.audit.LogAudit(ctx, domain.AuditEntry{
		ActorID:   &actorID,
		Action:    domain.AuditLoanRateChanged,
		TableName: domain.AuditTableLoans,
		RecordID:  loanRecordID(id),
		OldValues: map[string]any{"interestRate": before.InterestRate.String()},
		NewValues: map[string]any{"interestRate": after.InterestRate.String()},
	})
	return after, schedule, nil
}

// replaceScheduleTx deletes the loan's installments and inserts a freshly generated
// schedule. The caller must hold the loan row lock in tx.
func (s *LoanService) replaceScheduleTx(ctx context.Context, tx any, loan *domain.Loan) ([]*domain.Installment, error) {
	if err := s.ensureNoPaymentsTx(ctx, tx, loan.ID); err != nil {
		return nil, err
	}

	schedule, err := GenerateSchedule(loan.ID, loan.Principal, loan.InterestRate, loan.Term,
		loan.ScheduleStart(), loan.TermUnit, s.scale)
	if err != nil {
		return nil, err
	}

	removed, err := s.installmentRepo.DeleteByLoanIDTx(ctx, tx, loan.ID)
	if err != nil {
		return nil, err
	}
	if err := s.installmentRepo.CreateBatchTx(ctx, tx, schedule); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int32("loan_id", loan.ID).
		Int64("removed", removed).
		Int("created", len(schedule)).
		Msg("Schedule generated")
	return schedule, nil
}

func (s *LoanService) ensureNoPaymentsTx(ctx context.Context, tx any, loanID int32) error {
	count, err := s.paymentRepo.CountByLoanIDTx(ctx, tx, loanID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrScheduleHasPayments
	}

	existing, err := s.installmentRepo.GetByLoanIDTx(ctx, tx, loanID)
	if err != nil {
		return err
	}
	for _, inst := range existing {
		if inst.AmountPaid.IsPositive() {
			return domain.ErrScheduleHasPayments
		}
	}
	return nil
}

func loanRecordID(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

func loanAuditValues(l *domain.Loan) map[string]any {
	values := map[string]any{
		"customerId":      l.CustomerID.String(),
		"principal":       l.Principal.String(),
		"interestRate":    l.InterestRate.String(),
		"term":            l.Term,
		"termUnit":        string(l.TermUnit),
		"applicationDate": util.FormatDate(l.ApplicationDate),
		"status":          string(l.Status),
	}
	if l.OfficerID != nil {
		values["officerId"] = l.OfficerID.String()
	}
	return values
}
