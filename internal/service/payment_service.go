package service

import (
	"context"
	"fmt"
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

// PaymentService records repayments and allocates them across a loan's schedule
type PaymentService struct {
	tx              domain.Transactor
	loanRepo        domain.LoanRepository
	installmentRepo domain.InstallmentRepository
	paymentRepo     domain.PaymentRepository
	audit           domain.AuditSink
	notifier        domain.NotificationSink
	eventPublisher  websocket.EventPublisher
	scale           int32
	logger          zerolog.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	tx domain.Transactor,
	loanRepo domain.LoanRepository,
	installmentRepo domain.InstallmentRepository,
	paymentRepo domain.PaymentRepository,
	audit domain.AuditSink,
	notifier domain.NotificationSink,
	scale int32,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		tx:              tx,
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
		audit:           audit,
		notifier:        notifier,
		scale:           scale,
		logger:          logger.With().Str("component", "payment_service").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *PaymentService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *PaymentService) publishEvent(userID uuid.UUID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(userID, event)
	}
}

// RecordPaymentInput contains input for recording a payment
type RecordPaymentInput struct {
	LoanID      int32
	Amount      decimal.Decimal
	PaymentDate time.Time
	Method      domain.PaymentMethod
	Reference   *string
	Notes       *string
	RecordedBy  uuid.UUID
}

// Allocation is the outcome of spreading one amount over a schedule
type Allocation struct {
	Installments []*domain.Installment
	Lines        []domain.InstallmentAllocation
	Principal    decimal.Decimal
	Interest     decimal.Decimal
	Overpayment  decimal.Decimal
}

// AllocatePayment applies amount to the installments oldest first without mutating them.
// Each installment absorbs at most what it still owes; anything left once every
// installment is paid is overpayment. Principal + Interest + Overpayment == amount.
// An open installment that owes nothing is settled as paid with a zero line.
func AllocatePayment(installments []*domain.Installment, amount decimal.Decimal, paidOn time.Time, scale int32) *Allocation {
	alloc := &Allocation{
		Installments: make([]*domain.Installment, 0, len(installments)),
		Lines:        make([]domain.InstallmentAllocation, 0),
	}

	left := amount
	for _, inst := range installments {
		if inst.Status == domain.InstallmentPaid {
			continue
		}
		remaining := inst.RemainingDue()
		if remaining.IsPositive() && !left.IsPositive() {
			continue
		}

		apply := util.MinDecimal(left, remaining)
		full := apply.Equal(remaining)
		principal, interest := splitApplied(inst, apply, full, scale)

		next := *inst
		next.AmountPaid = inst.AmountPaid.Add(apply)
		next.PrincipalPaid = inst.PrincipalPaid.Add(principal)
		next.InterestPaid = inst.InterestPaid.Add(interest)
		if full {
			next.Status = domain.InstallmentPaid
			paidAt := util.DateOnly(paidOn)
			next.PaidAt = &paidAt
		} else {
			next.Status = domain.InstallmentPartial
		}

		alloc.Installments = append(alloc.Installments, &next)
		alloc.Lines = append(alloc.Lines, domain.InstallmentAllocation{
			InstallmentID: inst.ID,
			Sequence:      inst.Sequence,
			Applied:       apply,
			Principal:     principal,
			Interest:      interest,
			Status:        next.Status,
		})
		alloc.Principal = alloc.Principal.Add(principal)
		alloc.Interest = alloc.Interest.Add(interest)
		left = left.Sub(apply)
	}

	alloc.Overpayment = util.MaxZero(left)
	return alloc
}

// splitApplied divides an amount applied to one installment into principal and interest.
// A full settlement takes whatever principal and interest remain. A partial one splits
// in the installment's principal:total proportion, clamped to what each part still owes.
func splitApplied(inst *domain.Installment, apply decimal.Decimal, full bool, scale int32) (decimal.Decimal, decimal.Decimal) {
	if !apply.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	remPrincipal := inst.RemainingPrincipal()
	remInterest := inst.RemainingInterest()
	if full {
		return remPrincipal, remInterest
	}

	principal := apply
	if inst.TotalDue.IsPositive() {
		principal = util.RoundMoney(apply.Mul(inst.PrincipalDue).Div(inst.TotalDue), scale)
	}
	principal = util.MinDecimal(principal, remPrincipal)

	interest := apply.Sub(principal)
	if interest.GreaterThan(remInterest) {
		principal = principal.Add(interest.Sub(remInterest))
		interest = remInterest
	}
	return principal, interest
}

// allInstallmentsPaid reports whether the schedule is fully settled once the updated
// installments are taken into account
func allInstallmentsPaid(schedule []*domain.Installment, updated []*domain.Installment) bool {
	if len(schedule) == 0 {
		return false
	}
	status := make(map[int32]domain.InstallmentStatus, len(schedule))
	for _, inst := range schedule {
		status[inst.ID] = inst.Status
	}
	for _, inst := range updated {
		status[inst.ID] = inst.Status
	}
	for _, s := range status {
		if s != domain.InstallmentPaid {
			return false
		}
	}
	return true
}

func (s *PaymentService) validate(input *RecordPaymentInput) error {
	if input.RecordedBy == uuid.Nil {
		return domain.ErrActorRequired
	}
	if !input.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !input.Amount.Equal(input.Amount.Round(s.scale)) {
		return domain.ErrAmountTooPrecise
	}
	if !input.Method.IsValid() {
		return domain.ErrInvalidPaymentMethod
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = util.Today()
	}
	input.PaymentDate = util.DateOnly(input.PaymentDate)
	if input.PaymentDate.After(util.Today()) {
		return domain.ErrPaymentDateInFuture
	}
	if input.Reference != nil {
		ref := strings.TrimSpace(*input.Reference)
		if len(ref) > domain.MaxReferenceLength {
			return domain.ErrReferenceTooLong
		}
		if ref == "" {
			input.Reference = nil
		} else {
			input.Reference = &ref
		}
	}
	return nil
}

// RecordPayment validates the payment, then in one transaction locks the loan, allocates
// the amount across unpaid installments, stores the payment with its split and completes
// the loan when nothing is left owing. Audit and notifications follow the commit.
func (s *PaymentService) RecordPayment(ctx context.Context, input RecordPaymentInput) (*domain.PaymentResult, error) {
	// 1. Validate before touching storage
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	var (
		loan      *domain.Loan
		payment   *domain.Payment
		alloc     *Allocation
		completed bool
	)
	err := s.tx.WithinTx(ctx, func(tx any) error {
		// 2. Lock the loan so allocation and accrual never interleave
		var err error
		loan, err = s.loanRepo.GetByIDForUpdateTx(ctx, tx, input.LoanID)
		if err != nil {
			return err
		}
		if loan.Status == domain.LoanStatusCompleted {
			return domain.ErrLoanAlreadyCompleted
		}
		if !loan.Status.AcceptsPayments() {
			return domain.ErrLoanNotDisbursed
		}

		// 3. Allocate oldest first
		schedule, err := s.installmentRepo.GetByLoanIDTx(ctx, tx, loan.ID)
		if err != nil {
			return err
		}
		alloc = AllocatePayment(schedule, input.Amount, input.PaymentDate, s.scale)
		for _, inst := range alloc.Installments {
			if err := s.installmentRepo.UpdateAllocationTx(ctx, tx, inst); err != nil {
				return err
			}
		}

		// 4. Store the payment with its split
		overpayment := alloc.Overpayment
		payment, err = s.paymentRepo.CreateTx(ctx, tx, &domain.Payment{
			LoanID:             loan.ID,
			Amount:             input.Amount,
			PaymentDate:        input.PaymentDate,
			Method:             input.Method,
			Reference:          input.Reference,
			Notes:              input.Notes,
			RecordedBy:         input.RecordedBy,
			PrincipalPortion:   alloc.Principal,
			InterestPortion:    alloc.Interest,
			OverpaymentPortion: &overpayment,
		})
		if err != nil {
			return err
		}

		// 5. Complete the loan when the schedule is settled
		if loan.Status == domain.LoanStatusActive && allInstallmentsPaid(schedule, alloc.Installments) {
			if _, err := s.loanRepo.UpdateStatusTx(ctx, tx, loan.ID, domain.LoanStatusCompleted, nil); err != nil {
				return err
			}
			completed = true
		}
		return nil
	})
	if err != nil {
		return nil, domain.StorageError(err)
	}

	s.logger.Info().
		Int32("loan_id", loan.ID).
		Int32("payment_id", payment.ID).
		Str("amount", payment.Amount.String()).
		Str("principal", payment.PrincipalPortion.String()).
		Str("interest", payment.InterestPortion.String()).
		Str("overpayment", payment.Overpayment().String()).
		Bool("loan_completed", completed).
		Msg("Payment recorded")

	s.afterPayment(ctx, loan, payment, completed)

	return &domain.PaymentResult{
		Payment:       payment,
		Allocations:   alloc.Lines,
		LoanCompleted: completed,
	}, nil
}

// afterPayment runs the fire-and-forget side effects of a committed payment
func (s *PaymentService) afterPayment(ctx context.Context, loan *domain.Loan, payment *domain.Payment, completed bool) {
	recordedBy := payment.RecordedBy
	loanRecord := loanRecordID(loan.ID)

	s.audit.LogAudit(ctx, domain.AuditEntry{
		ActorID:   &recordedBy,
		Action:    domain.AuditPaymentRecorded,
		TableName: domain.AuditTableLoanPayments,
		RecordID:  strconv.FormatInt(int64(payment.ID), 10),
		NewValues: map[string]any{
			"loanId":             loan.ID,
			"amount":             payment.Amount.String(),
			"paymentDate":        util.FormatDate(payment.PaymentDate),
			"method":             string(payment.Method),
			"principalPortion":   payment.PrincipalPortion.String(),
			"interestPortion":    payment.InterestPortion.String(),
			"overpaymentPortion": payment.Overpayment().String(),
		},
	})
	if completed {
		s.audit.LogAudit(ctx, domain.AuditEntry{
			ActorID:   &recordedBy,
			Action:    domain.AuditLoanStatusChanged,
			TableName: domain.AuditTableLoans,
			RecordID:  loanRecord,
			OldValues: map[string]any{"status": string(loan.Status)},
			NewValues: map[string]any{"status": string(domain.LoanStatusCompleted)},
		})
	}

	loanID := loan.ID
	s.notifier.SendNotification(ctx, domain.Notification{
		UserID:   loan.CustomerID,
		Title:    "Payment received",
		Message:  fmt.Sprintf("We received your payment of %s for loan #%d.", payment.Amount.StringFixed(s.scale), loan.ID),
		Type:     domain.NotificationSuccess,
		SenderID: &recordedBy,
		LoanID:   &loanID,
	})
	if completed {
		s.notifier.SendNotification(ctx, domain.Notification{
			UserID:   loan.CustomerID,
			Title:    "Loan fully repaid",
			Message:  fmt.Sprintf("Loan #%d is fully repaid. Thank you!", loan.ID),
			Type:     domain.NotificationSuccess,
			SenderID: &recordedBy,
			LoanID:   &loanID,
		})
	}

	s.publishEvent(loan.CustomerID, websocket.PaymentRecorded(payment))
	if loan.OfficerID != nil && *loan.OfficerID != recordedBy {
		s.publishEvent(*loan.OfficerID, websocket.PaymentRecorded(payment))
	}
}

// GetPayments lists a loan's payments
func (s *PaymentService) GetPayments(ctx context.Context, loanID int32) ([]*domain.Payment, error) {
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		return nil, domain.StorageError(err)
	}
	payments, err := s.paymentRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return payments, nil
}

// GetPayment retrieves a single payment
func (s *PaymentService) GetPayment(ctx context.Context, id int32) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return payment, nil
}
