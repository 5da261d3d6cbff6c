package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/shopspring/decimal"
)

var (
	ErrLoanNotFound                  = newNotFoundError("loan not found")
	ErrInvalidPrincipal              = newValidationError("principal must be positive")
	ErrInvalidTerm                   = newValidationError("term must be greater than zero")
	ErrInvalidTermUnit               = newValidationError("term unit must be weeks or months")
	ErrInvalidRate                   = newValidationError("interest rate must be between 0 and 100")
	ErrCustomerRequired              = newValidationError("customer is required")
	ErrInvalidCustomer               = newValidationError("customer does not exist")
	ErrInvalidOfficer                = newValidationError("officer must be an existing staff member")
	ErrInvalidDate                   = newValidationError("date is required")
	ErrDisbursementBeforeApplication = newValidationError("disbursement date cannot be before the application date")
	ErrLoanAlreadyCompleted          = newStateConflictError("loan is already completed")
	ErrLoanNotDisbursed              = newStateConflictError("loan has not been disbursed")
	ErrLoanNotActive                 = newStateConflictError("loan is not active")
	ErrScheduleHasPayments           = newStateConflictError("schedule cannot be regenerated after payments were applied")
)

// TermUnit is the length of one repayment period
type TermUnit string

const (
	TermUnitWeeks  TermUnit = "weeks"
	TermUnitMonths TermUnit = "months"
)

// IsValid reports whether u is a supported unit
func (u TermUnit) IsValid() bool {
	return u == TermUnitWeeks || u == TermUnitMonths
}

// Advance returns the date n periods after start. Months use calendar arithmetic with
// end-of-month clamping, weeks are fixed 7-day blocks.
func (u TermUnit) Advance(start time.Time, n int) time.Time {
	if u == TermUnitWeeks {
		return util.AddWeeks(start, n)
	}
	return util.AddMonthsClamped(start, n)
}

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:  {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved: {LoanStatusActive},
	LoanStatusActive:   {LoanStatusCompleted, LoanStatusDefaulted},
}

// CanTransitionTo reports whether the loan state machine allows s → next
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s LoanStatus) IsTerminal() bool {
	return len(loanTransitions[s]) == 0
}

// IsValid reports whether s is a known status
func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusActive,
		LoanStatusCompleted, LoanStatusRejected, LoanStatusDefaulted:
		return true
	}
	return false
}

// AcceptsPayments reports whether money can be recorded against a loan in this state
func (s LoanStatus) AcceptsPayments() bool {
	return s == LoanStatusActive || s == LoanStatusDefaulted
}

type Loan struct {
	ID               int32           `json:"id"`
	CustomerID       uuid.UUID       `json:"customerId"`
	OfficerID        *uuid.UUID      `json:"officerId,omitempty"`
	Principal        decimal.Decimal `json:"principal"`
	InterestRate     decimal.Decimal `json:"interestRate"`
	Term             int32           `json:"term"`
	TermUnit         TermUnit        `json:"termUnit"`
	ApplicationDate  time.Time       `json:"applicationDate"`
	DisbursementDate *time.Time      `json:"disbursementDate,omitempty"`
	Status           LoanStatus      `json:"status"`
	Purpose          *string         `json:"purpose,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Validate checks the loan terms
func (l *Loan) Validate() error {
	if l.CustomerID == uuid.Nil {
		return ErrCustomerRequired
	}
	if err := ValidateLoanTerms(l.Principal, l.InterestRate, l.Term, l.TermUnit); err != nil {
		return err
	}
	if l.ApplicationDate.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ValidateLoanTerms checks principal, rate, term and unit
func ValidateLoanTerms(principal, ratePercent decimal.Decimal, term int32, unit TermUnit) error {
	if principal.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrincipal
	}
	if err := ValidateRate(ratePercent); err != nil {
		return err
	}
	if term <= 0 {
		return ErrInvalidTerm
	}
	if !unit.IsValid() {
		return ErrInvalidTermUnit
	}
	return nil
}

// ValidateRate checks that a percentage rate lies in [0, 100]
func ValidateRate(ratePercent decimal.Decimal) error {
	if ratePercent.IsNegative() || ratePercent.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidRate
	}
	return nil
}

// ScheduleStart is the date the repayment schedule is anchored on: the disbursement date
// once the loan is disbursed, the application date before that.
func (l *Loan) ScheduleStart() time.Time {
	if l.DisbursementDate != nil {
		return *l.DisbursementDate
	}
	return l.ApplicationDate
}

// LoanFilter narrows loan listings. Zero values mean "any".
type LoanFilter struct {
	Status     LoanStatus
	CustomerID *uuid.UUID
	OfficerID  *uuid.UUID
}

type LoanRepository interface {
	CreateTx(ctx context.Context, tx any, loan *Loan) (*Loan, error)
	GetByID(ctx context.Context, id int32) (*Loan, error)
	// GetByIDForUpdateTx reads the loan and holds a row lock on it until tx ends
	GetByIDForUpdateTx(ctx context.Context, tx any, id int32) (*Loan, error)
	List(ctx context.Context, filter LoanFilter) ([]*Loan, error)
	UpdateStatusTx(ctx context.Context, tx any, id int32, status LoanStatus, disbursementDate *time.Time) (*Loan, error)
	UpdateInterestRateTx(ctx context.Context, tx any, id int32, rate decimal.Decimal) (*Loan, error)
}
