package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInstallmentNotFound = newNotFoundError("installment not found")

// InstallmentStatus is the repayment state of one schedule entry
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentOverdue InstallmentStatus = "overdue"
	InstallmentPaid    InstallmentStatus = "paid"
)

var installmentTransitions = map[InstallmentStatus][]InstallmentStatus{
	InstallmentPending: {InstallmentPartial, InstallmentPaid, InstallmentOverdue},
	InstallmentOverdue: {InstallmentPartial, InstallmentPaid, InstallmentOverdue},
	InstallmentPartial: {InstallmentPaid, InstallmentOverdue, InstallmentPartial},
}

// CanTransitionTo reports whether s → next is allowed. Paid is terminal.
func (s InstallmentStatus) CanTransitionTo(next InstallmentStatus) bool {
	for _, allowed := range installmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether money is still owed on an installment in this state
func (s InstallmentStatus) IsOpen() bool {
	return s != InstallmentPaid
}

// Installment is one entry of a loan's repayment schedule.
// OriginalInterest is written once at generation and never changes; overdue accrual
// always recomputes InterestDue from it.
type Installment struct {
	ID               int32             `json:"id"`
	LoanID           int32             `json:"loanId"`
	Sequence         int32             `json:"sequence"`
	DueDate          time.Time         `json:"dueDate"`
	PrincipalDue     decimal.Decimal   `json:"principalDue"`
	InterestDue      decimal.Decimal   `json:"interestDue"`
	OriginalInterest decimal.Decimal   `json:"originalInterest"`
	TotalDue         decimal.Decimal   `json:"totalDue"`
	AmountPaid       decimal.Decimal   `json:"amountPaid"`
	PrincipalPaid    decimal.Decimal   `json:"principalPaid"`
	InterestPaid     decimal.Decimal   `json:"interestPaid"`
	Status           InstallmentStatus `json:"status"`
	PaidAt           *time.Time        `json:"paidAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// RemainingDue is what is still owed on the installment, never negative
func (i *Installment) RemainingDue() decimal.Decimal {
	remaining := i.TotalDue.Sub(i.AmountPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// RemainingPrincipal is the unpaid part of PrincipalDue
func (i *Installment) RemainingPrincipal() decimal.Decimal {
	remaining := i.PrincipalDue.Sub(i.PrincipalPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// RemainingInterest is the unpaid part of InterestDue
func (i *Installment) RemainingInterest() decimal.Decimal {
	remaining := i.InterestDue.Sub(i.InterestPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// InstallmentRepository persists schedule entries. Mutations only happen inside a
// transaction that holds the owning loan's row lock.
type InstallmentRepository interface {
	CreateBatchTx(ctx context.Context, tx any, installments []*Installment) error
	DeleteByLoanIDTx(ctx context.Context, tx any, loanID int32) (int64, error)
	GetByLoanID(ctx context.Context, loanID int32) ([]*Installment, error)
	GetByLoanIDTx(ctx context.Context, tx any, loanID int32) ([]*Installment, error)
	UpdateAccrualTx(ctx context.Context, tx any, installment *Installment) error
	UpdateAllocationTx(ctx context.Context, tx any, installment *Installment) error
	// ListLoanIDsForAccrual returns active loans owning open installments due before asOf
	ListLoanIDsForAccrual(ctx context.Context, asOf time.Time) ([]int32, error)
	// ListLoanIDsWithOverdue returns active loans with at least one overdue installment
	ListLoanIDsWithOverdue(ctx context.Context) ([]int32, error)
}
