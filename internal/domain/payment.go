package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound      = newNotFoundError("payment not found")
	ErrInvalidAmount        = newValidationError("payment amount must be positive")
	ErrAmountTooPrecise     = newValidationError("payment amount has more decimal places than the currency allows")
	ErrInvalidPaymentMethod = newValidationError("payment method must be cash, mobile_money, bank_transfer or cheque")
	ErrPaymentDateInFuture  = newValidationError("payment date cannot be in the future")
	ErrReferenceTooLong     = newValidationError("reference must be at most 100 characters")
)

// MaxReferenceLength is the longest accepted payment reference
const MaxReferenceLength = 100

// PaymentMethod is how the money reached the lender
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheque       PaymentMethod = "cheque"
)

// IsValid reports whether m is a supported method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodMobileMoney, PaymentMethodBankTransfer, PaymentMethodCheque:
		return true
	}
	return false
}

// Payment is an append-only record of money received for a loan, split at recording time.
// OverpaymentPortion is nil only on legacy rows imported without a split.
type Payment struct {
	ID                 int32            `json:"id"`
	LoanID             int32            `json:"loanId"`
	Amount             decimal.Decimal  `json:"amount"`
	PaymentDate        time.Time        `json:"paymentDate"`
	Method             PaymentMethod    `json:"method"`
	Reference          *string          `json:"reference,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	RecordedBy         uuid.UUID        `json:"recordedBy"`
	PrincipalPortion   decimal.Decimal  `json:"principalPortion"`
	InterestPortion    decimal.Decimal  `json:"interestPortion"`
	OverpaymentPortion *decimal.Decimal `json:"overpaymentPortion,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// Overpayment returns the persisted overpayment portion, zero when absent
func (p *Payment) Overpayment() decimal.Decimal {
	if p.OverpaymentPortion == nil {
		return decimal.Zero
	}
	return *p.OverpaymentPortion
}

// IsBalanced reports whether the split adds back up to the amount
func (p *Payment) IsBalanced() bool {
	return p.PrincipalPortion.Add(p.InterestPortion).Add(p.Overpayment()).Equal(p.Amount)
}

// InstallmentAllocation records how much of a payment landed on one installment
type InstallmentAllocation struct {
	InstallmentID int32             `json:"installmentId"`
	Sequence      int32             `json:"sequence"`
	Applied       decimal.Decimal   `json:"applied"`
	Principal     decimal.Decimal   `json:"principal"`
	Interest      decimal.Decimal   `json:"interest"`
	Status        InstallmentStatus `json:"status"`
}

// PaymentResult is returned by a successful recordPayment
type PaymentResult struct {
	Payment       *Payment                `json:"payment"`
	Allocations   []InstallmentAllocation `json:"allocations"`
	LoanCompleted bool                    `json:"loanCompleted"`
}

// PaymentTotals aggregates a loan's payment rows
type PaymentTotals struct {
	Count       int64           `json:"count"`
	Amount      decimal.Decimal `json:"amount"`
	Principal   decimal.Decimal `json:"principal"`
	Interest    decimal.Decimal `json:"interest"`
	Overpayment decimal.Decimal `json:"overpayment"`
	// LegacyCount is the number of rows with no persisted overpayment portion
	LegacyCount int64 `json:"legacyCount"`
}

type PaymentRepository interface {
	CreateTx(ctx context.Context, tx any, payment *Payment) (*Payment, error)
	GetByID(ctx context.Context, id int32) (*Payment, error)
	GetByLoanID(ctx context.Context, loanID int32) ([]*Payment, error)
	CountByLoanIDTx(ctx context.Context, tx any, loanID int32) (int64, error)
	GetTotals(ctx context.Context, loanID int32) (*PaymentTotals, error)
}
