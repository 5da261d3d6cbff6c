package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/shopspring/decimal"
)

// BalanceService computes balances on demand. Nothing is cached or stored.
type BalanceService struct {
	loanRepo        domain.LoanRepository
	installmentRepo domain.InstallmentRepository
	paymentRepo     domain.PaymentRepository
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(
	loanRepo domain.LoanRepository,
	installmentRepo domain.InstallmentRepository,
	paymentRepo domain.PaymentRepository,
) *BalanceService {
	return &BalanceService{
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
	}
}

// TotalDue sums the installments' totals. A loan without a schedule owes its principal.
func TotalDue(loan *domain.Loan, installments []*domain.Installment) (decimal.Decimal, bool) {
	if len(installments) == 0 {
		return loan.Principal, true
	}
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.TotalDue)
	}
	return total, false
}

// LoanBalance computes the full balance snapshot of a loan
func (s *BalanceService) LoanBalance(ctx context.Context, loanID int32) (*domain.LoanBalance, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return s.balanceOf(ctx, loan)
}

func (s *BalanceService) balanceOf(ctx context.Context, loan *domain.Loan) (*domain.LoanBalance, error) {
	installments, err := s.installmentRepo.GetByLoanID(ctx, loan.ID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	totals, err := s.paymentRepo.GetTotals(ctx, loan.ID)
	if err != nil {
		return nil, domain.StorageError(err)
	}

	totalDue, missing := TotalDue(loan, installments)
	balance := &domain.LoanBalance{
		LoanID:             loan.ID,
		Status:             loan.Status,
		Principal:          loan.Principal,
		TotalDue:           totalDue,
		TotalPaid:          totals.Amount,
		PrincipalPaid:      totals.Principal,
		InterestPaid:       totals.Interest,
		OutstandingBalance: util.MaxZero(totalDue.Sub(totals.Amount)),
		InstallmentCount:   len(installments),
		PaymentCount:       totals.Count,
		ScheduleMissing:    missing,
	}

	for _, inst := range installments {
		switch inst.Status {
		case domain.InstallmentPaid:
			balance.PaidCount++
		case domain.InstallmentOverdue:
			balance.OverdueCount++
		}
	}

	// Legacy rows carry no stored split, so fall back to the aggregate difference
	if totals.LegacyCount > 0 {
		balance.Overpayment = util.MaxZero(totals.Amount.Sub(totalDue))
		balance.OverpaymentApproximated = true
	} else {
		balance.Overpayment = totals.Overpayment
	}
	return balance, nil
}

// OutstandingBalance is max(0, total due - total paid)
func (s *BalanceService) OutstandingBalance(ctx context.Context, loanID int32) (decimal.Decimal, error) {
	balance, err := s.LoanBalance(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.OutstandingBalance, nil
}

// Overpayment is the money received beyond what the schedule asked for
func (s *BalanceService) Overpayment(ctx context.Context, loanID int32) (decimal.Decimal, error) {
	balance, err := s.LoanBalance(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Overpayment, nil
}

// CustomerBalance sums the balances of every loan the customer holds
func (s *BalanceService) CustomerBalance(ctx context.Context, customerID uuid.UUID) (*domain.CustomerBalance, error) {
	loans, err := s.loanRepo.List(ctx, domain.LoanFilter{CustomerID: &customerID})
	if err != nil {
		return nil, domain.StorageError(err)
	}

	result := &domain.CustomerBalance{
		CustomerID: customerID,
		Loans:      make([]*domain.LoanBalance, 0, len(loans)),
	}
	for _, loan := range loans {
		balance, err := s.balanceOf(ctx, loan)
		if err != nil {
			return nil, err
		}
		result.LoanCount++
		result.TotalDue = result.TotalDue.Add(balance.TotalDue)
		result.TotalPaid = result.TotalPaid.Add(balance.TotalPaid)
		result.OutstandingBalance = result.OutstandingBalance.Add(balance.OutstandingBalance)
		result.Overpayment = result.Overpayment.Add(balance.Overpayment)
		result.Loans = append(result.Loans, balance)
	}
	return result, nil
}
