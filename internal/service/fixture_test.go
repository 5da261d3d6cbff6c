package service

import (
	"context"
	"testing"
	"time"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type lendingFixture struct {
	tx           *testutil.MockTransactor
	loans        *testutil.MockLoanRepository
	installments *testutil.MockInstallmentRepository
	payments     *testutil.MockPaymentRepository
	users        *testutil.MockUserRepository
	audit        *testutil.MockAuditSink
	notifier     *testutil.MockNotificationSink
	events       *testutil.MockEventPublisher

	loanService    *LoanService
	paymentService *PaymentService
	accrualService *AccrualService
	balanceService *BalanceService

	admin    *domain.User
	officer  *domain.User
	customer *domain.User
}

func setupLending(t *testing.T) *lendingFixture {
	t.Helper()

	f := &lendingFixture{
		loans:        testutil.NewMockLoanRepository(),
		installments: testutil.NewMockInstallmentRepository(),
		payments:     testutil.NewMockPaymentRepository(),
		users:        testutil.NewMockUserRepository(),
		audit:        testutil.NewMockAuditSink(),
		notifier:     testutil.NewMockNotificationSink(),
		events:       testutil.NewMockEventPublisher(),
	}
	f.installments.Loans = f.loans
	f.tx = testutil.NewMockTransactor(f.loans, f.installments, f.payments)

	logger := zerolog.Nop()
	f.loanService = NewLoanService(f.tx, f.loans, f.installments, f.payments, f.users, f.audit, 2, logger)
	f.loanService.SetEventPublisher(f.events)
	f.paymentService = NewPaymentService(f.tx, f.loans, f.installments, f.payments, f.audit, f.notifier, 2, logger)
	f.paymentService.SetEventPublisher(f.events)
	f.accrualService = NewAccrualService(f.tx, f.loans, f.installments, domain.OverduePolicyFixed, logger)
	f.balanceService = NewBalanceService(f.loans, f.installments, f.payments)

	f.admin = f.users.AddUser("auth0|admin", domain.RoleAdmin)
	f.officer = f.users.AddUser("auth0|officer", domain.RoleOfficer)
	f.customer = f.users.AddUser("auth0|customer", domain.RoleCustomer)
	return f
}

// addLoan stores a loan in the given status with a generated schedule starting on start
func (f *lendingFixture) addLoan(t *testing.T, status domain.LoanStatus, principal, rate string, term int32, unit domain.TermUnit, start time.Time) *domain.Loan {
	t.Helper()

	loan := f.loans.AddLoan(&domain.Loan{
		CustomerID:      f.customer.ID,
		OfficerID:       &f.officer.ID,
		Principal:       decimal.RequireFromString(principal),
		InterestRate:    decimal.RequireFromString(rate),
		Term:            term,
		TermUnit:        unit,
		ApplicationDate: start,
		Status:          status,
	})
	schedule, err := GenerateSchedule(loan.ID, loan.Principal, loan.InterestRate, term, start, unit, 2)
	require.NoError(t, err)
	f.installments.AddInstallments(schedule...)
	return loan
}

func (f *lendingFixture) schedule(t *testing.T, loanID int32) []*domain.Installment {
	t.Helper()
	installments, err := f.installments.GetByLoanID(context.Background(), loanID)
	require.NoError(t, err)
	return installments
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
