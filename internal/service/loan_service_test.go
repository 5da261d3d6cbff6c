package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLoanInput(customerID uuid.UUID) CreateLoanInput {
	return CreateLoanInput{
		CustomerID:      customerID,
		Principal:       dec("1000"),
		InterestRate:    dec("10"),
		Term:            3,
		TermUnit:        domain.TermUnitMonths,
		ApplicationDate: date(2024, 1, 31),
	}
}

func TestCreateLoan_Success(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()

	loan, schedule, err := f.loanService.CreateLoan(ctx, f.admin, validLoanInput(f.customer.ID))
	require.NoError(t, err)

	assert.NotZero(t, loan.ID)
	assert.Equal(t, domain.LoanStatusPending, loan.Status)
	assert.Nil(t, loan.OfficerID)
	require.Len(t, schedule, 3)
	assert.Equal(t, "2024-02-29", schedule[0].DueDate.Format("2006-01-02"))

	stored := f.schedule(t, loan.ID)
	assert.Len(t, stored, 3)
	assert.Equal(t, 1, f.tx.Commits)
	assert.Equal(t, []string{domain.AuditLoanCreated}, f.audit.Actions())
}

func TestCreateLoan_OfficerAssignsThemselves(t *testing.T) {
	f := setupLending(t)

	loan, _, err := f.loanService.CreateLoan(context.Background(), f.officer, validLoanInput(f.customer.ID))
	require.NoError(t, err)

	require.NotNil(t, loan.OfficerID)
	assert.Equal(t, f.officer.ID, *loan.OfficerID)
}

func TestCreateLoan_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(in *CreateLoanInput)
		expected error
	}{
		{"zero principal", func(in *CreateLoanInput) { in.Principal = dec("0") }, domain.ErrInvalidPrincipal},
		{"zero term", func(in *CreateLoanInput) { in.Term = 0 }, domain.ErrInvalidTerm},
		{"bad unit", func(in *CreateLoanInput) { in.TermUnit = "years" }, domain.ErrInvalidTermUnit},
		{"rate too high", func(in *CreateLoanInput) { in.InterestRate = dec("101") }, domain.ErrInvalidRate},
		{"no customer", func(in *CreateLoanInput) { in.CustomerID = uuid.Nil }, domain.ErrCustomerRequired},
		{"unknown customer", func(in *CreateLoanInput) { in.CustomerID = uuid.New() }, domain.ErrInvalidCustomer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupLending(t)
			input := validLoanInput(f.customer.ID)
			tt.mutate(&input)

			_, _, err := f.loanService.CreateLoan(context.Background(), f.admin, input)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, 0, f.tx.Calls)
			assert.Empty(t, f.loans.Loans)
		})
	}
}

func TestCreateLoan_OfficerMustBeStaff(t *testing.T) {
	f := setupLending(t)
	input := validLoanInput(f.customer.ID)
	input.OfficerID = &f.customer.ID

	_, _, err := f.loanService.CreateLoan(context.Background(), f.admin, input)
	assert.ErrorIs(t, err, domain.ErrInvalidOfficer)
}

func TestCreateLoan_RequiresActor(t *testing.T) {
	f := setupLending(t)

	_, _, err := f.loanService.CreateLoan(context.Background(), nil, validLoanInput(f.customer.ID))
	assert.ErrorIs(t, err, domain.ErrActorRequired)
}

func TestCreateLoan_ScheduleFailureRollsBack(t *testing.T) {
	f := setupLending(t)
	f.installments.CreateBatchErr = testutil.ErrMockStorage

	_, _, err := f.loanService.CreateLoan(context.Background(), f.admin, validLoanInput(f.customer.ID))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, testutil.ErrMockStorage)
	assert.Empty(t, f.loans.Loans)
	assert.Equal(t, 1, f.tx.Rollbacks)
	assert.Empty(t, f.audit.Entries)
}

func TestLoanLifecycle_ApproveDisburseDefault(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusPending, "900", "5", 3, domain.TermUnitMonths, date(2024, 1, 15))

	approved, err := f.loanService.ApproveLoan(ctx, f.admin.ID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, approved.Status)

	active, err := f.loanService.DisburseLoan(ctx, f.officer.ID, loan.ID, date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, active.Status)
	require.NotNil(t, active.DisbursementDate)
	assert.Equal(t, "2024-02-01", active.DisbursementDate.Format("2006-01-02"))

	// schedule re-anchored on the disbursement date
	schedule := f.schedule(t, loan.ID)
	require.Len(t, schedule, 3)
	assert.Equal(t, "2024-03-01", schedule[0].DueDate.Format("2006-01-02"))
	assert.Equal(t, "2024-05-01", schedule[2].DueDate.Format("2006-01-02"))

	defaulted, err := f.loanService.MarkDefaulted(ctx, f.admin.ID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDefaulted, defaulted.Status)

	assert.Equal(t, []string{
		domain.AuditLoanStatusChanged,
		domain.AuditLoanStatusChanged,
		domain.AuditLoanStatusChanged,
	}, f.audit.Actions())
	assert.Equal(t, []string{"loan.status_changed", "loan.status_changed", "loan.status_changed"}, f.events.Types())
	assert.Equal(t, f.customer.ID, f.events.Events[0].UserID)
	assert.Equal(t, "pending", f.audit.Entries[0].OldValues["status"])
	assert.Equal(t, "approved", f.audit.Entries[0].NewValues["status"])
}

func TestLoanTransition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		from domain.LoanStatus
		act  func(s *LoanService, actor uuid.UUID, id int32) error
	}{
		{"approve active", domain.LoanStatusActive, func(s *LoanService, a uuid.UUID, id int32) error {
			_, err := s.ApproveLoan(context.Background(), a, id)
			return err
		}},
		{"reject approved", domain.LoanStatusApproved, func(s *LoanService, a uuid.UUID, id int32) error {
			_, err := s.RejectLoan(context.Background(), a, id)
			return err
		}},
		{"disburse pending", domain.LoanStatusPending, func(s *LoanService, a uuid.UUID, id int32) error {
			_, err := s.DisburseLoan(context.Background(), a, id, date(2024, 2, 1))
			return err
		}},
		{"default completed", domain.LoanStatusCompleted, func(s *LoanService, a uuid.UUID, id int32) error {
			_, err := s.MarkDefaulted(context.Background(), a, id)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupLending(t)
			loan := f.addLoan(t, tt.from, "900", "5", 3, domain.TermUnitMonths, date(2024, 1, 15))

			err := tt.act(f.loanService, f.admin.ID, loan.ID)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			assert.ErrorIs(t, err, domain.ErrStateConflict)

			stored, _ := f.loans.GetByID(context.Background(), loan.ID)
			assert.Equal(t, tt.from, stored.Status)
			assert.Empty(t, f.audit.Entries)
		})
	}
}

func TestDisburseLoan_BeforeApplicationDate(t *testing.T) {
	f := setupLending(t)
	loan := f.addLoan(t, domain.LoanStatusApproved, "900", "5", 3, domain.TermUnitMonths, date(2024, 1, 15))

	_, err := f.loanService.DisburseLoan(context.Background(), f.admin.ID, loan.ID, date(2024, 1, 14))
	assert.ErrorIs(t, err, domain.ErrDisbursementBeforeApplication)

	stored, _ := f.loans.GetByID(context.Background(), loan.ID)
	assert.Equal(t, domain.LoanStatusApproved, stored.Status)
	assert.Nil(t, stored.DisbursementDate)
}

func TestLoanTransition_NotFound(t *testing.T) {
	f := setupLending(t)

	_, err := f.loanService.ApproveLoan(context.Background(), f.admin.ID, 999)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateInterestRate_RegeneratesSchedule(t *testing.T) {
	f := setupLending(t)
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	updated, schedule, err := f.loanService.UpdateInterestRate(context.Background(), f.admin.ID, loan.ID, dec("5"))
	require.NoError(t, err)

	assert.True(t, updated.InterestRate.Equal(dec("5")))
	require.Len(t, schedule, 2)
	for _, inst := range f.schedule(t, loan.ID) {
		assert.True(t, inst.InterestDue.Equal(dec("50")), "interest %s", inst.InterestDue)
		assert.True(t, inst.OriginalInterest.Equal(dec("50")))
	}
	assert.Equal(t, []string{domain.AuditLoanRateChanged}, f.audit.Actions())
}

func TestUpdateInterestRate_RefusedAfterPayments(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	_, err := f.paymentService.RecordPayment(ctx, RecordPaymentInput{
		LoanID:      loan.ID,
		Amount:      dec("100"),
		PaymentDate: date(2024, 1, 20),
		Method:      domain.PaymentMethodCash,
		RecordedBy:  f.officer.ID,
	})
	require.NoError(t, err)

	_, _, err = f.loanService.UpdateInterestRate(ctx, f.admin.ID, loan.ID, dec("5"))
	assert.ErrorIs(t, err, domain.ErrScheduleHasPayments)

	stored, _ := f.loans.GetByID(ctx, loan.ID)
	assert.True(t, stored.InterestRate.Equal(dec("10")), "rate must be rolled back")
	for _, inst := range f.schedule(t, loan.ID) {
		assert.True(t, inst.InterestDue.Equal(dec("100")))
	}
}

func TestUpdateInterestRate_TerminalLoan(t *testing.T) {
	f := setupLending(t)
	loan := f.addLoan(t, domain.LoanStatusRejected, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	_, _, err := f.loanService.UpdateInterestRate(context.Background(), f.admin.ID, loan.ID, dec("5"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdateInterestRate_InvalidRate(t *testing.T) {
	f := setupLending(t)

	_, _, err := f.loanService.UpdateInterestRate(context.Background(), f.admin.ID, 1, dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
	assert.Equal(t, 0, f.tx.Calls)
}

func TestListLoans_FiltersByCustomer(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()
	f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))
	other := f.users.AddUser("auth0|other", domain.RoleCustomer)
	f.loans.AddLoan(&domain.Loan{CustomerID: other.ID, Status: domain.LoanStatusPending})

	loans, err := f.loanService.ListLoans(ctx, domain.LoanFilter{CustomerID: &f.customer.ID})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, f.customer.ID, loans[0].CustomerID)

	all, err := f.loanService.ListLoans(ctx, domain.LoanFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetSchedule_LoanNotFound(t *testing.T) {
	f := setupLending(t)

	_, err := f.loanService.GetSchedule(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}
