package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentInput(loanID int32, amount string, recordedBy uuid.UUID) RecordPaymentInput {
	return RecordPaymentInput{
		LoanID:      loanID,
		Amount:      dec(amount),
		PaymentDate: date(2024, 2, 5),
		Method:      domain.PaymentMethodMobileMoney,
		RecordedBy:  recordedBy,
	}
}

func TestAllocatePayment_OldestFirst(t *testing.T) {
	schedule, err := GenerateSchedule(1, dec("1000"), dec("10"), 2, date(2024, 1, 1), domain.TermUnitMonths, 2)
	require.NoError(t, err)
	for i, inst := range schedule {
		inst.ID = int32(i + 1)
	}

	alloc := AllocatePayment(schedule, dec("900"), date(2024, 2, 1), 2)

	require.Len(t, alloc.Lines, 2)
	assert.Equal(t, domain.InstallmentPaid, alloc.Lines[0].Status)
	assert.True(t, alloc.Lines[0].Applied.Equal(dec("600")))
	assert.Equal(t, domain.InstallmentPartial, alloc.Lines[1].Status)
	assert.True(t, alloc.Lines[1].Applied.Equal(dec("300")))
	// 300 split 500:600 -> 250 principal, 50 interest
	assert.True(t, alloc.Lines[1].Principal.Equal(dec("250")), "principal %s", alloc.Lines[1].Principal)
	assert.True(t, alloc.Lines[1].Interest.Equal(dec("50")), "interest %s", alloc.Lines[1].Interest)
	assert.True(t, alloc.Principal.Equal(dec("750")))
	assert.True(t, alloc.Interest.Equal(dec("150")))
	assert.True(t, alloc.Overpayment.IsZero())

	// inputs untouched
	assert.Equal(t, domain.InstallmentPending, schedule[0].Status)
	assert.True(t, schedule[0].AmountPaid.IsZero())
}

func TestAllocatePayment_PartialSplitRounds(t *testing.T) {
	inst := &domain.Installment{
		ID:           1,
		Sequence:     1,
		PrincipalDue: dec("333.33"),
		InterestDue:  dec("100"),
		TotalDue:     dec("433.33"),
		Status:       domain.InstallmentPending,
	}

	alloc := AllocatePayment([]*domain.Installment{inst}, dec("100"), date(2024, 2, 1), 2)

	require.Len(t, alloc.Lines, 1)
	assert.True(t, alloc.Principal.Equal(dec("76.92")), "principal %s", alloc.Principal)
	assert.True(t, alloc.Interest.Equal(dec("23.08")), "interest %s", alloc.Interest)
}

func TestAllocatePayment_InterestClampMovesExcessToPrincipal(t *testing.T) {
	// interest already fully paid, so the whole amount must land on principal
	inst := &domain.Installment{
		ID:            1,
		PrincipalDue:  dec("500"),
		InterestDue:   dec("100"),
		TotalDue:      dec("600"),
		AmountPaid:    dec("100"),
		InterestPaid:  dec("100"),
		PrincipalPaid: dec("0"),
		Status:        domain.InstallmentPartial,
	}

	alloc := AllocatePayment([]*domain.Installment{inst}, dec("120"), date(2024, 2, 1), 2)

	assert.True(t, alloc.Principal.Equal(dec("120")), "principal %s", alloc.Principal)
	assert.True(t, alloc.Interest.IsZero(), "interest %s", alloc.Interest)
	assert.Equal(t, domain.InstallmentPartial, alloc.Installments[0].Status)
}

func TestAllocatePayment_SkipsPaidAndReportsOverpayment(t *testing.T) {
	paidAt := date(2024, 1, 20)
	installments := []*domain.Installment{
		{ID: 1, PrincipalDue: dec("100"), InterestDue: dec("10"), TotalDue: dec("110"),
			AmountPaid: dec("110"), PrincipalPaid: dec("100"), InterestPaid: dec("10"),
			Status: domain.InstallmentPaid, PaidAt: &paidAt},
		{ID: 2, PrincipalDue: dec("100"), InterestDue: dec("10"), TotalDue: dec("110"),
			Status: domain.InstallmentOverdue},
	}

	alloc := AllocatePayment(installments, dec("150"), date(2024, 3, 1), 2)

	require.Len(t, alloc.Lines, 1)
	assert.Equal(t, int32(2), alloc.Lines[0].InstallmentID)
	assert.True(t, alloc.Overpayment.Equal(dec("40")))
	assert.True(t, alloc.Principal.Add(alloc.Interest).Add(alloc.Overpayment).Equal(dec("150")))
	require.NotNil(t, alloc.Installments[0].PaidAt)
	assert.Equal(t, "2024-03-01", alloc.Installments[0].PaidAt.Format("2006-01-02"))
}

func TestRecordPayment_Partial(t *testing.T) {
	f := setupLending(t)
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	result, err := f.paymentService.RecordPayment(context.Background(), paymentInput(loan.ID, "300", f.officer.ID))
	require.NoError(t, err)

	assert.False(t, result.LoanCompleted)
	assert.True(t, result.Payment.IsBalanced())
	assert.True(t, result.Payment.PrincipalPortion.Equal(dec("250")))
	assert.True(t, result.Payment.InterestPortion.Equal(dec("50")))
	assert.True(t, result.Payment.Overpayment().IsZero())

	schedule := f.schedule(t, loan.ID)
	assert.Equal(t, domain.InstallmentPartial, schedule[0].Status)
	assert.True(t, schedule[0].AmountPaid.Equal(dec("300")))
	assert.Equal(t, domain.InstallmentPending, schedule[1].Status)

	assert.Equal(t, []string{domain.AuditPaymentRecorded}, f.audit.Actions())
	assert.Len(t, f.notifier.ForUser(f.customer.ID), 1)
	// recorded by the assigned officer, so only the customer gets the live event
	assert.Equal(t, []string{"payment.recorded"}, f.events.Types())
	assert.Equal(t, f.customer.ID, f.events.Events[0].UserID)
}

func TestRecordPayment_CompletesLoanWithOverpayment(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	result, err := f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, "1300", f.admin.ID))
	require.NoError(t, err)

	assert.True(t, result.LoanCompleted)
	assert.True(t, result.Payment.PrincipalPortion.Equal(dec("1000")))
	assert.True(t, result.Payment.InterestPortion.Equal(dec("200")))
	assert.True(t, result.Payment.Overpayment().Equal(dec("100")))
	assert.Len(t, result.Allocations, 2)

	stored, _ := f.loans.GetByID(ctx, loan.ID)
	assert.Equal(t, domain.LoanStatusCompleted, stored.Status)
	for _, inst := range f.schedule(t, loan.ID) {
		assert.Equal(t, domain.InstallmentPaid, inst.Status)
		require.NotNil(t, inst.PaidAt)
	}

	assert.Equal(t, []string{domain.AuditPaymentRecorded, domain.AuditLoanStatusChanged}, f.audit.Actions())
	assert.Equal(t, 2, f.notifier.Count())
	// the admin recorded it, so the assigned officer is told as well
	assert.Len(t, f.events.Events, 2)
	assert.Equal(t, f.officer.ID, f.events.Events[1].UserID)

	_, err = f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, "10", f.admin.ID))
	assert.ErrorIs(t, err, domain.ErrLoanAlreadyCompleted)
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestRecordPayment_DefaultedLoanStaysDefaulted(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusDefaulted, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	result, err := f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, "1200", f.admin.ID))
	require.NoError(t, err)

	assert.False(t, result.LoanCompleted)
	stored, _ := f.loans.GetByID(ctx, loan.ID)
	assert.Equal(t, domain.LoanStatusDefaulted, stored.Status)
}

func TestRecordPayment_LoanNotDisbursed(t *testing.T) {
	for _, status := range []domain.LoanStatus{domain.LoanStatusPending, domain.LoanStatusApproved, domain.LoanStatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			f := setupLending(t)
			loan := f.addLoan(t, status, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

			_, err := f.paymentService.RecordPayment(context.Background(), paymentInput(loan.ID, "100", f.admin.ID))
			assert.ErrorIs(t, err, domain.ErrLoanNotDisbursed)
			assert.Empty(t, f.payments.Payments)
		})
	}
}

func TestRecordPayment_LoanNotFound(t *testing.T) {
	f := setupLending(t)

	_, err := f.paymentService.RecordPayment(context.Background(), paymentInput(99, "100", f.admin.ID))
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestRecordPayment_Validation(t *testing.T) {
	tooLong := strings.Repeat("x", domain.MaxReferenceLength+1)
	tests := []struct {
		name     string
		mutate   func(in *RecordPaymentInput)
		expected error
	}{
		{"zero amount", func(in *RecordPaymentInput) { in.Amount = dec("0") }, domain.ErrInvalidAmount},
		{"negative amount", func(in *RecordPaymentInput) { in.Amount = dec("-5") }, domain.ErrInvalidAmount},
		{"below smallest unit", func(in *RecordPaymentInput) { in.Amount = dec("0.004") }, domain.ErrAmountTooPrecise},
		{"fraction of a cent", func(in *RecordPaymentInput) { in.Amount = dec("100.005") }, domain.ErrAmountTooPrecise},
		{"bad method", func(in *RecordPaymentInput) { in.Method = "barter" }, domain.ErrInvalidPaymentMethod},
		{"future date", func(in *RecordPaymentInput) { in.PaymentDate = time.Now().AddDate(0, 0, 2) }, domain.ErrPaymentDateInFuture},
		{"long reference", func(in *RecordPaymentInput) { in.Reference = &tooLong }, domain.ErrReferenceTooLong},
		{"no actor", func(in *RecordPaymentInput) { in.RecordedBy = uuid.Nil }, domain.ErrActorRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupLending(t)
			loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))
			input := paymentInput(loan.ID, "100", f.admin.ID)
			tt.mutate(&input)

			_, err := f.paymentService.RecordPayment(context.Background(), input)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, 0, f.tx.Calls)
		})
	}
}

func TestRecordPayment_TrailingZerosAccepted(t *testing.T) {
	f := setupLending(t)
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	result, err := f.paymentService.RecordPayment(context.Background(), paymentInput(loan.ID, "100.500", f.admin.ID))
	require.NoError(t, err)
	assert.True(t, result.Payment.Amount.Equal(dec("100.50")))
	assert.True(t, result.Payment.IsBalanced())
}

func TestRecordPayment_SettlesZeroInstallments(t *testing.T) {
	// 0.02 over 3 weeks at 0% leaves the first two installments owing nothing
	f := setupLending(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusActive, "0.02", "0", 3, domain.TermUnitWeeks, date(2024, 1, 1))
	schedule := f.schedule(t, loan.ID)
	require.Len(t, schedule, 3)
	assert.True(t, schedule[0].TotalDue.IsZero())
	assert.True(t, schedule[1].TotalDue.IsZero())
	assert.True(t, schedule[2].TotalDue.Equal(dec("0.02")))

	result, err := f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, "0.02", f.officer.ID))
	require.NoError(t, err)

	assert.True(t, result.LoanCompleted)
	assert.True(t, result.Payment.PrincipalPortion.Equal(dec("0.02")))
	assert.True(t, result.Payment.InterestPortion.IsZero())
	assert.True(t, result.Payment.Overpayment().IsZero())
	require.Len(t, result.Allocations, 3)
	assert.True(t, result.Allocations[0].Applied.IsZero())
	assert.True(t, result.Allocations[2].Applied.Equal(dec("0.02")))

	for _, inst := range f.schedule(t, loan.ID) {
		assert.Equal(t, domain.InstallmentPaid, inst.Status, "installment %d", inst.Sequence)
		require.NotNil(t, inst.PaidAt)
	}
	stored, _ := f.loans.GetByID(ctx, loan.ID)
	assert.Equal(t, domain.LoanStatusCompleted, stored.Status)
}

func TestAllocatePayment_ZeroInstallmentSettledAfterMoneyRunsOut(t *testing.T) {
	installments := []*domain.Installment{
		{ID: 1, PrincipalDue: dec("10"), TotalDue: dec("10"), Status: domain.InstallmentPending},
		{ID: 2, PrincipalDue: dec("0"), TotalDue: dec("0"), Status: domain.InstallmentOverdue},
	}

	alloc := AllocatePayment(installments, dec("10"), date(2024, 2, 1), 2)

	require.Len(t, alloc.Installments, 2)
	assert.Equal(t, domain.InstallmentPaid, alloc.Installments[1].Status)
	assert.True(t, alloc.Lines[1].Applied.IsZero())
	assert.True(t, alloc.Principal.Equal(dec("10")))
	assert.True(t, alloc.Overpayment.IsZero())
}

func TestRecordPayment_HundredThousandLoanSettled(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		outstanding string
		overpayment string
		completed   bool
	}{
		{"full payment", "130000", "0", "0", true},
		{"overpayment", "150000", "0", "20000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupLending(t)
			ctx := context.Background()
			loan := f.addLoan(t, domain.LoanStatusActive, "100000", "10", 3, domain.TermUnitMonths, date(2024, 1, 1))

			before, err := f.balanceService.OutstandingBalance(ctx, loan.ID)
			require.NoError(t, err)
			assert.True(t, before.Equal(dec("130000")), "outstanding %s", before)

			result, err := f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, tt.amount, f.admin.ID))
			require.NoError(t, err)
			assert.Equal(t, tt.completed, result.LoanCompleted)
			assert.True(t, result.Payment.PrincipalPortion.Equal(dec("100000")))
			assert.True(t, result.Payment.InterestPortion.Equal(dec("30000")))
			assert.True(t, result.Payment.Overpayment().Equal(dec(tt.overpayment)))

			balance, err := f.balanceService.LoanBalance(ctx, loan.ID)
			require.NoError(t, err)
			assert.True(t, balance.OutstandingBalance.Equal(dec(tt.outstanding)), "outstanding %s", balance.OutstandingBalance)
			assert.True(t, balance.Overpayment.Equal(dec(tt.overpayment)), "overpayment %s", balance.Overpayment)
			assert.Equal(t, 3, balance.PaidCount)
			for _, inst := range f.schedule(t, loan.ID) {
				assert.Equal(t, domain.InstallmentPaid, inst.Status)
			}
		})
	}
}

func TestRecordPayment_BlankReferenceDropped(t *testing.T) {
	f := setupLending(t)
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))
	blank := "   "
	input := paymentInput(loan.ID, "100", f.admin.ID)
	input.Reference = &blank

	result, err := f.paymentService.RecordPayment(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, result.Payment.Reference)
}

func TestRecordPayment_StorageFailureRollsBack(t *testing.T) {
	f := setupLending(t)
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))
	f.payments.CreateErr = testutil.ErrMockStorage

	_, err := f.paymentService.RecordPayment(context.Background(), paymentInput(loan.ID, "700", f.admin.ID))
	assert.ErrorIs(t, err, domain.ErrStorage)

	// the installment updates made before the insert failed are undone
	for _, inst := range f.schedule(t, loan.ID) {
		assert.True(t, inst.AmountPaid.IsZero())
		assert.Equal(t, domain.InstallmentPending, inst.Status)
	}
	assert.Empty(t, f.payments.Payments)
	assert.Equal(t, 1, f.tx.Rollbacks)
	assert.Empty(t, f.audit.Entries)
	assert.Zero(t, f.notifier.Count())
	assert.Empty(t, f.events.Events)
}

func TestRecordPayment_ConcurrentPaymentsConserveMoney(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, "50", f.admin.ID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 24 x 50 settles the 1200 due exactly
	totalPaid := decimal.Zero
	for _, inst := range f.schedule(t, loan.ID) {
		assert.Equal(t, domain.InstallmentPaid, inst.Status)
		assert.True(t, inst.AmountPaid.Equal(inst.PrincipalPaid.Add(inst.InterestPaid)))
		totalPaid = totalPaid.Add(inst.AmountPaid)
	}
	assert.True(t, totalPaid.Equal(dec("1200")), "installments absorbed %s", totalPaid)

	totals, err := f.payments.GetTotals(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(24), totals.Count)
	assert.True(t, totals.Amount.Equal(dec("1200")))
	assert.True(t, totals.Principal.Equal(dec("1000")), "principal %s", totals.Principal)
	assert.True(t, totals.Interest.Equal(dec("200")), "interest %s", totals.Interest)
	assert.True(t, totals.Overpayment.IsZero())

	stored, _ := f.loans.GetByID(ctx, loan.ID)
	assert.Equal(t, domain.LoanStatusCompleted, stored.Status)
}

func TestGetPayments(t *testing.T) {
	f := setupLending(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	first, err := f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, "100", f.admin.ID))
	require.NoError(t, err)
	_, err = f.paymentService.RecordPayment(ctx, paymentInput(loan.ID, "200", f.admin.ID))
	require.NoError(t, err)

	payments, err := f.paymentService.GetPayments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	got, err := f.paymentService.GetPayment(ctx, first.Payment.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("100")))

	_, err = f.paymentService.GetPayment(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	_, err = f.paymentService.GetPayments(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}
