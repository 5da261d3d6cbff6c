package service

import (
	"context"
	"testing"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOverdueNotifier(t *testing.T) (*lendingFixture, *OverdueNotifier, *testutil.MockNotificationRepository) {
	f := setupLending(t)
	notificationRepo := testutil.NewMockNotificationRepository()
	notifier := NewOverdueNotifier(f.loans, f.installments, f.users, notificationRepo, f.notifier, 2, zerolog.Nop())
	notifier.SetEventPublisher(f.events)
	return f, notifier, notificationRepo
}

func TestNotifyOverdue_AlertsAdminsAndOfficerOncePerDay(t *testing.T) {
	f, notifier, _ := setupOverdueNotifier(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))
	_, err := f.accrualService.AccrueOverdue(ctx, date(2024, 2, 10))
	require.NoError(t, err)

	result, err := notifier.NotifyOverdue(ctx, date(2024, 2, 10))
	require.NoError(t, err)

	assert.Equal(t, 1, result.LoansOverdue)
	assert.Equal(t, 2, result.Notifications)
	assert.Equal(t, 0, result.Skipped)

	adminAlerts := f.notifier.ForUser(f.admin.ID)
	require.Len(t, adminAlerts, 1)
	assert.Equal(t, domain.NotificationAlert, adminAlerts[0].Type)
	require.NotNil(t, adminAlerts[0].LoanID)
	assert.Equal(t, loan.ID, *adminAlerts[0].LoanID)
	assert.Contains(t, adminAlerts[0].Message, "600.00")
	assert.Len(t, f.notifier.ForUser(f.officer.ID), 1)
	assert.Empty(t, f.notifier.ForUser(f.customer.ID))
	assert.Equal(t, []string{"loan.overdue", "loan.overdue"}, f.events.Types())

	// same day again: claimed already
	again, err := notifier.NotifyOverdue(ctx, date(2024, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, 0, again.Notifications)
	assert.Equal(t, 2, f.notifier.Count())

	// next day notifies again
	next, err := notifier.NotifyOverdue(ctx, date(2024, 2, 11))
	require.NoError(t, err)
	assert.Equal(t, 2, next.Notifications)
}

func TestNotifyOverdue_OfficerWhoIsAdminNotifiedOnce(t *testing.T) {
	f, notifier, _ := setupOverdueNotifier(t)
	ctx := context.Background()
	loan := f.addLoan(t, domain.LoanStatusActive, "1000", "10", 1, domain.TermUnitMonths, date(2024, 1, 1))
	stored := f.loans.Loans[loan.ID]
	stored.OfficerID = &f.admin.ID
	_, err := f.accrualService.AccrueOverdue(ctx, date(2024, 2, 10))
	require.NoError(t, err)

	result, err := notifier.NotifyOverdue(ctx, date(2024, 2, 10))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Notifications)
	assert.Len(t, f.notifier.ForUser(f.admin.ID), 1)
}

func TestNotifyOverdue_NothingOverdue(t *testing.T) {
	f, notifier, _ := setupOverdueNotifier(t)
	f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))

	result, err := notifier.NotifyOverdue(context.Background(), date(2024, 1, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, result.LoansOverdue)
	assert.Zero(t, f.notifier.Count())
}

func TestNotifyOverdue_ClaimFailureCounted(t *testing.T) {
	f, notifier, notificationRepo := setupOverdueNotifier(t)
	ctx := context.Background()
	f.addLoan(t, domain.LoanStatusActive, "1000", "10", 2, domain.TermUnitMonths, date(2024, 1, 1))
	_, err := f.accrualService.AccrueOverdue(ctx, date(2024, 2, 10))
	require.NoError(t, err)
	notificationRepo.ClaimErr = testutil.ErrMockStorage

	result, err := notifier.NotifyOverdue(ctx, date(2024, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Zero(t, f.notifier.Count())
}
