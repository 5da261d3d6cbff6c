package handler

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/middleware"
	"github.com/lendbook/lendbook-backend/internal/service"
	"github.com/lendbook/lendbook-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	e             *echo.Echo
	tx            *testutil.MockTransactor
	loans         *testutil.MockLoanRepository
	installments  *testutil.MockInstallmentRepository
	payments      *testutil.MockPaymentRepository
	users         *testutil.MockUserRepository
	notifications *testutil.MockNotificationRepository
	auditRepo     *testutil.MockAuditRepository

	authService         *service.AuthService
	notificationService *service.NotificationService
	handlers            Handlers

	admin    *domain.User
	officer  *domain.User
	customer *domain.User
	other    *domain.User
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		e:             echo.New(),
		loans:         testutil.NewMockLoanRepository(),
		installments:  testutil.NewMockInstallmentRepository(),
		payments:      testutil.NewMockPaymentRepository(),
		users:         testutil.NewMockUserRepository(),
		notifications: testutil.NewMockNotificationRepository(),
		auditRepo:     testutil.NewMockAuditRepository(),
	}
	f.installments.Loans = f.loans
	f.tx = testutil.NewMockTransactor(f.loans, f.installments, f.payments)

	logger := zerolog.Nop()
	const scale = 2
	auditService := service.NewAuditService(f.auditRepo, logger)
	f.authService = service.NewAuthService(f.users, auditService)
	f.notificationService = service.NewNotificationService(f.notifications, f.users, nil, logger)
	loanService := service.NewLoanService(f.tx, f.loans, f.installments, f.payments, f.users, auditService, scale, logger)
	paymentService := service.NewPaymentService(f.tx, f.loans, f.installments, f.payments, auditService, f.notificationService, scale, logger)
	balanceService := service.NewBalanceService(f.loans, f.installments, f.payments)
	accrualService := service.NewAccrualService(f.tx, f.loans, f.installments, domain.OverduePolicyFixed, logger)
	overdueNotifier := service.NewOverdueNotifier(f.loans, f.installments, f.users, f.notifications, f.notificationService, scale, logger)
	worker := service.NewAccrualWorker(accrualService, overdueNotifier, auditService, logger, service.AccrualWorkerConfig{})

	f.handlers = Handlers{
		Auth:         NewAuthHandler(f.authService),
		Loan:         NewLoanHandler(loanService, balanceService, scale),
		Payment:      NewPaymentHandler(paymentService, loanService, scale),
		Balance:      NewBalanceHandler(balanceService, scale),
		Notification: NewNotificationHandler(f.notificationService),
		Admin:        NewAdminHandler(worker, overdueNotifier, auditService),
	}

	f.admin = f.users.AddUser("auth0|admin", domain.RoleAdmin)
	f.officer = f.users.AddUser("auth0|officer", domain.RoleOfficer)
	f.customer = f.users.AddUser("auth0|customer", domain.RoleCustomer)
	f.other = f.users.AddUser("auth0|other", domain.RoleCustomer)
	return f
}

// addLoan stores a monthly loan for customer with a generated schedule anchored on start
func (f *apiFixture) addLoan(t *testing.T, customer *domain.User, status domain.LoanStatus, principal, rate string, term int32, start time.Time) *domain.Loan {
	t.Helper()

	loan := &domain.Loan{
		CustomerID:      customer.ID,
		OfficerID:       &f.officer.ID,
		Principal:       decimal.RequireFromString(principal),
		InterestRate:    decimal.RequireFromString(rate),
		Term:            term,
		TermUnit:        domain.TermUnitMonths,
		ApplicationDate: start,
		Status:          status,
	}
	if status == domain.LoanStatusActive || status == domain.LoanStatusDefaulted {
		loan.DisbursementDate = &start
	}
	loan = f.loans.AddLoan(loan)
	schedule, err := service.GenerateSchedule(loan.ID, loan.Principal, loan.InterestRate, term, start, domain.TermUnitMonths, 2)
	require.NoError(t, err)
	f.installments.AddInstallments(schedule...)
	return loan
}

// newContext builds an echo context for target with actor stored as the authenticated user
func (f *apiFixture) newContext(method, target, body string, actor *domain.User) (echo.Context, *httptest.ResponseRecorder) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if actor != nil {
		middleware.SetActor(c, actor)
	}
	return c, rec
}

func withParams(c echo.Context, pairs ...string) echo.Context {
	var names, values []string
	for i := 0; i+1 < len(pairs); i += 2 {
		names = append(names, pairs[i])
		values = append(values, pairs[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
