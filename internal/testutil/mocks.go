package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/websocket"
	"github.com/shopspring/decimal"
)

// Snapshotter is implemented by mocks whose state MockTransactor restores when a unit of
// work fails
type Snapshotter interface {
	Snapshot() (restore func())
}

// MockTx is the tx value handed to repositories by MockTransactor
type MockTx struct{}

// MockTransactor is a mock implementation of domain.Transactor. Units of work run one at a
// time, which stands in for the row lock the real implementation takes. On error every
// registered repository is rolled back to its state before the unit of work started.
type MockTransactor struct {
	mu        sync.Mutex
	repos     []Snapshotter
	Calls     int
	Commits   int
	Rollbacks int
	BeginErr  error
}

// NewMockTransactor creates a new MockTransactor rolling back the given repositories
func NewMockTransactor(repos ...Snapshotter) *MockTransactor {
	return &MockTransactor{repos: repos}
}

// WithinTx runs fn serialized with every other unit of work
func (m *MockTransactor) WithinTx(ctx context.Context, fn func(tx any) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.BeginErr != nil {
		return m.BeginErr
	}

	restores := make([]func(), 0, len(m.repos))
	for _, r := range m.repos {
		restores = append(restores, r.Snapshot())
	}

	if err := fn(MockTx{}); err != nil {
		for _, restore := range restores {
			restore()
		}
		m.Rollbacks++
		return err
	}
	m.Commits++
	return nil
}

// MockLoanRepository is a mock implementation of domain.LoanRepository
type MockLoanRepository struct {
	mu              sync.Mutex
	Loans           map[int32]*domain.Loan
	NextID          int32
	LockedIDs       []int32
	GetByIDErr      error
	UpdateStatusErr error
}

// NewMockLoanRepository creates a new MockLoanRepository
func NewMockLoanRepository() *MockLoanRepository {
	return &MockLoanRepository{
		Loans:  make(map[int32]*domain.Loan),
		NextID: 1,
	}
}

func cloneLoan(l *domain.Loan) *domain.Loan {
	c := *l
	return &c
}

// AddLoan stores a loan directly, assigning an ID when it has none
func (m *MockLoanRepository) AddLoan(loan *domain.Loan) *domain.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()

	if loan.ID == 0 {
		loan.ID = m.NextID
		m.NextID++
	} else if loan.ID >= m.NextID {
		m.NextID = loan.ID + 1
	}
	m.Loans[loan.ID] = cloneLoan(loan)
	return loan
}

// Snapshot implements Snapshotter
func (m *MockLoanRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[int32]*domain.Loan, len(m.Loans))
	for id, l := range m.Loans {
		saved[id] = cloneLoan(l)
	}
	nextID := m.NextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.Loans = saved
		m.NextID = nextID
	}
}

// CreateTx creates a new loan
func (m *MockLoanRepository) CreateTx(ctx context.Context, tx any, loan *domain.Loan) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := cloneLoan(loan)
	created.ID = m.NextID
	m.NextID++
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	m.Loans[created.ID] = created
	return cloneLoan(created), nil
}

// GetByID retrieves a loan by ID
func (m *MockLoanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	loan, ok := m.Loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	return cloneLoan(loan), nil
}

// GetByIDForUpdateTx retrieves a loan and records that it was locked
func (m *MockLoanRepository) GetByIDForUpdateTx(ctx context.Context, tx any, id int32) (*domain.Loan, error) {
	m.mu.Lock()
	m.LockedIDs = append(m.LockedIDs, id)
	m.mu.Unlock()
	return m.GetByID(ctx, id)
}

// List retrieves loans matching the filter, newest first
func (m *MockLoanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.Loan, 0)
	for _, l := range m.Loans {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.CustomerID != nil && l.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.OfficerID != nil && (l.OfficerID == nil || *l.OfficerID != *filter.OfficerID) {
			continue
		}
		result = append(result, cloneLoan(l))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

// UpdateStatusTx sets the loan status and, when given, the disbursement date
func (m *MockLoanRepository) UpdateStatusTx(ctx context.Context, tx any, id int32, status domain.LoanStatus, disbursementDate *time.Time) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateStatusErr != nil {
		return nil, m.UpdateStatusErr
	}
	loan, ok := m.Loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	loan.Status = status
	if disbursementDate != nil {
		d := *disbursementDate
		loan.DisbursementDate = &d
	}
	loan.UpdatedAt = time.Now()
	return cloneLoan(loan), nil
}

// UpdateInterestRateTx corrects the loan's interest rate
func (m *MockLoanRepository) UpdateInterestRateTx(ctx context.Context, tx any, id int32, rate decimal.Decimal) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.Loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	loan.InterestRate = rate
	loan.UpdatedAt = time.Now()
	return cloneLoan(loan), nil
}

func (m *MockLoanRepository) status(id int32) (domain.LoanStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.Loans[id]
	if !ok {
		return "", false
	}
	return loan.Status, true
}

// MockInstallmentRepository is a mock implementation of domain.InstallmentRepository.
// When Loans is set, the accrual listings only consider active loans.
type MockInstallmentRepository struct {
	mu                    sync.Mutex
	ByLoan                map[int32][]*domain.Installment
	NextID                int32
	Loans                 *MockLoanRepository
	UpdateAccrualCalls    int
	UpdateAllocationCalls int
	CreateBatchErr        error
	UpdateAccrualErr      error
	UpdateAllocationErr   error
}

// NewMockInstallmentRepository creates a new MockInstallmentRepository
func NewMockInstallmentRepository() *MockInstallmentRepository {
	return &MockInstallmentRepository{
		ByLoan: make(map[int32][]*domain.Installment),
		NextID: 1,
	}
}

func cloneInstallment(i *domain.Installment) *domain.Installment {
	c := *i
	if i.PaidAt != nil {
		paidAt := *i.PaidAt
		c.PaidAt = &paidAt
	}
	return &c
}

func cloneInstallments(list []*domain.Installment) []*domain.Installment {
	out := make([]*domain.Installment, len(list))
	for i, inst := range list {
		out[i] = cloneInstallment(inst)
	}
	return out
}

// AddInstallments stores installments directly, assigning IDs
func (m *MockInstallmentRepository) AddInstallments(installments ...*domain.Installment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range installments {
		inst.ID = m.NextID
		m.NextID++
		m.ByLoan[inst.LoanID] = append(m.ByLoan[inst.LoanID], cloneInstallment(inst))
	}
}

// Snapshot implements Snapshotter
func (m *MockInstallmentRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[int32][]*domain.Installment, len(m.ByLoan))
	for loanID, list := range m.ByLoan {
		saved[loanID] = cloneInstallments(list)
	}
	nextID := m.NextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.ByLoan = saved
		m.NextID = nextID
	}
}

// CreateBatchTx stores a schedule
func (m *MockInstallmentRepository) CreateBatchTx(ctx context.Context, tx any, installments []*domain.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateBatchErr != nil {
		return m.CreateBatchErr
	}
	for _, inst := range installments {
		inst.ID = m.NextID
		m.NextID++
		inst.CreatedAt = time.Now()
		inst.UpdatedAt = inst.CreatedAt
		m.ByLoan[inst.LoanID] = append(m.ByLoan[inst.LoanID], cloneInstallment(inst))
	}
	return nil
}

// DeleteByLoanIDTx removes a loan's schedule
func (m *MockInstallmentRepository) DeleteByLoanIDTx(ctx context.Context, tx any, loanID int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.ByLoan[loanID]))
	delete(m.ByLoan, loanID)
	return n, nil
}

// GetByLoanID returns a loan's schedule ordered by due date then sequence
func (m *MockInstallmentRepository) GetByLoanID(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := cloneInstallments(m.ByLoan[loanID])
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].DueDate.Equal(list[j].DueDate) {
			return list[i].DueDate.Before(list[j].DueDate)
		}
		return list[i].Sequence < list[j].Sequence
	})
	return list, nil
}

// GetByLoanIDTx is GetByLoanID inside a transaction
func (m *MockInstallmentRepository) GetByLoanIDTx(ctx context.Context, tx any, loanID int32) ([]*domain.Installment, error) {
	return m.GetByLoanID(ctx, loanID)
}

func (m *MockInstallmentRepository) find(id int32) *domain.Installment {
	for _, list := range m.ByLoan {
		for _, inst := range list {
			if inst.ID == id {
				return inst
			}
		}
	}
	return nil
}

// UpdateAccrualTx writes accrued interest, total and status
func (m *MockInstallmentRepository) UpdateAccrualTx(ctx context.Context, tx any, inst *domain.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateAccrualCalls++
	if m.UpdateAccrualErr != nil {
		return m.UpdateAccrualErr
	}
	stored := m.find(inst.ID)
	if stored == nil {
		return domain.ErrInstallmentNotFound
	}
	stored.InterestDue = inst.InterestDue
	stored.TotalDue = inst.TotalDue
	stored.Status = inst.Status
	return nil
}

// UpdateAllocationTx writes paid amounts and status
func (m *MockInstallmentRepository) UpdateAllocationTx(ctx context.Context, tx any, inst *domain.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateAllocationCalls++
	if m.UpdateAllocationErr != nil {
		return m.UpdateAllocationErr
	}
	stored := m.find(inst.ID)
	if stored == nil {
		return domain.ErrInstallmentNotFound
	}
	stored.AmountPaid = inst.AmountPaid
	stored.PrincipalPaid = inst.PrincipalPaid
	stored.InterestPaid = inst.InterestPaid
	stored.Status = inst.Status
	stored.PaidAt = nil
	if inst.PaidAt != nil {
		paidAt := *inst.PaidAt
		stored.PaidAt = &paidAt
	}
	return nil
}

func (m *MockInstallmentRepository) loanIsActive(loanID int32) bool {
	if m.Loans == nil {
		return true
	}
	status, ok := m.Loans.status(loanID)
	return ok && status == domain.LoanStatusActive
}

// ListLoanIDsForAccrual returns active loans with open installments due before asOf
func (m *MockInstallmentRepository) ListLoanIDsForAccrual(ctx context.Context, asOf time.Time) ([]int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int32, 0)
	for loanID, list := range m.ByLoan {
		if !m.loanIsActive(loanID) {
			continue
		}
		for _, inst := range list {
			if inst.Status.IsOpen() && inst.DueDate.Before(asOf) {
				ids = append(ids, loanID)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListLoanIDsWithOverdue returns active loans with at least one overdue installment
func (m *MockInstallmentRepository) ListLoanIDsWithOverdue(ctx context.Context) ([]int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int32, 0)
	for loanID, list := range m.ByLoan {
		if !m.loanIsActive(loanID) {
			continue
		}
		for _, inst := range list {
			if inst.Status == domain.InstallmentOverdue {
				ids = append(ids, loanID)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// MockPaymentRepository is a mock implementation of domain.PaymentRepository
type MockPaymentRepository struct {
	mu        sync.Mutex
	Payments  map[int32]*domain.Payment
	NextID    int32
	CreateErr error
}

// NewMockPaymentRepository creates a new MockPaymentRepository
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		Payments: make(map[int32]*domain.Payment),
		NextID:   1,
	}
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	if p.OverpaymentPortion != nil {
		o := *p.OverpaymentPortion
		c.OverpaymentPortion = &o
	}
	return &c
}

// AddPayment stores a payment directly, assigning an ID
func (m *MockPaymentRepository) AddPayment(p *domain.Payment) *domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.NextID
	m.NextID++
	m.Payments[p.ID] = clonePayment(p)
	return p
}

// Snapshot implements Snapshotter
func (m *MockPaymentRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[int32]*domain.Payment, len(m.Payments))
	for id, p := range m.Payments {
		saved[id] = clonePayment(p)
	}
	nextID := m.NextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.Payments = saved
		m.NextID = nextID
	}
}

// CreateTx stores a payment
func (m *MockPaymentRepository) CreateTx(ctx context.Context, tx any, payment *domain.Payment) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	created := clonePayment(payment)
	created.ID = m.NextID
	m.NextID++
	created.CreatedAt = time.Now()
	m.Payments[created.ID] = created
	return clonePayment(created), nil
}

// GetByID retrieves a payment by ID
func (m *MockPaymentRepository) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.Payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

// GetByLoanID lists a loan's payments by date then ID
func (m *MockPaymentRepository) GetByLoanID(ctx context.Context, loanID int32) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.Payment, 0)
	for _, p := range m.Payments {
		if p.LoanID == loanID {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaymentDate.Equal(result[j].PaymentDate) {
			return result[i].PaymentDate.Before(result[j].PaymentDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CountByLoanIDTx counts a loan's payments
func (m *MockPaymentRepository) CountByLoanIDTx(ctx context.Context, tx any, loanID int32) (int64, error) {
	payments, _ := m.GetByLoanID(ctx, loanID)
	return int64(len(payments)), nil
}

// GetTotals sums a loan's payments
func (m *MockPaymentRepository) GetTotals(ctx context.Context, loanID int32) (*domain.PaymentTotals, error) {
	payments, _ := m.GetByLoanID(ctx, loanID)
	totals := &domain.PaymentTotals{}
	for _, p := range payments {
		totals.Count++
		totals.Amount = totals.Amount.Add(p.Amount)
		totals.Principal = totals.Principal.Add(p.PrincipalPortion)
		totals.Interest = totals.Interest.Add(p.InterestPortion)
		if p.OverpaymentPortion == nil {
			totals.LegacyCount++
			continue
		}
		totals.Overpayment = totals.Overpayment.Add(*p.OverpaymentPortion)
	}
	return totals, nil
}

// MockUserRepository is a mock implementation of domain.UserRepository
type MockUserRepository struct {
	mu       sync.Mutex
	Users    map[string]*domain.User
	ByID     map[uuid.UUID]*domain.User
	Lookups  int
	CreateFn func(auth0ID, email string, name *string) (*domain.User, error)
}

// NewMockUserRepository creates a new MockUserRepository
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
		ByID:  make(map[uuid.UUID]*domain.User),
	}
}

// AddUser stores a user with the given role and returns it
func (m *MockUserRepository) AddUser(auth0ID string, role domain.Role) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := &domain.User{
		ID:      uuid.New(),
		Auth0ID: auth0ID,
		Email:   auth0ID + "@example.com",
		Role:    role,
	}
	m.Users[auth0ID] = user
	m.ByID[user.ID] = user
	return user
}

// GetByID retrieves a user by ID
func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.ByID[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

// GetByAuth0ID retrieves a user by Auth0 ID
func (m *MockUserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Lookups++
	if user, ok := m.Users[auth0ID]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

// CreateOrGetByAuth0ID creates a customer or retrieves the existing user
func (m *MockUserRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*domain.User, error) {
	if m.CreateFn != nil {
		return m.CreateFn(auth0ID, email, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Lookups++
	if user, ok := m.Users[auth0ID]; ok {
		return user, nil
	}
	user := &domain.User{
		ID:      uuid.New(),
		Auth0ID: auth0ID,
		Email:   email,
		Name:    name,
		Role:    domain.RoleCustomer,
	}
	m.Users[auth0ID] = user
	m.ByID[user.ID] = user
	return user, nil
}

// ListByRoles returns users holding any of the roles
func (m *MockUserRepository) ListByRoles(ctx context.Context, roles ...domain.Role) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}
	result := make([]*domain.User, 0)
	for _, u := range m.ByID {
		if wanted[u.Role] {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Auth0ID < result[j].Auth0ID })
	return result, nil
}

// UpdateRole changes a user's role
func (m *MockUserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.ByID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user.Role = role
	return user, nil
}

// MockNotificationRepository is a mock implementation of domain.NotificationRepository
type MockNotificationRepository struct {
	mu            sync.Mutex
	Notifications []*domain.Notification
	Claims        map[string]bool
	NextID        int64
	CreateErr     error
	ClaimErr      error
}

// NewMockNotificationRepository creates a new MockNotificationRepository
func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		Claims: make(map[string]bool),
		NextID: 1,
	}
}

// Create stores a notification
func (m *MockNotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	created := *n
	created.ID = m.NextID
	m.NextID++
	created.CreatedAt = time.Now()
	m.Notifications = append(m.Notifications, &created)
	out := created
	return &out, nil
}

// ListByUser returns a user's notifications, newest first
func (m *MockNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int32) ([]*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.Notification, 0)
	for i := len(m.Notifications) - 1; i >= 0; i-- {
		n := m.Notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		c := *n
		result = append(result, &c)
		if limit > 0 && int32(len(result)) >= limit {
			break
		}
	}
	return result, nil
}

// MarkRead marks a notification as read
func (m *MockNotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.Notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}

// ClaimOnce reports true only the first time a key is seen
func (m *MockNotificationRepository) ClaimOnce(ctx context.Context, key domain.NotificationKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClaimErr != nil {
		return false, m.ClaimErr
	}
	k := fmt.Sprintf("%d|%s|%s", key.LoanID, key.NotifyDate.Format("2006-01-02"), key.Kind)
	if m.Claims[k] {
		return false, nil
	}
	m.Claims[k] = true
	return true, nil
}

// MockAuditRepository is a mock implementation of domain.AuditRepository
type MockAuditRepository struct {
	mu        sync.Mutex
	Entries   []*domain.AuditEntry
	CreateErr error
}

// NewMockAuditRepository creates a new MockAuditRepository
func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

// Create stores an audit entry
func (m *MockAuditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	c := *entry
	c.ID = int64(len(m.Entries) + 1)
	c.CreatedAt = time.Now()
	m.Entries = append(m.Entries, &c)
	return nil
}

// ListByRecord returns entries for one record, oldest first
func (m *MockAuditRepository) ListByRecord(ctx context.Context, tableName, recordID string) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.AuditEntry, 0)
	for _, e := range m.Entries {
		if e.TableName == tableName && e.RecordID == recordID {
			result = append(result, e)
		}
	}
	return result, nil
}

// MockAuditSink records audit entries in memory
type MockAuditSink struct {
	mu      sync.Mutex
	Entries []domain.AuditEntry
}

// NewMockAuditSink creates a new MockAuditSink
func NewMockAuditSink() *MockAuditSink {
	return &MockAuditSink{}
}

// LogAudit implements domain.AuditSink
func (m *MockAuditSink) LogAudit(ctx context.Context, entry domain.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

// Actions returns the recorded actions in order
func (m *MockAuditSink) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	actions := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		actions[i] = e.Action
	}
	return actions
}

// MockNotificationSink records notifications in memory
type MockNotificationSink struct {
	mu   sync.Mutex
	Sent []domain.Notification
}

// NewMockNotificationSink creates a new MockNotificationSink
func NewMockNotificationSink() *MockNotificationSink {
	return &MockNotificationSink{}
}

// SendNotification implements domain.NotificationSink
func (m *MockNotificationSink) SendNotification(ctx context.Context, n domain.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
}

// ForUser returns the notifications sent to one user
func (m *MockNotificationSink) ForUser(userID uuid.UUID) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]domain.Notification, 0)
	for _, n := range m.Sent {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	return result
}

// Count returns how many notifications were sent
func (m *MockNotificationSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// PublishedEvent is one call to MockEventPublisher. Staff events carry no UserID.
type PublishedEvent struct {
	UserID uuid.UUID
	Staff  bool
	Event  websocket.Event
}

// MockEventPublisher is a mock implementation of websocket.EventPublisher
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

// Publish records the event
func (m *MockEventPublisher) Publish(userID uuid.UUID, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{UserID: userID, Event: event})
}

// PublishToStaff records a staff broadcast
func (m *MockEventPublisher) PublishToStaff(event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{Staff: true, Event: event})
}

// Types returns the published event types in order
func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]string, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Event.Type
	}
	return types
}

// ErrMockStorage is a generic infrastructure failure for injecting into mocks
var ErrMockStorage = errors.New("mock storage failure")
