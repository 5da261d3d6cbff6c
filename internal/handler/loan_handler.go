package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/middleware"
	"github.com/lendbook/lendbook-backend/internal/service"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// LoanHandler handles loan-related HTTP requests
type LoanHandler struct {
	loanService    *service.LoanService
	balanceService *service.BalanceService
	scale          int32
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loanService *service.LoanService, balanceService *service.BalanceService, scale int32) *LoanHandler {
	return &LoanHandler{loanService: loanService, balanceService: balanceService, scale: scale}
}

// CreateLoanRequest represents the create loan request body
type CreateLoanRequest struct {
	CustomerID      string  `json:"customerId"`
	OfficerID       *string `json:"officerId,omitempty"`
	Principal       string  `json:"principal"`
	InterestRate    string  `json:"interestRate"`
	Term            int32   `json:"term"`
	TermUnit        string  `json:"termUnit"`
	ApplicationDate string  `json:"applicationDate,omitempty"`
	Purpose         *string `json:"purpose,omitempty"`
}

// DisburseLoanRequest represents the disburse loan request body
type DisburseLoanRequest struct {
	DisbursementDate string `json:"disbursementDate,omitempty"`
}

// UpdateInterestRateRequest represents the rate correction request body
type UpdateInterestRateRequest struct {
	InterestRate string `json:"interestRate"`
}

// LoanResponse represents a loan in API responses
type LoanResponse struct {
	ID               int32   `json:"id"`
	CustomerID       string  `json:"customerId"`
	OfficerID        *string `json:"officerId,omitempty"`
	Principal        string  `json:"principal"`
	InterestRate     string  `json:"interestRate"`
	Term             int32   `json:"term"`
	TermUnit         string  `json:"termUnit"`
	ApplicationDate  string  `json:"applicationDate"`
	DisbursementDate *string `json:"disbursementDate,omitempty"`
	Status           string  `json:"status"`
	Purpose          *string `json:"purpose,omitempty"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

// LoanWithScheduleResponse is a loan together with its installments
type LoanWithScheduleResponse struct {
	LoanResponse
	Schedule []InstallmentResponse `json:"schedule"`
}

// InstallmentResponse represents one schedule entry in API responses
type InstallmentResponse struct {
	ID               int32   `json:"id"`
	Sequence         int32   `json:"sequence"`
	DueDate          string  `json:"dueDate"`
	PrincipalDue     string  `json:"principalDue"`
	InterestDue      string  `json:"interestDue"`
	OriginalInterest string  `json:"originalInterest"`
	TotalDue         string  `json:"totalDue"`
	AmountPaid       string  `json:"amountPaid"`
	PrincipalPaid    string  `json:"principalPaid"`
	InterestPaid     string  `json:"interestPaid"`
	RemainingDue     string  `json:"remainingDue"`
	Status           string  `json:"status"`
	PaidAt           *string `json:"paidAt,omitempty"`
}

// LoanBalanceResponse represents a loan balance snapshot
type LoanBalanceResponse struct {
	LoanID                  int32  `json:"loanId"`
	Status                  string `json:"status"`
	Principal               string `json:"principal"`
	TotalDue                string `json:"totalDue"`
	TotalPaid               string `json:"totalPaid"`
	PrincipalPaid           string `json:"principalPaid"`
	InterestPaid            string `json:"interestPaid"`
	OutstandingBalance      string `json:"outstandingBalance"`
	Overpayment             string `json:"overpayment"`
	InstallmentCount        int    `json:"installmentCount"`
	PaidCount               int    `json:"paidCount"`
	OverdueCount            int    `json:"overdueCount"`
	PaymentCount            int64  `json:"paymentCount"`
	ScheduleMissing         bool   `json:"scheduleMissing"`
	OverpaymentApproximated bool   `json:"overpaymentApproximated"`
}

// CreateLoan godoc
// @Summary Create a loan application
// @Description Stores a pending loan and generates its repayment schedule from the application date
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateLoanRequest true "Loan application"
// @Success 201 {object} LoanWithScheduleResponse
// @Failure 400 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Router /loans [post]
func (h *LoanHandler) CreateLoan(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req CreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	var fieldErrors []ValidationError
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		fieldErrors = append(fieldErrors, ValidationError{Field: "customerId", Message: "Must be a valid UUID"})
	}
	var officerID *uuid.UUID
	if req.OfficerID != nil && *req.OfficerID != "" {
		id, err := uuid.Parse(*req.OfficerID)
		if err != nil {
			fieldErrors = append(fieldErrors, ValidationError{Field: "officerId", Message: "Must be a valid UUID"})
		} else {
			officerID = &id
		}
	}
	principal, ok := parseDecimalField(req.Principal)
	if !ok {
		fieldErrors = append(fieldErrors, ValidationError{Field: "principal", Message: "Must be a valid decimal number"})
	}
	rate, ok := parseDecimalField(req.InterestRate)
	if !ok {
		fieldErrors = append(fieldErrors, ValidationError{Field: "interestRate", Message: "Must be a valid decimal number"})
	}
	applicationDate, ok := parseOptionalDate(req.ApplicationDate)
	if !ok {
		fieldErrors = append(fieldErrors, ValidationError{Field: "applicationDate", Message: "Must be in YYYY-MM-DD format"})
	}
	if len(fieldErrors) > 0 {
		return NewValidationError(c, "Invalid loan application", fieldErrors)
	}

	loan, schedule, err := h.loanService.CreateLoan(c.Request().Context(), actor, service.CreateLoanInput{
		CustomerID:      customerID,
		OfficerID:       officerID,
		Principal:       principal,
		InterestRate:    rate,
		Term:            req.Term,
		TermUnit:        domain.TermUnit(req.TermUnit),
		ApplicationDate: applicationDate,
		Purpose:         req.Purpose,
	})
	if err != nil {
		return handleServiceError(c, err, "create loan")
	}

	log.Info().Str("user_id", actor.ID.String()).Int32("loan_id", loan.ID).Msg("Loan application created")

	return c.JSON(http.StatusCreated, LoanWithScheduleResponse{
		LoanResponse: toLoanResponse(loan, h.scale),
		Schedule:     toInstallmentResponses(schedule, h.scale),
	})
}

// ListLoans godoc
// @Summary List loans
// @Description Staff may filter by status, customer and officer. Customers only see their own loans.
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param customerId query string false "Filter by customer"
// @Param officerId query string false "Filter by officer"
// @Success 200 {array} LoanResponse
// @Failure 400 {object} ProblemDetails
// @Router /loans [get]
func (h *LoanHandler) ListLoans(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var filter domain.LoanFilter
	if status := c.QueryParam("status"); status != "" {
		filter.Status = domain.LoanStatus(status)
		if !filter.Status.IsValid() {
			return NewValidationError(c, "Invalid status parameter", []ValidationError{
				{Field: "status", Message: "Must be a known loan status"},
			})
		}
	}

	if actor.Role.IsStaff() {
		for _, p := range []struct {
			field string
			dest  **uuid.UUID
		}{{"customerId", &filter.CustomerID}, {"officerId", &filter.OfficerID}} {
			raw := c.QueryParam(p.field)
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return NewValidationError(c, "Invalid filter", []ValidationError{
					{Field: p.field, Message: "Must be a valid UUID"},
				})
			}
			*p.dest = &id
		}
	} else {
		filter.CustomerID = &actor.ID
	}

	loans, err := h.loanService.ListLoans(c.Request().Context(), filter)
	if err != nil {
		return handleServiceError(c, err, "list loans")
	}

	response := make([]LoanResponse, len(loans))
	for i, loan := range loans {
		response[i] = toLoanResponse(loan, h.scale)
	}
	return c.JSON(http.StatusOK, response)
}

// GetLoan handles GET /api/v1/loans/:id
func (h *LoanHandler) GetLoan(c echo.Context) error {
	loan, err := h.loadVisibleLoan(c)
	if err != nil || loan == nil {
		return err
	}
	return c.JSON(http.StatusOK, toLoanResponse(loan, h.scale))
}

// GetSchedule godoc
// @Summary Get repayment schedule
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {array} InstallmentResponse
// @Failure 404 {object} ProblemDetails
// @Router /loans/{id}/schedule [get]
func (h *LoanHandler) GetSchedule(c echo.Context) error {
	loan, err := h.loadVisibleLoan(c)
	if err != nil || loan == nil {
		return err
	}

	schedule, err := h.loanService.GetSchedule(c.Request().Context(), loan.ID)
	if err != nil {
		return handleServiceError(c, err, "get schedule")
	}
	return c.JSON(http.StatusOK, toInstallmentResponses(schedule, h.scale))
}

// GetBalance godoc
// @Summary Get loan balance
// @Description Outstanding balance, overpayment and payment totals, recomputed on every read
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} LoanBalanceResponse
// @Failure 404 {object} ProblemDetails
// @Router /loans/{id}/balance [get]
func (h *LoanHandler) GetBalance(c echo.Context) error {
	loan, err := h.loadVisibleLoan(c)
	if err != nil || loan == nil {
		return err
	}

	balance, err := h.balanceService.LoanBalance(c.Request().Context(), loan.ID)
	if err != nil {
		return handleServiceError(c, err, "get balance")
	}
	return c.JSON(http.StatusOK, toLoanBalanceResponse(balance, h.scale))
}

// ApproveLoan handles POST /api/v1/loans/:id/approve
func (h *LoanHandler) ApproveLoan(c echo.Context) error {
	return h.changeStatus(c, "approve loan", h.loanService.ApproveLoan)
}

// RejectLoan handles POST /api/v1/loans/:id/reject
func (h *LoanHandler) RejectLoan(c echo.Context) error {
	return h.changeStatus(c, "reject loan", h.loanService.RejectLoan)
}

// MarkDefaulted handles POST /api/v1/loans/:id/default
func (h *LoanHandler) MarkDefaulted(c echo.Context) error {
	return h.changeStatus(c, "mark loan defaulted", h.loanService.MarkDefaulted)
}

// DisburseLoan godoc
// @Summary Disburse an approved loan
// @Description Activates the loan and re-anchors its schedule on the disbursement date (today when omitted)
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body DisburseLoanRequest false "Disbursement date"
// @Success 200 {object} LoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /loans/{id}/disburse [post]
func (h *LoanHandler) DisburseLoan(c echo.Context) error {
	var req DisburseLoanRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewValidationError(c, "Invalid request body", nil)
		}
	}
	date, ok := parseOptionalDate(req.DisbursementDate)
	if !ok {
		return NewValidationError(c, "Invalid disbursement date", []ValidationError{
			{Field: "disbursementDate", Message: "Must be in YYYY-MM-DD format"},
		})
	}

	return h.changeStatus(c, "disburse loan", func(ctx context.Context, actorID uuid.UUID, id int32) (*domain.Loan, error) {
		return h.loanService.DisburseLoan(ctx, actorID, id, date)
	})
}

// UpdateInterestRate godoc
// @Summary Correct a loan's interest rate
// @Description Regenerates the schedule atomically. Refused once payments have been applied.
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body UpdateInterestRateRequest true "New rate"
// @Success 200 {object} LoanWithScheduleResponse
// @Failure 400 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /loans/{id}/interest-rate [put]
func (h *LoanHandler) UpdateInterestRate(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req UpdateInterestRateRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	rate, ok := parseDecimalField(req.InterestRate)
	if !ok {
		return NewValidationError(c, "Invalid interest rate", []ValidationError{
			{Field: "interestRate", Message: "Must be a valid decimal number"},
		})
	}

	loan, schedule, err := h.loanService.UpdateInterestRate(c.Request().Context(), actor.ID, id, rate)
	if err != nil {
		return handleServiceError(c, err, "update interest rate")
	}

	return c.JSON(http.StatusOK, LoanWithScheduleResponse{
		LoanResponse: toLoanResponse(loan, h.scale),
		Schedule:     toInstallmentResponses(schedule, h.scale),
	})
}

func (h *LoanHandler) changeStatus(c echo.Context, action string, fn func(ctx context.Context, actorID uuid.UUID, id int32) (*domain.Loan, error)) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := fn(c.Request().Context(), actor.ID, id)
	if err != nil {
		return handleServiceError(c, err, action)
	}
	return c.JSON(http.StatusOK, toLoanResponse(loan, h.scale))
}

// loadVisibleLoan fetches the :id loan and checks the actor may read it. A nil loan with
// a nil error means a response was already written.
func (h *LoanHandler) loadVisibleLoan(c echo.Context) (*domain.Loan, error) {
	actor := middleware.GetActor(c)
	if actor == nil {
		return nil, NewUnauthorizedError(c, "Authentication required")
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), id)
	if err != nil {
		return nil, handleServiceError(c, err, "get loan")
	}
	if !canViewLoan(actor, loan) {
		return nil, NewForbiddenError(c, "You do not have access to this loan")
	}
	return loan, nil
}

func canViewLoan(actor *domain.User, loan *domain.Loan) bool {
	return actor.Role.IsStaff() || loan.CustomerID == actor.ID
}

func money(d decimal.Decimal, scale int32) string {
	return d.StringFixed(scale)
}

func toLoanResponse(loan *domain.Loan, scale int32) LoanResponse {
	resp := LoanResponse{
		ID:              loan.ID,
		CustomerID:      loan.CustomerID.String(),
		Principal:       money(loan.Principal, scale),
		InterestRate:    loan.InterestRate.String(),
		Term:            loan.Term,
		TermUnit:        string(loan.TermUnit),
		ApplicationDate: util.FormatDate(loan.ApplicationDate),
		Status:          string(loan.Status),
		Purpose:         loan.Purpose,
		CreatedAt:       loan.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       loan.UpdatedAt.Format(time.RFC3339),
	}
	if loan.OfficerID != nil {
		officer := loan.OfficerID.String()
		resp.OfficerID = &officer
	}
	if loan.DisbursementDate != nil {
		disbursed := util.FormatDate(*loan.DisbursementDate)
		resp.DisbursementDate = &disbursed
	}
	return resp
}

func toInstallmentResponses(installments []*domain.Installment, scale int32) []InstallmentResponse {
	response := make([]InstallmentResponse, len(installments))
	for i, inst := range installments {
		response[i] = InstallmentResponse{
			ID:               inst.ID,
			Sequence:         inst.Sequence,
			DueDate:          util.FormatDate(inst.DueDate),
			PrincipalDue:     money(inst.PrincipalDue, scale),
			InterestDue:      money(inst.InterestDue, scale),
			OriginalInterest: money(inst.OriginalInterest, scale),
			TotalDue:         money(inst.TotalDue, scale),
			AmountPaid:       money(inst.AmountPaid, scale),
			PrincipalPaid:    money(inst.PrincipalPaid, scale),
			InterestPaid:     money(inst.InterestPaid, scale),
			RemainingDue:     money(inst.RemainingDue(), scale),
			Status:           string(inst.Status),
		}
		if inst.PaidAt != nil {
			paid := util.FormatDate(*inst.PaidAt)
			response[i].PaidAt = &paid
		}
	}
	return response
}

func toLoanBalanceResponse(b *domain.LoanBalance, scale int32) LoanBalanceResponse {
	return LoanBalanceResponse{
		LoanID:                  b.LoanID,
		Status:                  string(b.Status),
		Principal:               money(b.Principal, scale),
		TotalDue:                money(b.TotalDue, scale),
		TotalPaid:               money(b.TotalPaid, scale),
		PrincipalPaid:           money(b.PrincipalPaid, scale),
		InterestPaid:            money(b.InterestPaid, scale),
		OutstandingBalance:      money(b.OutstandingBalance, scale),
		Overpayment:             money(b.Overpayment, scale),
		InstallmentCount:        b.InstallmentCount,
		PaidCount:               b.PaidCount,
		OverdueCount:            b.OverdueCount,
		PaymentCount:            b.PaymentCount,
		ScheduleMissing:         b.ScheduleMissing,
		OverpaymentApproximated: b.OverpaymentApproximated,
	}
}
