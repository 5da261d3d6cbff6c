package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/middleware"
	"github.com/lendbook/lendbook-backend/internal/service"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/rs/zerolog/log"
)

// PaymentHandler handles repayment HTTP requests
type PaymentHandler struct {
	paymentService *service.PaymentService
	loanService    *service.LoanService
	scale          int32
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *service.PaymentService, loanService *service.LoanService, scale int32) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, loanService: loanService, scale: scale}
}

// RecordPaymentRequest represents the record payment request body
type RecordPaymentRequest struct {
	Amount      string  `json:"amount"`
	PaymentDate string  `json:"paymentDate,omitempty"`
	Method      string  `json:"method"`
	Reference   *string `json:"reference,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID                 int32   `json:"id"`
	LoanID             int32   `json:"loanId"`
	Amount             string  `json:"amount"`
	PaymentDate        string  `json:"paymentDate"`
	Method             string  `json:"method"`
	Reference          *string `json:"reference,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	RecordedBy         string  `json:"recordedBy"`
	PrincipalPortion   string  `json:"principalPortion"`
	InterestPortion    string  `json:"interestPortion"`
	OverpaymentPortion *string `json:"overpaymentPortion,omitempty"`
	CreatedAt          string  `json:"createdAt"`
}

// AllocationResponse shows how much of a payment landed on one installment
type AllocationResponse struct {
	InstallmentID int32  `json:"installmentId"`
	Sequence      int32  `json:"sequence"`
	Applied       string `json:"applied"`
	Principal     string `json:"principal"`
	Interest      string `json:"interest"`
	Status        string `json:"status"`
}

// RecordPaymentResponse is returned after a payment is stored
type RecordPaymentResponse struct {
	Payment       PaymentResponse      `json:"payment"`
	Allocations   []AllocationResponse `json:"allocations"`
	LoanCompleted bool                 `json:"loanCompleted"`
}

// RecordPayment godoc
// @Summary Record a repayment
// @Description Allocates the amount oldest installment first. Each installment's share is split between principal and interest in proportion to what that installment owes. Money beyond the schedule is kept as overpayment.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body RecordPaymentRequest true "Payment"
// @Success 201 {object} RecordPaymentResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 429 {object} ProblemDetails
// @Router /loans/{id}/payments [post]
func (h *PaymentHandler) RecordPayment(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req RecordPaymentRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	var fieldErrors []ValidationError
	amount, ok := parseDecimalField(req.Amount)
	if !ok {
		fieldErrors = append(fieldErrors, ValidationError{Field: "amount", Message: "Must be a valid decimal number"})
	}
	paymentDate, ok := parseOptionalDate(req.PaymentDate)
	if !ok {
		fieldErrors = append(fieldErrors, ValidationError{Field: "paymentDate", Message: "Must be in YYYY-MM-DD format"})
	}
	if len(fieldErrors) > 0 {
		return NewValidationError(c, "Invalid payment", fieldErrors)
	}

	result, err := h.paymentService.RecordPayment(c.Request().Context(), service.RecordPaymentInput{
		LoanID:      loanID,
		Amount:      amount,
		PaymentDate: paymentDate,
		Method:      domain.PaymentMethod(req.Method),
		Reference:   req.Reference,
		Notes:       req.Notes,
		RecordedBy:  actor.ID,
	})
	if err != nil {
		return handleServiceError(c, err, "record payment")
	}

	log.Info().
		Str("user_id", actor.ID.String()).
		Int32("loan_id", loanID).
		Int32("payment_id", result.Payment.ID).
		Bool("loan_completed", result.LoanCompleted).
		Msg("Payment recorded")

	allocations := make([]AllocationResponse, len(result.Allocations))
	for i, a := range result.Allocations {
		allocations[i] = AllocationResponse{
			InstallmentID: a.InstallmentID,
			Sequence:      a.Sequence,
			Applied:       money(a.Applied, h.scale),
			Principal:     money(a.Principal, h.scale),
			Interest:      money(a.Interest, h.scale),
			Status:        string(a.Status),
		}
	}
	return c.JSON(http.StatusCreated, RecordPaymentResponse{
		Payment:       toPaymentResponse(result.Payment, h.scale),
		Allocations:   allocations,
		LoanCompleted: result.LoanCompleted,
	})
}

// ListPayments handles GET /api/v1/loans/:id/payments
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), loanID)
	if err != nil {
		return handleServiceError(c, err, "get loan")
	}
	if !canViewLoan(actor, loan) {
		return NewForbiddenError(c, "You do not have access to this loan")
	}

	payments, err := h.paymentService.GetPayments(c.Request().Context(), loanID)
	if err != nil {
		return handleServiceError(c, err, "list payments")
	}

	response := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		response[i] = toPaymentResponse(p, h.scale)
	}
	return c.JSON(http.StatusOK, response)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid payment ID", nil)
	}

	payment, err := h.paymentService.GetPayment(c.Request().Context(), id)
	if err != nil {
		return handleServiceError(c, err, "get payment")
	}
	if !actor.Role.IsStaff() {
		loan, err := h.loanService.GetLoan(c.Request().Context(), payment.LoanID)
		if err != nil {
			return handleServiceError(c, err, "get loan")
		}
		if !canViewLoan(actor, loan) {
			return NewForbiddenError(c, "You do not have access to this payment")
		}
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment, h.scale))
}

func toPaymentResponse(p *domain.Payment, scale int32) PaymentResponse {
	resp := PaymentResponse{
		ID:               p.ID,
		LoanID:           p.LoanID,
		Amount:           money(p.Amount, scale),
		PaymentDate:      util.FormatDate(p.PaymentDate),
		Method:           string(p.Method),
		Reference:        p.Reference,
		Notes:            p.Notes,
		RecordedBy:       p.RecordedBy.String(),
		PrincipalPortion: money(p.PrincipalPortion, scale),
		InterestPortion:  money(p.InterestPortion, scale),
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
	if p.OverpaymentPortion != nil {
		over := money(*p.OverpaymentPortion, scale)
		resp.OverpaymentPortion = &over
	}
	return resp
}
