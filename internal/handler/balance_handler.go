package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/middleware"
	"github.com/lendbook/lendbook-backend/internal/service"
)

// BalanceHandler serves customer-level balance summaries
type BalanceHandler struct {
	balanceService *service.BalanceService
	scale          int32
}

// NewBalanceHandler creates a new BalanceHandler
func NewBalanceHandler(balanceService *service.BalanceService, scale int32) *BalanceHandler {
	return &BalanceHandler{balanceService: balanceService, scale: scale}
}

// CustomerBalanceResponse sums the balances of a customer's loans
type CustomerBalanceResponse struct {
	CustomerID         string                `json:"customerId"`
	LoanCount          int                   `json:"loanCount"`
	TotalDue           string                `json:"totalDue"`
	TotalPaid          string                `json:"totalPaid"`
	OutstandingBalance string                `json:"outstandingBalance"`
	Overpayment        string                `json:"overpayment"`
	Loans              []LoanBalanceResponse `json:"loans"`
}

// GetCustomerBalance godoc
// @Summary Get a customer's balance across loans
// @Description Customers may only read their own balance
// @Tags balances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Customer ID"
// @Success 200 {object} CustomerBalanceResponse
// @Failure 403 {object} ProblemDetails
// @Router /customers/{id}/balance [get]
func (h *BalanceHandler) GetCustomerBalance(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var customerID uuid.UUID
	if raw := c.Param("id"); raw == "me" {
		customerID = actor.ID
	} else {
		id, err := uuid.Parse(raw)
		if err != nil {
			return NewValidationError(c, "Invalid customer ID", nil)
		}
		customerID = id
	}
	if !actor.Role.IsStaff() && customerID != actor.ID {
		return NewForbiddenError(c, "You do not have access to this customer")
	}

	balance, err := h.balanceService.CustomerBalance(c.Request().Context(), customerID)
	if err != nil {
		return handleServiceError(c, err, "get customer balance")
	}

	loans := make([]LoanBalanceResponse, len(balance.Loans))
	for i, b := range balance.Loans {
		loans[i] = toLoanBalanceResponse(b, h.scale)
	}
	return c.JSON(http.StatusOK, CustomerBalanceResponse{
		CustomerID:         balance.CustomerID.String(),
		LoanCount:          balance.LoanCount,
		TotalDue:           money(balance.TotalDue, h.scale),
		TotalPaid:          money(balance.TotalPaid, h.scale),
		OutstandingBalance: money(balance.OutstandingBalance, h.scale),
		Overpayment:        money(balance.Overpayment, h.scale),
		Loans:              loans,
	})
}
