package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/middleware"
	"github.com/lendbook/lendbook-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// AdminHandler exposes manual accrual runs and the audit trail
type AdminHandler struct {
	worker          *service.AccrualWorker
	overdueNotifier *service.OverdueNotifier
	auditService    *service.AuditService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(worker *service.AccrualWorker, overdueNotifier *service.OverdueNotifier, auditService *service.AuditService) *AdminHandler {
	return &AdminHandler{worker: worker, overdueNotifier: overdueNotifier, auditService: auditService}
}

// RunRequest carries an optional as-of date for manual runs
type RunRequest struct {
	AsOf string `json:"asOf,omitempty"`
}

var auditTables = map[string]bool{
	domain.AuditTableLoans:        true,
	domain.AuditTableLoanPayments: true,
	domain.AuditTableInstallments: true,
	domain.AuditTableUsers:        true,
}

// RunAccrual godoc
// @Summary Run overdue accrual now
// @Description Accrues overdue interest as of the given date (today when omitted), then sends overdue alerts
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RunRequest false "As-of date"
// @Success 200 {object} service.RunResult
// @Failure 400 {object} ProblemDetails
// @Router /admin/accrual/run [post]
func (h *AdminHandler) RunAccrual(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	req, ok := bindRunRequest(c)
	if !ok {
		return NewValidationError(c, "Invalid as-of date", []ValidationError{
			{Field: "asOf", Message: "Must be in YYYY-MM-DD format"},
		})
	}
	asOf, _ := parseOptionalDate(req.AsOf)

	result, err := h.worker.RunNow(c.Request().Context(), asOf, &actor.ID)
	if err != nil {
		return handleServiceError(c, err, "run accrual")
	}

	log.Info().
		Str("user_id", actor.ID.String()).
		Int("updated_count", result.Accrual.UpdatedCount).
		Msg("Manual accrual run completed")
	return c.JSON(http.StatusOK, result)
}

// NotifyOverdue godoc
// @Summary Send overdue alerts now
// @Description Alerts admins and assigned officers about overdue loans, at most once per loan per day
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RunRequest false "As-of date"
// @Success 200 {object} domain.OverdueNotifyResult
// @Router /admin/overdue/notify [post]
func (h *AdminHandler) NotifyOverdue(c echo.Context) error {
	req, ok := bindRunRequest(c)
	if !ok {
		return NewValidationError(c, "Invalid as-of date", []ValidationError{
			{Field: "asOf", Message: "Must be in YYYY-MM-DD format"},
		})
	}
	asOf, _ := parseOptionalDate(req.AsOf)

	result, err := h.overdueNotifier.NotifyOverdue(c.Request().Context(), asOf)
	if err != nil {
		return handleServiceError(c, err, "notify overdue loans")
	}
	return c.JSON(http.StatusOK, result)
}

// ListAudit handles GET /api/v1/admin/audit/:table/:recordId
func (h *AdminHandler) ListAudit(c echo.Context) error {
	table := c.Param("table")
	if !auditTables[table] {
		return NewValidationError(c, "Unknown audit table", []ValidationError{
			{Field: "table", Message: "Must be loans, loan_payments, loan_installments or users"},
		})
	}
	recordID := c.Param("recordId")
	if table != domain.AuditTableUsers && table != domain.AuditTableInstallments {
		if _, err := strconv.ParseInt(recordID, 10, 32); err != nil {
			return NewValidationError(c, "Invalid record ID", nil)
		}
	}

	entries, err := h.auditService.ListByRecord(c.Request().Context(), table, recordID)
	if err != nil {
		return handleServiceError(c, err, "list audit entries")
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func bindRunRequest(c echo.Context) (RunRequest, bool) {
	var req RunRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return req, false
		}
	}
	if req.AsOf == "" {
		req.AsOf = c.QueryParam("asOf")
	}
	_, ok := parseOptionalDate(req.AsOf)
	return req, ok
}
