package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/middleware"
)

// Handlers groups every API handler for route registration
type Handlers struct {
	Auth         *AuthHandler
	Loan         *LoanHandler
	Payment      *PaymentHandler
	Balance      *BalanceHandler
	Notification *NotificationHandler
	Admin        *AdminHandler
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, paymentLimiter *middleware.RateLimiter, h Handlers) {
	api := e.Group("/api/v1")
	api.Use(authMiddleware.Authenticate())

	staff := middleware.RequireRole(domain.RoleAdmin, domain.RoleOfficer)
	admin := middleware.RequireRole(domain.RoleAdmin)

	// Auth routes
	auth := api.Group("/auth")
	auth.GET("/me", h.Auth.Me)

	// User routes
	users := api.Group("/users")
	users.GET("/staff", h.Auth.ListStaff, staff)
	users.PUT("/:id/role", h.Auth.UpdateRole, admin)

	// Loan routes; customers may read their own loans
	loans := api.Group("/loans")
	loans.POST("", h.Loan.CreateLoan, staff)
	loans.GET("", h.Loan.ListLoans)
	loans.GET("/:id", h.Loan.GetLoan)
	loans.GET("/:id/schedule", h.Loan.GetSchedule)
	loans.GET("/:id/balance", h.Loan.GetBalance)
	loans.POST("/:id/approve", h.Loan.ApproveLoan, staff)
	loans.POST("/:id/reject", h.Loan.RejectLoan, staff)
	loans.POST("/:id/disburse", h.Loan.DisburseLoan, staff)
	loans.POST("/:id/default", h.Loan.MarkDefaulted, admin)
	loans.PUT("/:id/interest-rate", h.Loan.UpdateInterestRate, admin)

	// Payment routes
	loans.GET("/:id/payments", h.Payment.ListPayments)
	loans.POST("/:id/payments", h.Payment.RecordPayment, staff, middleware.RateLimitMiddleware(paymentLimiter))
	api.GET("/payments/:id", h.Payment.GetPayment)

	// Balance routes
	api.GET("/customers/:id/balance", h.Balance.GetCustomerBalance)

	// Notification routes
	notifications := api.Group("/notifications")
	notifications.GET("", h.Notification.ListNotifications)
	notifications.PATCH("/:id/read", h.Notification.MarkRead)

	// Admin routes
	adminGroup := api.Group("/admin", admin)
	adminGroup.POST("/accrual/run", h.Admin.RunAccrual)
	adminGroup.POST("/overdue/notify", h.Admin.NotifyOverdue)
	adminGroup.GET("/audit/:table/:recordId", h.Admin.ListAudit)
}
