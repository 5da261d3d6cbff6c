package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/middleware"
	"github.com/lendbook/lendbook-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles user and role HTTP requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      *string `json:"name"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"createdAt"`
}

// UpdateRoleRequest represents the role change request body
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// Me returns the current authenticated user
// GET /auth/me
func (h *AuthHandler) Me(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		log.Error().Msg("No actor in context - middleware may not be configured")
		return NewUnauthorizedError(c, "Authentication required")
	}
	return c.JSON(http.StatusOK, toUserResponse(actor))
}

// ListStaff godoc
// @Summary List staff
// @Description Admins and officers, for assigning loans
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse
// @Router /users/staff [get]
func (h *AuthHandler) ListStaff(c echo.Context) error {
	users, err := h.authService.ListStaff(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err, "list staff")
	}
	response := make([]UserResponse, len(users))
	for i, u := range users {
		response[i] = toUserResponse(u)
	}
	return c.JSON(http.StatusOK, response)
}

// UpdateRole godoc
// @Summary Change a user's role
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateRoleRequest true "New role"
// @Success 200 {object} UserResponse
// @Failure 400 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /users/{id}/role [put]
func (h *AuthHandler) UpdateRole(c echo.Context) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid user ID", nil)
	}

	var req UpdateRoleRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	user, err := h.authService.UpdateRole(c.Request().Context(), actor, userID, domain.Role(req.Role))
	if err != nil {
		return handleServiceError(c, err, "update role")
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}
