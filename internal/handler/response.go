package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error types
const (
	ErrorTypeValidation   = "https://lendbook.app/errors/validation"
	ErrorTypeNotFound     = "https://lendbook.app/errors/not-found"
	ErrorTypeUnauthorized = "https://lendbook.app/errors/unauthorized"
	ErrorTypeForbidden    = "https://lendbook.app/errors/forbidden"
	ErrorTypeConflict     = "https://lendbook.app/errors/conflict"
	ErrorTypeInternal     = "https://lendbook.app/errors/internal"
)

// problemTitles holds the title and type URI written for each status
var problemTitles = map[int][2]string{
	http.StatusBadRequest:          {"Validation Error", ErrorTypeValidation},
	http.StatusUnauthorized:        {"Unauthorized", ErrorTypeUnauthorized},
	http.StatusForbidden:           {"Forbidden", ErrorTypeForbidden},
	http.StatusNotFound:            {"Not Found", ErrorTypeNotFound},
	http.StatusConflict:            {"Conflict", ErrorTypeConflict},
	http.StatusInternalServerError: {"Internal Server Error", ErrorTypeInternal},
}

func writeProblem(c echo.Context, status int, detail string, fieldErrors []ValidationError) error {
	meta := problemTitles[status]
	return c.JSON(status, ProblemDetails{
		Type:     meta[1],
		Title:    meta[0],
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   fieldErrors,
	})
}

// NewValidationError writes a 400 with optional per-field errors
func NewValidationError(c echo.Context, detail string, fieldErrors []ValidationError) error {
	return writeProblem(c, http.StatusBadRequest, detail, fieldErrors)
}

func NewNotFoundError(c echo.Context, detail string) error {
	return writeProblem(c, http.StatusNotFound, detail, nil)
}

func NewUnauthorizedError(c echo.Context, detail string) error {
	return writeProblem(c, http.StatusUnauthorized, detail, nil)
}

func NewForbiddenError(c echo.Context, detail string) error {
	return writeProblem(c, http.StatusForbidden, detail, nil)
}

// NewConflictError reports a request that is not allowed in the record's current state
func NewConflictError(c echo.Context, detail string) error {
	return writeProblem(c, http.StatusConflict, detail, nil)
}

func NewInternalError(c echo.Context, detail string) error {
	return writeProblem(c, http.StatusInternalServerError, detail, nil)
}

// handleServiceError maps a domain error kind to its problem response. Storage and unknown
// failures are logged and reported as a generic internal error.
func handleServiceError(c echo.Context, err error, action string) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return NewValidationError(c, err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		return NewNotFoundError(c, err.Error())
	case errors.Is(err, domain.ErrStateConflict):
		return NewConflictError(c, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return NewForbiddenError(c, "You do not have access to this resource")
	case errors.Is(err, domain.ErrUnauthorized):
		return NewUnauthorizedError(c, "Authentication required")
	}
	log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Failed to " + action)
	return NewInternalError(c, "Failed to "+action+", please try again")
}

// parseIDParam reads a positive int32 path parameter
func parseIDParam(c echo.Context, name string) (int32, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int32(id), true
}

// parseDecimalField parses a required decimal string
func parseDecimalField(value string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// parseOptionalDate parses an optional YYYY-MM-DD value; empty returns the zero time
func parseOptionalDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

const dateLayout = "2006-01-02"
