package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
)

type fakeValidator struct {
	claims any
	err    error
	tokens []string
}

func (f *fakeValidator) ValidateToken(ctx context.Context, token string) (any, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

type fakeResolver struct {
	user  *domain.User
	err   error
	email string
	name  *string
}

func (f *fakeResolver) ResolveActor(ctx context.Context, auth0ID, email string, name *string) (*domain.User, error) {
	f.email = email
	f.name = name
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func validClaims(subject string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: subject},
		CustomClaims:     &CustomClaims{Email: "ada@example.com", Name: "Ada"},
	}
}

func runAuthenticate(m *AuthMiddleware, header string) (*httptest.ResponseRecorder, *domain.User, bool) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var actor *domain.User
	called := false
	_ = m.Authenticate()(func(c echo.Context) error {
		called = true
		actor = GetActor(c)
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, actor, called
}

func TestGetAuth0ID(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name     string
		setup    func(c echo.Context)
		expected string
	}{
		{
			name: "returns auth0 id when present",
			setup: func(c echo.Context) {
				ctx := context.WithValue(c.Request().Context(), Auth0IDKey, "auth0|12345")
				c.SetRequest(c.Request().WithContext(ctx))
			},
			expected: "auth0|12345",
		},
		{
			name:     "returns empty string when not present",
			setup:    func(c echo.Context) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			tt.setup(c)

			result := GetAuth0ID(c)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestGetCustomClaims(t *testing.T) {
	e := echo.New()

	t.Run("returns custom claims when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		ctx := context.WithValue(c.Request().Context(), ClaimsKey, validClaims("auth0|test"))
		c.SetRequest(c.Request().WithContext(ctx))

		result := GetCustomClaims(c)
		if result == nil {
			t.Fatal("Expected custom claims, got nil")
		}
		if result.Email != "ada@example.com" {
			t.Errorf("Expected email 'ada@example.com', got %q", result.Email)
		}
		if GetClaims(c).RegisteredClaims.Subject != "auth0|test" {
			t.Errorf("Expected subject 'auth0|test', got %q", GetClaims(c).RegisteredClaims.Subject)
		}
	})

	t.Run("returns nil when claims not present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if GetCustomClaims(c) != nil {
			t.Error("Expected nil, got custom claims")
		}
		if GetActor(c) != nil {
			t.Error("Expected nil actor")
		}
	})
}

func TestAuthenticate_ResolvesActor(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Auth0ID: "auth0|ada", Role: domain.RoleOfficer}
	v := &fakeValidator{claims: validClaims("auth0|ada")}
	resolver := &fakeResolver{user: user}
	m := NewAuthMiddlewareWithValidator(v, resolver)

	rec, actor, called := runAuthenticate(m, "Bearer good-token")

	if !called {
		t.Fatal("Expected next handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if actor != user {
		t.Errorf("Expected resolved actor in context, got %v", actor)
	}
	if len(v.tokens) != 1 || v.tokens[0] != "good-token" {
		t.Errorf("Expected token 'good-token' to be validated, got %v", v.tokens)
	}
	if resolver.email != "ada@example.com" || resolver.name == nil || *resolver.name != "Ada" {
		t.Errorf("Expected claims email and name to reach the resolver, got %q %v", resolver.email, resolver.name)
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		validator *fakeValidator
		resolver  *fakeResolver
		status    int
	}{
		{"missing header", "", &fakeValidator{claims: validClaims("a")}, &fakeResolver{}, http.StatusUnauthorized},
		{"no bearer prefix", "invalid-token", &fakeValidator{claims: validClaims("a")}, &fakeResolver{}, http.StatusUnauthorized},
		{"wrong prefix", "Basic token123", &fakeValidator{claims: validClaims("a")}, &fakeResolver{}, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", &fakeValidator{err: errors.New("expired")}, &fakeResolver{}, http.StatusUnauthorized},
		{"unexpected claims type", "Bearer odd", &fakeValidator{claims: "nope"}, &fakeResolver{}, http.StatusUnauthorized},
		{"unknown user", "Bearer t", &fakeValidator{claims: validClaims("")}, &fakeResolver{err: domain.ErrUnauthorized}, http.StatusUnauthorized},
		{"resolver failure", "Bearer t", &fakeValidator{claims: validClaims("a")}, &fakeResolver{err: errors.New("db down")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddlewareWithValidator(tt.validator, tt.resolver)
			rec, _, called := runAuthenticate(m, tt.header)

			if called {
				t.Error("Expected next handler not to be called")
			}
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name   string
		actor  *domain.User
		status int
	}{
		{"admin allowed", &domain.User{ID: uuid.New(), Role: domain.RoleAdmin}, http.StatusOK},
		{"officer allowed", &domain.User{ID: uuid.New(), Role: domain.RoleOfficer}, http.StatusOK},
		{"customer forbidden", &domain.User{ID: uuid.New(), Role: domain.RoleCustomer}, http.StatusForbidden},
		{"no actor", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.actor != nil {
				SetActor(c, tt.actor)
			}

			err := RequireRole(domain.RoleAdmin, domain.RoleOfficer)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})(c)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestCustomClaims_Validate(t *testing.T) {
	claims := &CustomClaims{Email: "test@example.com", Name: "Test"}

	if err := claims.Validate(context.Background()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}
