package middleware

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

// CustomClaims contains the custom claims from Auth0 JWT
type CustomClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for JWT claims
	ClaimsKey contextKey = "claims"
	// Auth0IDKey is the context key for the Auth0 user ID (subject)
	Auth0IDKey contextKey = "auth0_id"
	// ActorKey is the context key for the resolved *domain.User
	ActorKey contextKey = "actor"
)

// TokenValidator checks a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (any, error)
}

// ActorResolver maps a verified identity to a user row, registering it on first sight
type ActorResolver interface {
	ResolveActor(ctx context.Context, auth0ID, email string, name *string) (*domain.User, error)
}

// AuthMiddleware provides JWT validation and actor resolution
type AuthMiddleware struct {
	validator TokenValidator
	resolver  ActorResolver
}

// NewAuthMiddleware creates a new AuthMiddleware with Auth0 configuration
func NewAuthMiddleware(domainName, audience string, resolver ActorResolver) (*AuthMiddleware, error) {
	issuerURL, err := url.Parse("https://" + domainName + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return NewAuthMiddlewareWithValidator(jwtValidator, resolver), nil
}

// NewAuthMiddlewareWithValidator wires an already configured token validator
func NewAuthMiddlewareWithValidator(v TokenValidator, resolver ActorResolver) *AuthMiddleware {
	return &AuthMiddleware{validator: v, resolver: resolver}
}

// Authenticate returns an Echo middleware that validates the bearer token and stores the
// acting user in the request context
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "Missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return unauthorizedError(c, "Invalid authorization header format")
			}

			claims, err := m.validator.ValidateToken(c.Request().Context(), parts[1])
			if err != nil {
				log.Debug().Err(err).Msg("Token validation failed")
				return unauthorizedError(c, "Invalid token")
			}

			validatedClaims, ok := claims.(*validator.ValidatedClaims)
			if !ok {
				return unauthorizedError(c, "Invalid claims")
			}

			auth0ID := validatedClaims.RegisteredClaims.Subject
			ctx := context.WithValue(c.Request().Context(), ClaimsKey, validatedClaims)
			ctx = context.WithValue(ctx, Auth0IDKey, auth0ID)

			if m.resolver != nil {
				var email string
				var name *string
				if custom, ok := validatedClaims.CustomClaims.(*CustomClaims); ok {
					email = custom.Email
					if custom.Name != "" {
						name = &custom.Name
					}
				}
				actor, err := m.resolver.ResolveActor(ctx, auth0ID, email, name)
				if err != nil {
					if errors.Is(err, domain.ErrUnauthorized) {
						return unauthorizedError(c, "Unknown user")
					}
					log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Actor resolution failed")
					return internalError(c, "Failed to resolve user")
				}
				ctx = context.WithValue(ctx, ActorKey, actor)
			}

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireRole rejects requests whose actor holds none of the given roles
func RequireRole(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := GetActor(c)
			if actor == nil {
				return unauthorizedError(c, "Authentication required")
			}
			for _, role := range roles {
				if actor.Role == role {
					return next(c)
				}
			}
			log.Debug().
				Str("user_id", actor.ID.String()).
				Str("role", string(actor.Role)).
				Str("path", c.Request().URL.Path).
				Msg("Role check failed")
			return forbiddenError(c, "Insufficient role for this operation")
		}
	}
}

// GetAuth0ID extracts the Auth0 user ID from the context
func GetAuth0ID(c echo.Context) string {
	if id, ok := c.Request().Context().Value(Auth0IDKey).(string); ok {
		return id
	}
	return ""
}

// GetClaims extracts the validated claims from the context
func GetClaims(c echo.Context) *validator.ValidatedClaims {
	if claims, ok := c.Request().Context().Value(ClaimsKey).(*validator.ValidatedClaims); ok {
		return claims
	}
	return nil
}

// GetCustomClaims extracts the custom claims from the context
func GetCustomClaims(c echo.Context) *CustomClaims {
	claims := GetClaims(c)
	if claims == nil {
		return nil
	}
	if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
		return custom
	}
	return nil
}

// GetActor extracts the acting user from the context
func GetActor(c echo.Context) *domain.User {
	if actor, ok := c.Request().Context().Value(ActorKey).(*domain.User); ok {
		return actor
	}
	return nil
}

// SetActor stores the acting user on the request
func SetActor(c echo.Context, actor *domain.User) {
	ctx := context.WithValue(c.Request().Context(), ActorKey, actor)
	c.SetRequest(c.Request().WithContext(ctx))
}
