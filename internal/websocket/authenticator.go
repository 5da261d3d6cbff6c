package websocket

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/lendbook/lendbook-backend/internal/domain"
)

var (
	// ErrInvalidToken is returned when the upgrade token does not verify
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownUser is returned when a verified subject has never signed in to the API
	ErrUnknownUser = errors.New("unknown user")
)

// TokenValidator verifies a raw JWT and returns its claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (any, error)
}

// UserLookup finds the user behind an Auth0 subject without creating one
type UserLookup interface {
	GetUserByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error)
}

// Authenticator turns the token passed on the upgrade request into an Identity
type Authenticator struct {
	tokens TokenValidator
	users  UserLookup
}

// NewAuthenticator verifies RS256 tokens issued by the Auth0 tenant for audience
func NewAuthenticator(auth0Domain, audience string, users UserLookup) (*Authenticator, error) {
	issuer, err := url.Parse("https://" + auth0Domain + "/")
	if err != nil {
		return nil, err
	}

	tokens, err := validator.New(
		jwks.NewCachingProvider(issuer, 5*time.Minute).KeyFunc,
		validator.RS256,
		issuer.String(),
		[]string{audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}
	return NewAuthenticatorWithValidator(tokens, users), nil
}

// NewAuthenticatorWithValidator wires an already configured token validator
func NewAuthenticatorWithValidator(tokens TokenValidator, users UserLookup) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate verifies token and resolves the user and role it was issued for.
// Connections are only accepted for users the REST API has already registered.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := a.tokens.ValidateToken(ctx, token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok || validated.RegisteredClaims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	user, err := a.users.GetUserByAuth0ID(ctx, validated.RegisteredClaims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return Identity{}, ErrUnknownUser
		}
		return Identity{}, err
	}
	return Identity{UserID: user.ID, Role: user.Role}, nil
}
