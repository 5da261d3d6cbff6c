package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

// AuthService resolves authenticated identities to users and manages roles
type AuthService struct {
	userRepo domain.UserRepository
	audit    domain.AuditSink
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo domain.UserRepository, audit domain.AuditSink) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		audit:    audit,
	}
}

// ResolveActor returns the user behind an Auth0 subject, registering first-time users
// as customers
func (s *AuthService) ResolveActor(ctx context.Context, auth0ID, email string, name *string) (*domain.User, error) {
	if auth0ID == "" {
		return nil, domain.ErrUnauthorized
	}
	user, err := s.userRepo.CreateOrGetByAuth0ID(ctx, auth0ID, email, name)
	if err != nil {
		log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Failed to create or get user")
		return nil, domain.StorageError(err)
	}
	return user, nil
}

// GetUserByAuth0ID looks up an existing user without registering one
func (s *AuthService) GetUserByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	user, err := s.userRepo.GetByAuth0ID(ctx, auth0ID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return user, nil
}

// ListStaff returns every admin and officer
func (s *AuthService) ListStaff(ctx context.Context) ([]*domain.User, error) {
	users, err := s.userRepo.ListByRoles(ctx, domain.RoleAdmin, domain.RoleOfficer)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return users, nil
}

// UpdateRole changes a user's role. Admins cannot demote themselves.
func (s *AuthService) UpdateRole(ctx context.Context, actor *domain.User, userID uuid.UUID, role domain.Role) (*domain.User, error) {
	if actor == nil {
		return nil, domain.ErrActorRequired
	}
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	if !role.IsValid() {
		return nil, domain.ErrInvalidRole
	}
	if actor.ID == userID && role != domain.RoleAdmin {
		return nil, domain.ErrInvalidRole
	}

	before, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	oldRole := before.Role
	updated, err := s.userRepo.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, domain.StorageError(err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("role", string(role)).
		Msg("User role changed")

	s.audit.LogAudit(ctx, domain.AuditEntry{
		ActorID:   &actor.ID,
		Action:    domain.AuditUserRoleChanged,
		TableName: domain.AuditTableUsers,
		RecordID:  userID.String(),
		OldValues: map[string]any{"role": string(oldRole)},
		NewValues: map[string]any{"role": string(updated.Role)},
	})
	return updated, nil
}
