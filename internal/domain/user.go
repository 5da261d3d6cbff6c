package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidRole = newValidationError("role must be admin, officer or customer, and admins cannot demote themselves")

// Role decides what a user may see and do
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOfficer  Role = "officer"
	RoleCustomer Role = "customer"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleOfficer || r == RoleCustomer
}

// IsStaff reports whether the role belongs to lender staff
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleOfficer
}

// User represents a user in the system
type User struct {
	ID        uuid.UUID `json:"id"`
	Auth0ID   string    `json:"auth0Id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayName returns the name, or the email when no name is set
func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}

// UserRepository defines the interface for user persistence operations
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByAuth0ID(ctx context.Context, auth0ID string) (*User, error)
	// CreateOrGetByAuth0ID registers first-time users as customers
	CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*User, error)
	ListByRoles(ctx context.Context, roles ...Role) ([]*User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role Role) (*User, error)
}
