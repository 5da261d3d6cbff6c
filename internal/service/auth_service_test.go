package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveActor_RegistersCustomer(t *testing.T) {
	users := testutil.NewMockUserRepository()
	service := NewAuthService(users, testutil.NewMockAuditSink())
	name := "Amina"

	user, err := service.ResolveActor(context.Background(), "auth0|new", "amina@example.com", &name)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, user.Role)
	assert.Equal(t, "Amina", user.DisplayName())

	again, err := service.ResolveActor(context.Background(), "auth0|new", "amina@example.com", &name)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestResolveActor_EmptySubject(t *testing.T) {
	service := NewAuthService(testutil.NewMockUserRepository(), testutil.NewMockAuditSink())

	_, err := service.ResolveActor(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolveActor_StorageFailure(t *testing.T) {
	users := testutil.NewMockUserRepository()
	users.CreateFn = func(auth0ID, email string, name *string) (*domain.User, error) {
		return nil, testutil.ErrMockStorage
	}
	service := NewAuthService(users, testutil.NewMockAuditSink())

	_, err := service.ResolveActor(context.Background(), "auth0|x", "x@example.com", nil)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestGetUserByAuth0ID(t *testing.T) {
	users := testutil.NewMockUserRepository()
	service := NewAuthService(users, testutil.NewMockAuditSink())
	user := users.AddUser("auth0|known", domain.RoleOfficer)

	found, err := service.GetUserByAuth0ID(context.Background(), "auth0|known")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, domain.RoleOfficer, found.Role)

	_, err = service.GetUserByAuth0ID(context.Background(), "auth0|unknown")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUpdateRole(t *testing.T) {
	users := testutil.NewMockUserRepository()
	audit := testutil.NewMockAuditSink()
	service := NewAuthService(users, audit)
	ctx := context.Background()
	admin := users.AddUser("auth0|admin", domain.RoleAdmin)
	officer := users.AddUser("auth0|officer", domain.RoleOfficer)
	customer := users.AddUser("auth0|customer", domain.RoleCustomer)

	updated, err := service.UpdateRole(ctx, admin, customer.ID, domain.RoleOfficer)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOfficer, updated.Role)
	require.Len(t, audit.Entries, 1)
	assert.Equal(t, "customer", audit.Entries[0].OldValues["role"])
	assert.Equal(t, "officer", audit.Entries[0].NewValues["role"])

	_, err = service.UpdateRole(ctx, officer, customer.ID, domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = service.UpdateRole(ctx, admin, customer.ID, domain.Role("owner"))
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = service.UpdateRole(ctx, admin, admin.ID, domain.RoleOfficer)
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = service.UpdateRole(ctx, admin, uuid.New(), domain.RoleOfficer)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestListStaff(t *testing.T) {
	users := testutil.NewMockUserRepository()
	service := NewAuthService(users, testutil.NewMockAuditSink())
	users.AddUser("auth0|a", domain.RoleAdmin)
	users.AddUser("auth0|b", domain.RoleOfficer)
	users.AddUser("auth0|c", domain.RoleCustomer)

	staff, err := service.ListStaff(context.Background())
	require.NoError(t, err)
	assert.Len(t, staff, 2)
}
