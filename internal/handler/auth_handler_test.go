package handler

import (
	"net/http"
	"testing"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe(t *testing.T) {
	f := setupAPI(t)

	c, rec := f.newContext(http.MethodGet, "/api/v1/auth/me", "", f.officer)
	require.NoError(t, f.handlers.Auth.Me(c))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[UserResponse](t, rec)
	assert.Equal(t, f.officer.ID.String(), resp.ID)
	assert.Equal(t, "auth0|officer@example.com", resp.Email)
	assert.Equal(t, "officer", resp.Role)
}

func TestMe_NoActor(t *testing.T) {
	f := setupAPI(t)

	c, rec := f.newContext(http.MethodGet, "/api/v1/auth/me", "", nil)
	require.NoError(t, f.handlers.Auth.Me(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListStaff(t *testing.T) {
	f := setupAPI(t)

	c, rec := f.newContext(http.MethodGet, "/api/v1/users/staff", "", f.officer)
	require.NoError(t, f.handlers.Auth.ListStaff(c))
	require.Equal(t, http.StatusOK, rec.Code)

	staff := decode[[]UserResponse](t, rec)
	require.Len(t, staff, 2)
	assert.Equal(t, "admin", staff[0].Role)
	assert.Equal(t, "officer", staff[1].Role)
}

func TestUpdateRole(t *testing.T) {
	f := setupAPI(t)

	c, rec := f.newContext(http.MethodPut, "/api/v1/users/x/role", `{"role": "officer"}`, f.admin)
	require.NoError(t, f.handlers.Auth.UpdateRole(withParams(c, "id", f.customer.ID.String())))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "officer", decode[UserResponse](t, rec).Role)
	assert.Equal(t, domain.RoleOfficer, f.users.ByID[f.customer.ID].Role)

	require.Len(t, f.auditRepo.Entries, 1)
	entry := f.auditRepo.Entries[0]
	assert.Equal(t, domain.AuditTableUsers, entry.TableName)
	assert.Equal(t, f.customer.ID.String(), entry.RecordID)
	assert.Equal(t, "customer", entry.OldValues["role"])
	assert.Equal(t, "officer", entry.NewValues["role"])
}

func TestUpdateRole_Rejected(t *testing.T) {
	f := setupAPI(t)

	tests := []struct {
		name   string
		actor  *domain.User
		target string
		body   string
		status int
	}{
		{"unknown role", f.admin, f.customer.ID.String(), `{"role": "auditor"}`, http.StatusBadRequest},
		{"self demotion", f.admin, f.admin.ID.String(), `{"role": "officer"}`, http.StatusBadRequest},
		{"bad user id", f.admin, "someone", `{"role": "officer"}`, http.StatusBadRequest},
		{"missing user", f.admin, "00000000-0000-0000-0000-000000000001", `{"role": "officer"}`, http.StatusNotFound},
		{"officer cannot promote", f.officer, f.customer.ID.String(), `{"role": "admin"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := f.newContext(http.MethodPut, "/api/v1/users/"+tt.target+"/role", tt.body, tt.actor)
			require.NoError(t, f.handlers.Auth.UpdateRole(withParams(c, "id", tt.target)))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, domain.RoleCustomer, f.users.ByID[f.customer.ID].Role)
	assert.Empty(t, f.auditRepo.Entries)
}
