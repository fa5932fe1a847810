package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesauto.org/internal/rbac"
	"salesauto.org/internal/store/memory"
)

type lead struct {
	owner     string
	creator   string
	protected bool
}

func (l lead) OwnerAccountID() string      { return l.owner }
func (l lead) CreatedByAccountID() string  { return l.creator }
func (l lead) Protected() bool             { return l.protected }
func (l lead) ResourceType() rbac.Resource { return rbac.ResourceLead }

func principalWith(roles []string, perms ...rbac.Permission) rbac.Principal {
	rs := make([]rbac.Role, len(roles))
	for i, name := range roles {
		rs[i] = rbac.Role{ID: "role-" + name, Name: name}
	}
	return rbac.NewPrincipal("acct-1", rs, perms)
}

func TestAdminWildcard(t *testing.T) {
	p := principalWith([]string{"Admin"})
	assert.True(t, p.Allows(rbac.ResourceSetting, rbac.ActionDelete))
	assert.True(t, p.AllowsObject(lead{owner: "someone-else", protected: true}, rbac.ActionDelete))
}

func TestPermissionSetMembership(t *testing.T) {
	p := principalWith([]string{"sales"},
		rbac.Permission{Resource: rbac.ResourceLead, Action: rbac.ActionRead},
		rbac.Permission{Resource: rbac.ResourceLead, Action: rbac.ActionUpdate},
	)
	assert.True(t, p.Allows(rbac.ResourceLead, rbac.ActionRead))
	assert.False(t, p.Allows(rbac.ResourceLead, rbac.ActionDelete))
	assert.False(t, p.Allows(rbac.ResourceContact, rbac.ActionRead))
}

func TestOwnerAndCreatorPass(t *testing.T) {
	p := principalWith([]string{"sales"})
	assert.True(t, p.AllowsObject(lead{owner: "acct-1"}, rbac.ActionUpdate))
	assert.True(t, p.AllowsObject(lead{creator: "acct-1"}, rbac.ActionDelete))
	assert.False(t, p.AllowsObject(lead{owner: "acct-2"}, rbac.ActionUpdate))
}

func TestManagerPassesExceptProtectedDelete(t *testing.T) {
	p := principalWith([]string{"Manager"})
	assert.True(t, p.AllowsObject(lead{owner: "acct-2"}, rbac.ActionUpdate))
	assert.True(t, p.AllowsObject(lead{owner: "acct-2"}, rbac.ActionDelete))
	assert.False(t, p.AllowsObject(lead{owner: "acct-2", protected: true}, rbac.ActionDelete))
	// protection only bites on delete
	assert.True(t, p.AllowsObject(lead{owner: "acct-2", protected: true}, rbac.ActionUpdate))
}

func TestObjectFallbackToPermissions(t *testing.T) {
	p := principalWith([]string{"sales"},
		rbac.Permission{Resource: rbac.ResourceLead, Action: rbac.ActionRead},
	)
	assert.True(t, p.AllowsObject(lead{owner: "acct-2"}, rbac.ActionRead))
	assert.False(t, p.AllowsObject(lead{owner: "acct-2"}, rbac.ActionUpdate))
	// objects that declare nothing at all deny by default
	assert.False(t, p.AllowsObject(struct{}{}, rbac.ActionRead))
}

func TestPermissionKeyRoundTrip(t *testing.T) {
	p := rbac.Permission{Resource: rbac.ResourceReport, Action: rbac.ActionExport}
	require.Equal(t, "report:export", p.Key())

	parsed, err := rbac.ParseKey("report:export")
	require.NoError(t, err)
	require.Equal(t, p, parsed)

	for _, bad := range []string{"", "report", ":export", "report:"} {
		_, err := rbac.ParseKey(bad)
		require.Error(t, err, bad)
	}
}

func TestServicePrincipalUnionsRolePermissions(t *testing.T) {
	st := memory.New()
	svc, err := rbac.NewService(st.Roles)
	require.NoError(t, err)
	ctx := context.Background()

	readLead := rbac.Permission{Resource: rbac.ResourceLead, Action: rbac.ActionRead}
	exportReport := rbac.Permission{Resource: rbac.ResourceReport, Action: rbac.ActionExport}

	require.NoError(t, st.Roles.CreateRole(ctx, &rbac.Role{ID: "role-sales", Name: "sales"}))
	require.NoError(t, st.Roles.SetRolePermissions(ctx, "role-sales", []rbac.Permission{readLead}))
	require.NoError(t, st.Roles.CreateRole(ctx, &rbac.Role{ID: "role-analyst", Name: "analyst"}))
	require.NoError(t, st.Roles.SetRolePermissions(ctx, "role-analyst", []rbac.Permission{readLead, exportReport}))

	require.NoError(t, svc.AssignRole(ctx, "acct-1", "sales"))
	require.NoError(t, svc.AssignRole(ctx, "acct-1", "analyst"))

	p, err := svc.Principal(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, p.HasRole("sales"))
	assert.True(t, p.HasRole("analyst"))
	assert.True(t, p.Allows(rbac.ResourceLead, rbac.ActionRead))
	assert.True(t, p.Allows(rbac.ResourceReport, rbac.ActionExport))
	assert.False(t, p.Allows(rbac.ResourceLead, rbac.ActionDelete))
}

func TestServiceAssignUnknownRole(t *testing.T) {
	st := memory.New()
	svc, err := rbac.NewService(st.Roles)
	require.NoError(t, err)
	err = svc.AssignRole(context.Background(), "acct-1", "ghost")
	require.ErrorIs(t, err, rbac.ErrNotFound)
}
