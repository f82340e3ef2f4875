package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-kit/vantage/internal/shared"
	_ "github.com/vantage-kit/vantage/internal/testing/guard"
)

func seedGraph(t *testing.T, repo *memRepo) (viewer Role, perm Permission) {
	t.Helper()
	ctx := context.Background()

	viewer, err := repo.CreateRole(ctx, Role{Name: "viewer", DisplayName: "Viewer"})
	require.NoError(t, err)

	perm, err = repo.CreatePermission(ctx, Permission{
		Key:     "view:reports",
		Action:  "view",
		Subject: "reports",
	})
	require.NoError(t, err)

	require.NoError(t, repo.AttachPermissions(ctx, viewer.ID, []int64{perm.ID}))
	return viewer, perm
}

func principal(userID int64) *shared.Principal {
	return &shared.Principal{UserID: userID, Username: "tester", IsActive: true}
}

func TestCanDeniesUserWithoutRoles(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seedGraph(t, repo)
	resolver := NewResolver(repo, nil, nil)

	require.False(t, resolver.Can(ctx, principal(42), "view", "reports"))
}

func TestCanGrantsExactMatch(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	viewer, _ := seedGraph(t, repo)
	require.NoError(t, repo.AssignRoles(ctx, 1, []int64{viewer.ID}))
	resolver := NewResolver(repo, nil, nil)

	require.True(t, resolver.Can(ctx, principal(1), "view", "reports"))
	require.False(t, resolver.Can(ctx, principal(1), "edit", "reports"))
	require.False(t, resolver.Can(ctx, principal(1), "view", "invoices"))
}

func TestCanWildcardSubjectMatchesEverySubject(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	viewer, _ := seedGraph(t, repo)

	wildcard, err := repo.CreatePermission(ctx, Permission{
		Key:     "export:Any",
		Action:  "export",
		Subject: shared.SubjectAny,
	})
	require.NoError(t, err)
	require.NoError(t, repo.AttachPermissions(ctx, viewer.ID, []int64{wildcard.ID}))
	require.NoError(t, repo.AssignRoles(ctx, 1, []int64{viewer.ID}))
	resolver := NewResolver(repo, nil, nil)

	require.True(t, resolver.Can(ctx, principal(1), "export", "reports"))
	require.True(t, resolver.Can(ctx, principal(1), "export", "anything-at-all"))
	require.False(t, resolver.Can(ctx, principal(1), "delete", "reports"))
}

func TestCanOwnerRoleGrantsEverything(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seedGraph(t, repo)

	owner, err := repo.CreateRole(ctx, Role{Name: "owner", IsOwner: true})
	require.NoError(t, err)
	require.NoError(t, repo.AssignRoles(ctx, 7, []int64{owner.ID}))
	resolver := NewResolver(repo, nil, nil)

	require.True(t, resolver.Can(ctx, principal(7), "view", "reports"))
	require.True(t, resolver.Can(ctx, principal(7), "purge", "never-registered"))
}

func TestCanAlwaysAllowAppliesToEveryAuthenticatedUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seedGraph(t, repo)

	_, err := repo.CreatePermission(ctx, Permission{
		Key:         "view:dashboard",
		Action:      "view",
		Subject:     "dashboard",
		AlwaysAllow: true,
	})
	require.NoError(t, err)
	resolver := NewResolver(repo, nil, nil)

	// User 9 holds no roles at all.
	require.True(t, resolver.Can(ctx, principal(9), "view", "dashboard"))
	// Anonymous callers do not benefit.
	require.False(t, resolver.Can(ctx, nil, "view", "dashboard"))
}

func TestCanPublicPermissionGrantsAnonymous(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seedGraph(t, repo)

	_, err := repo.CreatePermission(ctx, Permission{
		Key:      "view:landing",
		Action:   "view",
		Subject:  "landing",
		IsPublic: true,
	})
	require.NoError(t, err)
	resolver := NewResolver(repo, nil, nil)

	require.True(t, resolver.Can(ctx, nil, "view", "landing"))
	require.False(t, resolver.Can(ctx, nil, "view", "reports"))
}

func TestEffectivePermissionsOwnerGetsUniverse(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seedGraph(t, repo)

	owner, err := repo.CreateRole(ctx, Role{Name: "owner", IsOwner: true})
	require.NoError(t, err)
	require.NoError(t, repo.AssignRoles(ctx, 3, []int64{owner.ID}))
	resolver := NewResolver(repo, nil, nil)

	perms, err := resolver.EffectivePermissions(ctx, 3)
	require.NoError(t, err)
	all, err := repo.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, len(all))
}

func TestEffectivePermissionsMergesAlwaysAllow(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	viewer, perm := seedGraph(t, repo)
	require.NoError(t, repo.AssignRoles(ctx, 1, []int64{viewer.ID}))

	global, err := repo.CreatePermission(ctx, Permission{
		Key:         "view:dashboard",
		Action:      "view",
		Subject:     "dashboard",
		AlwaysAllow: true,
	})
	require.NoError(t, err)
	resolver := NewResolver(repo, nil, nil)

	perms, err := resolver.EffectivePermissions(ctx, 1)
	require.NoError(t, err)
	ids := make([]int64, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	require.ElementsMatch(t, []int64{perm.ID, global.ID}, ids)
}

func TestAbilitiesEmptyAfterLastRoleDetached(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	viewer, _ := seedGraph(t, repo)
	require.NoError(t, repo.AssignRoles(ctx, 1, []int64{viewer.ID}))
	resolver := NewResolver(repo, nil, nil)

	keys, err := resolver.Abilities(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"view:reports"}, keys)

	require.NoError(t, repo.RemoveRoles(ctx, 1, []int64{viewer.ID}))

	keys, err = resolver.Abilities(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestRoleDeleteRevokesDerivedAbilities(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	viewer, _ := seedGraph(t, repo)
	require.NoError(t, repo.AssignRoles(ctx, 1, []int64{viewer.ID}))
	resolver := NewResolver(repo, nil, nil)

	require.True(t, resolver.Can(ctx, principal(1), "view", "reports"))

	require.NoError(t, repo.DeleteRole(ctx, viewer.ID))

	require.False(t, resolver.Can(ctx, principal(1), "view", "reports"))
}

func TestAbilityKeysDeduplicate(t *testing.T) {
	perms := []Permission{
		{ID: 1, Action: "view", Subject: "reports"},
		{ID: 2, Action: "view", Subject: "reports"},
		{ID: 3, Action: "edit", Subject: "reports"},
	}
	require.Equal(t, []string{"view:reports", "edit:reports"}, AbilityKeys(perms))
}
