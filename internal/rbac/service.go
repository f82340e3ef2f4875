package rbac

import (
	"context"
	"errors"
	"strings"
)

// Service orchestrates graph mutations, keeping the ability cache coherent:
// every write bumps the cache version so resolvers stop serving stale sets.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService constructs a Service.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	if strings.TrimSpace(role.Name) == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	created, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.bump(ctx)
	return created, nil
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, role Role) (Role, error) {
	if strings.TrimSpace(role.Name) == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.bump(ctx)
	return updated, nil
}

// DeleteRole removes a role, cascading its bindings. Ability sets of affected
// users recompute on their next resolution.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a permission by ID.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// CreatePermission inserts a new permission. The key defaults to
// "action:subject" when not supplied.
func (s *Service) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	if perm.Action == "" || perm.Subject == "" {
		return Permission{}, errors.New("rbac: permission action and subject required")
	}
	if strings.TrimSpace(perm.Key) == "" {
		perm.Key = Ability{Action: perm.Action, Subject: perm.Subject}.Key()
	}
	created, err := s.repo.CreatePermission(ctx, perm)
	if err != nil {
		return Permission{}, err
	}
	s.bump(ctx)
	return created, nil
}

// UpdatePermission updates an existing permission.
func (s *Service) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	updated, err := s.repo.UpdatePermission(ctx, perm)
	if err != nil {
		return Permission{}, err
	}
	s.bump(ctx)
	return updated, nil
}

// DeletePermission removes a permission and its role bindings.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// AttachPermissions binds permissions to each of the given roles and returns
// the updated binding set per role.
func (s *Service) AttachPermissions(ctx context.Context, roleIDs, permissionIDs []int64) (map[int64][]Permission, error) {
	for _, roleID := range roleIDs {
		if err := s.repo.AttachPermissions(ctx, roleID, permissionIDs); err != nil {
			return nil, err
		}
	}
	s.bump(ctx)
	return s.bindingSets(ctx, roleIDs)
}

// DetachPermissions unbinds permissions from each of the given roles and
// returns the updated binding set per role.
func (s *Service) DetachPermissions(ctx context.Context, roleIDs, permissionIDs []int64) (map[int64][]Permission, error) {
	for _, roleID := range roleIDs {
		if err := s.repo.DetachPermissions(ctx, roleID, permissionIDs); err != nil {
			return nil, err
		}
	}
	s.bump(ctx)
	return s.bindingSets(ctx, roleIDs)
}

// RolePermissions returns a role's bound permissions.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.RolePermissions(ctx, roleID)
}

// AssignRoles binds roles to each of the given users.
func (s *Service) AssignRoles(ctx context.Context, userIDs, roleIDs []int64) error {
	for _, userID := range userIDs {
		if err := s.repo.AssignRoles(ctx, userID, roleIDs); err != nil {
			return err
		}
	}
	s.bump(ctx)
	return nil
}

// RemoveRoles unbinds roles from each of the given users.
func (s *Service) RemoveRoles(ctx context.Context, userIDs, roleIDs []int64) error {
	for _, userID := range userIDs {
		if err := s.repo.RemoveRoles(ctx, userID, roleIDs); err != nil {
			return err
		}
	}
	s.bump(ctx)
	return nil
}

// RolesForUser returns the roles assigned to a user.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.RolesForUser(ctx, userID)
}

// PermissionsForUser returns the deduplicated role union for a user.
func (s *Service) PermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	return s.repo.PermissionsForUser(ctx, userID)
}

func (s *Service) bump(ctx context.Context) {
	_ = s.cache.Bump(ctx)
}

func (s *Service) bindingSets(ctx context.Context, roleIDs []int64) (map[int64][]Permission, error) {
	sets := make(map[int64][]Permission, len(roleIDs))
	for _, roleID := range roleIDs {
		perms, err := s.repo.RolePermissions(ctx, roleID)
		if err != nil {
			return nil, err
		}
		sets[roleID] = perms
	}
	return sets, nil
}
