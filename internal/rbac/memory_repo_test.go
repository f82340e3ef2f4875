package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vantage-kit/vantage/internal/shared"
)

// memRepo is an in-memory Repository for exercising the resolver and service
// without Postgres.
type memRepo struct {
	mu sync.Mutex

	roles  map[int64]Role
	perms  map[int64]Permission
	nextID int64

	rolePerms map[int64]map[int64]struct{}
	userRoles map[int64]map[int64]struct{}
}

func newMemRepo() *memRepo {
	return &memRepo{
		roles:     make(map[int64]Role),
		perms:     make(map[int64]Permission),
		rolePerms: make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
		nextID:    1,
	}
}

func (m *memRepo) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return Role{}, shared.ErrDuplicate
		}
	}
	role.ID = m.nextID
	m.nextID++
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) UpdateRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	role.UpdatedAt = time.Now()
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) DeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	delete(m.rolePerms, id)
	for _, set := range m.userRoles {
		delete(set, id)
	}
	return nil
}

func (m *memRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.perms {
		if existing.Key == perm.Key {
			return Permission{}, shared.ErrDuplicate
		}
	}
	perm.ID = m.nextID
	m.nextID++
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memRepo) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[perm.ID]; !ok {
		return Permission{}, shared.ErrNotFound
	}
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memRepo) DeletePermission(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.perms, id)
	for _, set := range m.rolePerms {
		delete(set, id)
	}
	return nil
}

func (m *memRepo) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rolePerms[roleID]
	if !ok {
		set = make(map[int64]struct{})
		m.rolePerms[roleID] = set
	}
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (m *memRepo) DetachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.rolePerms[roleID]
	for _, id := range permissionIDs {
		delete(set, id)
	}
	return nil
}

func (m *memRepo) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0)
	for id := range m.rolePerms[roleID] {
		if p, ok := m.perms[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.userRoles[userID]
	if !ok {
		set = make(map[int64]struct{})
		m.userRoles[userID] = set
	}
	for _, id := range roleIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (m *memRepo) RemoveRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.userRoles[userID]
	for _, id := range roleIDs {
		delete(set, id)
	}
	return nil
}

func (m *memRepo) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0)
	for id := range m.userRoles[userID] {
		if r, ok := m.roles[id]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) PermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]struct{})
	out := make([]Permission, 0)
	for roleID := range m.userRoles[userID] {
		for permID := range m.rolePerms[roleID] {
			if _, dup := seen[permID]; dup {
				continue
			}
			if p, ok := m.perms[permID]; ok {
				seen[permID] = struct{}{}
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) UserHasOwnerRole(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for roleID := range m.userRoles[userID] {
		if r, ok := m.roles[roleID]; ok && r.IsOwner {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) PublicPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0)
	for _, p := range m.perms {
		if p.IsPublic {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) AlwaysAllowPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0)
	for _, p := range m.perms {
		if p.AlwaysAllow {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
