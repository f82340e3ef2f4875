package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-kit/vantage/internal/platform/db"
	"github.com/vantage-kit/vantage/internal/shared"
)

// Repository defines persistence for the role-permission graph.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	DetachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)

	AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error
	RemoveRoles(ctx context.Context, userID int64, roleIDs []int64) error
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)

	PermissionsForUser(ctx context.Context, userID int64) ([]Permission, error)
	UserHasOwnerRole(ctx context.Context, userID int64) (bool, error)
	PublicPermissions(ctx context.Context) ([]Permission, error)
	AlwaysAllowPermissions(ctx context.Context) ([]Permission, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const (
	roleColumns = `id, name, display_name, description, "order", is_owner, created_at, updated_at`
	permColumns = `id, key, action, subject, description, table_name, always_allow, is_public`
)

// ListRoles returns all roles ordered by seniority then name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY "order", name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

// CreateRole inserts a new role. Names are unique.
func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, display_name, description, "order", is_owner, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING `+roleColumns,
		strings.TrimSpace(role.Name), role.DisplayName, role.Description, role.Order, role.IsOwner)
	created, err := scanRole(row)
	if err != nil && isUniqueViolation(err) {
		return Role{}, shared.ErrDuplicate
	}
	return created, err
}

// UpdateRole updates an existing role.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, display_name = $3, description = $4, "order" = $5, is_owner = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING `+roleColumns,
		role.ID, strings.TrimSpace(role.Name), role.DisplayName, role.Description, role.Order, role.IsOwner)
	updated, err := scanRole(row)
	if err != nil && isUniqueViolation(err) {
		return Role{}, shared.ErrDuplicate
	}
	return updated, err
}

// DeleteRole removes a role and cascades the removal of its permission and
// user bindings in a single transaction.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// ListPermissions returns all permissions ordered by key.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permColumns+` FROM permissions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permColumns+` FROM permissions WHERE id = $1`, id)
	return scanPermission(row)
}

// CreatePermission inserts a new permission. Keys are globally unique.
func (r *PGRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (key, action, subject, description, table_name, always_allow, is_public)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+permColumns,
		strings.TrimSpace(perm.Key), perm.Action, perm.Subject, perm.Description, perm.TableName, perm.AlwaysAllow, perm.IsPublic)
	created, err := scanPermission(row)
	if err != nil && isUniqueViolation(err) {
		return Permission{}, shared.ErrDuplicate
	}
	return created, err
}

// UpdatePermission updates an existing permission.
func (r *PGRepository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE permissions SET key = $2, action = $3, subject = $4, description = $5, table_name = $6, always_allow = $7, is_public = $8
		 WHERE id = $1
		 RETURNING `+permColumns,
		perm.ID, strings.TrimSpace(perm.Key), perm.Action, perm.Subject, perm.Description, perm.TableName, perm.AlwaysAllow, perm.IsPublic)
	updated, err := scanPermission(row)
	if err != nil && isUniqueViolation(err) {
		return Permission{}, shared.ErrDuplicate
	}
	return updated, err
}

// DeletePermission removes a permission and its role bindings transactionally.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// AttachPermissions binds permissions to a role. Re-attaching is a no-op.
func (r *PGRepository) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, pid := range permissionIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id, created_at)
				 VALUES ($1, $2, now())
				 ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, pid)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// DetachPermissions unbinds permissions from a role. Detaching a permission
// that is not attached is a no-op, not an error.
func (r *PGRepository) DetachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

// RolePermissions returns the permissions bound to a role.
func (r *PGRepository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.key, p.action, p.subject, p.description, p.table_name, p.always_allow, p.is_public
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = $1
		 ORDER BY p.key`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// AssignRoles binds roles to a user. Idempotent.
func (r *PGRepository) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, rid := range roleIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id, created_at)
				 VALUES ($1, $2, now())
				 ON CONFLICT (user_id, role_id) DO NOTHING`, userID, rid)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveRoles unbinds roles from a user. Idempotent.
func (r *PGRepository) RemoveRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, rid := range roleIDs {
			if _, err := tx.Exec(ctx,
				`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, rid); err != nil {
				return err
			}
		}
		return nil
	})
}

// RolesForUser returns the roles assigned to a user, most senior first.
func (r *PGRepository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.display_name, r.description, r."order", r.is_owner, r.created_at, r.updated_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r."order", r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// PermissionsForUser returns the deduplicated union of permissions across all
// roles assigned to the user.
func (r *PGRepository) PermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.id, p.key, p.action, p.subject, p.description, p.table_name, p.always_allow, p.is_public
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1
		 ORDER BY p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// UserHasOwnerRole reports whether any of the user's roles is the owner role.
func (r *PGRepository) UserHasOwnerRole(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM roles r
		   JOIN user_roles ur ON ur.role_id = r.id
		   WHERE ur.user_id = $1 AND r.is_owner
		 )`, userID).Scan(&exists)
	return exists, err
}

// PublicPermissions returns permissions granted even to anonymous callers.
func (r *PGRepository) PublicPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permColumns+` FROM permissions WHERE is_public ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// AlwaysAllowPermissions returns permissions granted to every authenticated
// user regardless of role.
func (r *PGRepository) AlwaysAllowPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permColumns+` FROM permissions WHERE always_allow ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.Order, &role.IsOwner, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Key, &perm.Action, &perm.Subject, &perm.Description, &perm.TableName, &perm.AlwaysAllow, &perm.IsPublic)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
