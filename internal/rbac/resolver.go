package rbac

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/vantage-kit/vantage/internal/shared"
)

// Resolver decides whether a principal may perform an action on a subject.
// All methods are read-only and safe for concurrent use; resolution failures
// deny rather than error so callers may probe speculatively.
type Resolver struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver constructs a Resolver. The cache may be nil.
func NewResolver(repo Repository, cache *Cache, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, cache: cache, logger: logger}
}

// Can evaluates (action, subject) for the principal. Anonymous callers are
// represented by a nil principal and only match public permissions.
func (r *Resolver) Can(ctx context.Context, principal *shared.Principal, action, subject string) bool {
	if r.publicGrant(ctx, action, subject) {
		return true
	}
	if principal == nil {
		return false
	}
	if owner, err := r.repo.UserHasOwnerRole(ctx, principal.UserID); err == nil && owner {
		return true
	} else if err != nil {
		r.warn("owner lookup", err)
		return false
	}
	perms, err := r.userPermissions(ctx, principal.UserID)
	if err != nil {
		r.warn("permission lookup", err)
		return false
	}
	if matchAny(perms, action, subject) {
		return true
	}
	// always_allow permissions apply to every authenticated user, whether or
	// not any of their roles carries them.
	globals, err := r.alwaysAllowed(ctx)
	if err != nil {
		r.warn("always-allow lookup", err)
		return false
	}
	for _, p := range globals {
		if p.Action == action {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the principal's resolved permission set: the
// full registered universe for owner-role holders, otherwise the role union
// plus the always-allow set. Used to seed client-side ability caches.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) ([]Permission, error) {
	owner, err := r.repo.UserHasOwnerRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner {
		return r.cache.FetchPermissions(ctx, "universe", r.repo.ListPermissions)
	}
	perms, err := r.userPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	globals, err := r.alwaysAllowed(ctx)
	if err != nil {
		return nil, err
	}
	return mergePermissions(perms, globals), nil
}

// Abilities returns the principal's ability keys in "action:subject" form.
func (r *Resolver) Abilities(ctx context.Context, userID int64) ([]string, error) {
	perms, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return AbilityKeys(perms), nil
}

func (r *Resolver) publicGrant(ctx context.Context, action, subject string) bool {
	perms, err := r.cache.FetchPermissions(ctx, "public", r.repo.PublicPermissions)
	if err != nil {
		r.warn("public lookup", err)
		return false
	}
	return matchAny(perms, action, subject)
}

func (r *Resolver) alwaysAllowed(ctx context.Context) ([]Permission, error) {
	return r.cache.FetchPermissions(ctx, "always", r.repo.AlwaysAllowPermissions)
}

// userPermissions loads the deduplicated role union for a user, coalescing
// concurrent lookups for the same user.
func (r *Resolver) userPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	key := strconv.FormatInt(userID, 10)
	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.cache.FetchPermissions(ctx, key, func(ctx context.Context) ([]Permission, error) {
			return r.repo.PermissionsForUser(ctx, userID)
		})
	})
	if err != nil {
		return nil, err
	}
	return result.([]Permission), nil
}

func (r *Resolver) warn(msg string, err error) {
	if r.logger != nil {
		r.logger.Warn("rbac resolve "+msg, slog.Any("error", err))
	}
}

func matchAny(perms []Permission, action, subject string) bool {
	for _, p := range perms {
		if p.Action != action {
			continue
		}
		if p.Subject == subject || p.Subject == shared.SubjectAny {
			return true
		}
	}
	return false
}

func mergePermissions(sets ...[]Permission) []Permission {
	var merged []Permission
	seen := make(map[int64]struct{})
	for _, set := range sets {
		for _, p := range set {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}
