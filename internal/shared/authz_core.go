package shared

// Core platform abilities, expressed as action/subject pairs.
const (
	SubjectUsers       = "users"
	SubjectRoles       = "roles"
	SubjectPermissions = "permissions"

	ActionView   = "view"
	ActionEdit   = "edit"
	ActionManage = "manage"

	// SubjectAny is the wildcard subject: a permission carrying it matches
	// every subject for its action.
	SubjectAny = "Any"
)

// CoreScopes lists the seedable permission keys of the core platform.
func CoreScopes() []string {
	return []string{
		ActionView + ":" + SubjectUsers,
		ActionEdit + ":" + SubjectUsers,
		ActionView + ":" + SubjectRoles,
		ActionEdit + ":" + SubjectRoles,
		ActionView + ":" + SubjectPermissions,
		ActionEdit + ":" + SubjectPermissions,
	}
}
