// Package session implements the client-side session lifecycle: a small state
// machine owning the token, the user snapshot and the derived ability cache,
// plus the watchers that keep it warm (periodic refresh, idle timeout,
// connectivity recovery).
package session

import "time"

// Status enumerates the session states. Logout and failures return to
// StatusIdle; there are no terminal states.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
)

// Credentials carries a login attempt.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the client-side snapshot of the authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
	Roles    []Role `json:"roles,omitempty"`
}

// Role mirrors the server-side role as serialized to clients.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	IsOwner     bool   `json:"isOwner"`
}

// Permission mirrors the server-side permission as serialized to clients.
type Permission struct {
	ID      int64  `json:"id"`
	Key     string `json:"key"`
	Action  string `json:"action"`
	Subject string `json:"subject"`
}

// AbilityKey renders the permission as the "action:subject" ability string.
func (p Permission) AbilityKey() string {
	return p.Action + ":" + p.Subject
}

// Profile is the payload returned by login and current-user fetches.
type Profile struct {
	Token       string       `json:"accessToken,omitempty"`
	User        User         `json:"user"`
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
}

// Snapshot is an immutable view of the session state.
type Snapshot struct {
	Status        Status
	Token         string
	User          *User
	Roles         []Role
	Permissions   []Permission
	Abilities     []string
	Unauthorized  bool
	LastRefreshAt time.Time
}
