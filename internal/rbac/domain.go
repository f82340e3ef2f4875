package rbac

import "time"

// Role represents a permission grouping. Lower Order means more senior.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	IsOwner     bool      `json:"isOwner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Permission represents an atomic capability over a subject.
type Permission struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Action      string `json:"action"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	TableName   string `json:"tableName,omitempty"`
	AlwaysAllow bool   `json:"alwaysAllow"`
	IsPublic    bool   `json:"isPublic"`
}

// Ability is a resolved (action, subject) pair. Derived, never persisted.
type Ability struct {
	Action  string
	Subject string
}

// Key renders the ability in the "action:subject" form cached by clients.
func (a Ability) Key() string {
	return a.Action + ":" + a.Subject
}

// AbilityKeys derives the sorted-input ability key list from a permission set.
func AbilityKeys(perms []Permission) []string {
	keys := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		k := Ability{Action: p.Action, Subject: p.Subject}.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
