package identity

import "time"

// User represents a user account.
type User struct {
	ID           int64
	Name         string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccessToken is a Sanctum-style personal access token. Only the SHA-256
// digest of the secret half is persisted.
type AccessToken struct {
	ID         string
	UserID     int64
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// Expired reports whether the token is past its lifetime at the given instant.
func (t AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
