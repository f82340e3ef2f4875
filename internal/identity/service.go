package identity

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-kit/vantage/internal/shared"
)

// Service wraps authentication and token lifecycle rules.
type Service struct {
	repo     Repository
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService constructs a Service. A zero tokenTTL disables token expiry.
func NewService(repo Repository, tokenTTL time.Duration) *Service {
	return &Service{repo: repo, tokenTTL: tokenTTL, now: time.Now}
}

// Authenticate validates username/password credentials and issues a bearer
// token. Suspended accounts are reported distinctly from bad credentials so
// the client can surface a different notice.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, string, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		// Hide whether the account exists.
		return nil, "", shared.ErrAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", shared.ErrAuthenticationFailed
	}
	if !user.IsActive {
		return nil, "", shared.ErrAccountSuspended
	}
	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GetByID fetches a user by ID.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// IssueToken mints and persists a personal access token for the user.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	id, secret, err := NewPlainToken()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	record := AccessToken{
		ID:        id,
		UserID:    userID,
		TokenHash: HashSecret(secret),
		CreatedAt: now,
	}
	if s.tokenTTL > 0 {
		record.ExpiresAt = now.Add(s.tokenTTL)
	}
	if err := s.repo.InsertToken(ctx, record); err != nil {
		return "", err
	}
	return ComposeToken(id, secret), nil
}

// ResolveToken maps a presented bearer token to its user. Expired, revoked and
// malformed tokens all resolve to ErrAuthenticationFailed.
func (s *Service) ResolveToken(ctx context.Context, token string) (*User, *AccessToken, error) {
	id, secret, err := SplitToken(token)
	if err != nil {
		return nil, nil, shared.ErrAuthenticationFailed
	}
	record, err := s.repo.FindToken(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.ErrAuthenticationFailed
		}
		return nil, nil, err
	}
	if !SecretMatches(secret, record.TokenHash) || record.Expired(s.now().UTC()) {
		return nil, nil, shared.ErrAuthenticationFailed
	}
	user, err := s.repo.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.ErrAuthenticationFailed
		}
		return nil, nil, err
	}
	_ = s.repo.TouchToken(ctx, record.ID, s.now().UTC())
	return user, record, nil
}

// RevokeToken deletes a token by its wire form or bare ID. Best effort: a
// malformed value is ignored.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	id := token
	if parsed, _, err := SplitToken(token); err == nil {
		id = parsed
	}
	return s.repo.DeleteToken(ctx, id)
}

// RevokeAllTokens revokes every token held by the user.
func (s *Service) RevokeAllTokens(ctx context.Context, userID int64) error {
	return s.repo.DeleteTokensForUser(ctx, userID)
}

// UpdateProfile changes a user's display name and email address.
func (s *Service) UpdateProfile(ctx context.Context, id int64, name, email string) (*User, error) {
	return s.repo.UpdateUser(ctx, id, name, email)
}

// SetActive suspends or reinstates an account. Suspension leaves outstanding
// tokens in place: the gate detects the inactive account on the next request,
// revokes the presented token and answers with the suspended signal, which is
// what lets clients tell suspension apart from a plain credential failure.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) error {
	return s.repo.SetActive(ctx, userID, active)
}

// Register creates a user account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, name, username, email, password string, active bool) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateUser(ctx, User{
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     active,
	})
}

// DeleteUser removes an account. Role bindings and tokens cascade in the
// same transaction, leaving no dangling pivot rows.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// PruneExpiredTokens removes tokens past their lifetime, returning the count.
func (s *Service) PruneExpiredTokens(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredTokens(ctx, s.now().UTC())
}
