// Package users exposes account management on top of the identity store and
// the rbac graph.
package users

import (
	"context"

	"github.com/vantage-kit/vantage/internal/identity"
	"github.com/vantage-kit/vantage/internal/rbac"
)

// Service handles user management business logic.
type Service struct {
	identity *identity.Service
	graph    *rbac.Service
	repo     ListRepository
}

// ListRepository is the slice of identity persistence this package needs
// beyond what the identity service exposes.
type ListRepository interface {
	ListUsers(ctx context.Context) ([]identity.User, error)
}

// NewService builds a Service instance.
func NewService(ident *identity.Service, graph *rbac.Service, repo ListRepository) *Service {
	return &Service{identity: ident, graph: graph, repo: repo}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]identity.User, error) {
	return s.repo.ListUsers(ctx)
}

// Get fetches a user with its roles.
func (s *Service) Get(ctx context.Context, id int64) (*identity.User, []rbac.Role, error) {
	user, err := s.identity.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	roles, err := s.graph.RolesForUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return user, roles, nil
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, name, username, email, password string, active bool) (*identity.User, error) {
	return s.identity.Register(ctx, name, username, email, password, active)
}

// Update changes a user's profile fields.
func (s *Service) Update(ctx context.Context, id int64, name, email string) (*identity.User, error) {
	return s.identity.UpdateProfile(ctx, id, name, email)
}

// SetActive suspends or reinstates an account.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.identity.SetActive(ctx, id, active)
}

// Delete removes an account; its role bindings and tokens go with it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.identity.DeleteUser(ctx, id)
}

// AssignRoles binds roles to each of the given users.
func (s *Service) AssignRoles(ctx context.Context, userIDs, roleIDs []int64) error {
	return s.graph.AssignRoles(ctx, userIDs, roleIDs)
}

// RemoveRoles unbinds roles from each of the given users.
func (s *Service) RemoveRoles(ctx context.Context, userIDs, roleIDs []int64) error {
	return s.graph.RemoveRoles(ctx, userIDs, roleIDs)
}
