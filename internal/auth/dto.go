package auth

import (
	"github.com/vantage-kit/vantage/internal/identity"
	"github.com/vantage-kit/vantage/internal/rbac"
)

// UserDTO is the serialized user snapshot. Derived fields (role names) are
// computed here at the boundary, not stored on the model.
type UserDTO struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Active    bool     `json:"active"`
	RoleNames []string `json:"roleNames"`
}

// RoleDTO is the serialized role.
type RoleDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	IsOwner     bool   `json:"isOwner"`
}

// PermissionDTO is the serialized permission.
type PermissionDTO struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Action      string `json:"action"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	TableName   string `json:"tableName,omitempty"`
	AlwaysAllow bool   `json:"alwaysAllow"`
	IsPublic    bool   `json:"isPublic"`
}

// LoginData is the POST /login response payload.
type LoginData struct {
	AccessToken string          `json:"accessToken"`
	User        UserDTO         `json:"user"`
	Roles       []RoleDTO       `json:"roles"`
	Permissions []PermissionDTO `json:"permissions"`
}

// MeData is the GET /user response payload.
type MeData struct {
	User        UserDTO         `json:"user"`
	Roles       []RoleDTO       `json:"roles"`
	Permissions []PermissionDTO `json:"permissions"`
	Abilities   []string        `json:"abilities"`
}

// NewUserDTO maps a user and its roles to the wire shape.
func NewUserDTO(u *identity.User, roles []rbac.Role) UserDTO {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Active:    u.IsActive,
		RoleNames: names,
	}
}

// NewRoleDTOs maps roles to the wire shape.
func NewRoleDTOs(roles []rbac.Role) []RoleDTO {
	out := make([]RoleDTO, len(roles))
	for i, r := range roles {
		out[i] = RoleDTO{
			ID:          r.ID,
			Name:        r.Name,
			DisplayName: r.DisplayName,
			Description: r.Description,
			Order:       r.Order,
			IsOwner:     r.IsOwner,
		}
	}
	return out
}

// NewPermissionDTOs maps permissions to the wire shape.
func NewPermissionDTOs(perms []rbac.Permission) []PermissionDTO {
	out := make([]PermissionDTO, len(perms))
	for i, p := range perms {
		out[i] = PermissionDTO{
			ID:          p.ID,
			Key:         p.Key,
			Action:      p.Action,
			Subject:     p.Subject,
			Description: p.Description,
			TableName:   p.TableName,
			AlwaysAllow: p.AlwaysAllow,
			IsPublic:    p.IsPublic,
		}
	}
	return out
}
