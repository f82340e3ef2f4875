// Package roles exposes role management over HTTP on top of the rbac graph.
package roles

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-kit/vantage/internal/gate"
	"github.com/vantage-kit/vantage/internal/platform/httpx"
	"github.com/vantage-kit/vantage/internal/rbac"
	"github.com/vantage-kit/vantage/internal/shared"
)

// Handler wires role CRUD and permission binding endpoints.
type Handler struct {
	logger    *slog.Logger
	graph     *rbac.Service
	gate      gate.Gate
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, graph *rbac.Service, g gate.Gate) *Handler {
	return &Handler{logger: logger, graph: graph, gate: g, validator: validator.New()}
}

// MountRoutes registers role routes, read and write gated separately.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAuth, h.gate.RequireAbility(shared.ActionView, shared.SubjectRoles))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/permissions", h.permissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAuth, h.gate.RequireAbility(shared.ActionEdit, shared.SubjectRoles))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{roleIds}/permissions/attach", h.attach)
		r.Post("/{roleIds}/permissions/detach", h.detach)
	})
}

type roleForm struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	DisplayName string `json:"displayName" validate:"max=128"`
	Description string `json:"description" validate:"max=512"`
	Order       int    `json:"order"`
	IsOwner     bool   `json:"isOwner"`
}

type roleDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	IsOwner     bool   `json:"isOwner"`
}

func toDTO(r rbac.Role) roleDTO {
	return roleDTO{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		Order:       r.Order,
		IsOwner:     r.IsOwner,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.graph.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]roleDTO, len(roles))
	for i, role := range roles {
		out[i] = toDTO(role)
	}
	httpx.JSON(w, http.StatusOK, "ok", out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	role, err := h.graph.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "ok", toDTO(role))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	role, err := h.graph.CreateRole(r.Context(), rbac.Role{
		Name:        form.Name,
		DisplayName: form.DisplayName,
		Description: form.Description,
		Order:       form.Order,
		IsOwner:     form.IsOwner,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, "role created", toDTO(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	role, err := h.graph.UpdateRole(r.Context(), rbac.Role{
		ID:          id,
		Name:        form.Name,
		DisplayName: form.DisplayName,
		Description: form.Description,
		Order:       form.Order,
		IsOwner:     form.IsOwner,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "role updated", toDTO(role))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.graph.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "role deleted", nil)
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	perms, err := h.graph.RolePermissions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "ok", perms)
}

type bindingRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required,min=1"`
}

func (h *Handler) attach(w http.ResponseWriter, r *http.Request) {
	h.bind(w, r, h.graph.AttachPermissions)
}

func (h *Handler) detach(w http.ResponseWriter, r *http.Request) {
	h.bind(w, r, h.graph.DetachPermissions)
}

type bindOp func(ctx context.Context, roleIDs, permissionIDs []int64) (map[int64][]rbac.Permission, error)

// bind handles both attach and detach: comma-joined role ids in the path,
// permission ids in the body, the updated binding set per role in the reply.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, op bindOp) {
	roleIDs, err := shared.ParseIDList(chi.URLParam(r, "roleIds"))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var req bindingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.FailFields(w, "validation failed", httpx.ValidationFields(err))
		return
	}
	sets, err := op(r.Context(), roleIDs, req.PermissionIDs)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make(map[string][]rbac.Permission, len(sets))
	for roleID, perms := range sets {
		out[strconv.FormatInt(roleID, 10)] = perms
	}
	httpx.JSON(w, http.StatusOK, "bindings updated", out)
}

func pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (roleForm, bool) {
	var form roleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return form, false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.FailFields(w, "validation failed", httpx.ValidationFields(err))
		return form, false
	}
	return form, true
}
