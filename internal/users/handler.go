package users

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-kit/vantage/internal/auth"
	"github.com/vantage-kit/vantage/internal/gate"
	"github.com/vantage-kit/vantage/internal/platform/httpx"
	"github.com/vantage-kit/vantage/internal/shared"
)

// Handler wires user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      gate.Gate
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, g gate.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: g, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAuth, h.gate.RequireAbility(shared.ActionView, shared.SubjectUsers))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAuth, h.gate.RequireAbility(shared.ActionEdit, shared.SubjectUsers))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Patch("/{id}/active", h.setActive)
		r.Delete("/{id}", h.delete)
		r.Post("/{userIds}/roles/attach", h.attachRoles)
		r.Post("/{userIds}/roles/detach", h.detachRoles)
	})
}

type createForm struct {
	Name     string `json:"name" validate:"required,min=2,max=128"`
	Username string `json:"username" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Active   bool   `json:"active"`
}

type updateForm struct {
	Name  string `json:"name" validate:"required,min=2,max=128"`
	Email string `json:"email" validate:"required,email"`
}

type activeForm struct {
	Active bool `json:"active"`
}

type roleBindingRequest struct {
	RoleIDs []int64 `json:"roleIds" validate:"required,min=1"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]auth.UserDTO, len(users))
	for i := range users {
		out[i] = auth.NewUserDTO(&users[i], nil)
	}
	httpx.JSON(w, http.StatusOK, "ok", out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	user, roles, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "ok", auth.NewUserDTO(user, roles))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form createForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.FailFields(w, "validation failed", httpx.ValidationFields(err))
		return
	}
	user, err := h.service.Create(r.Context(), form.Name, form.Username, form.Email, form.Password, form.Active)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, "user created", auth.NewUserDTO(user, nil))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var form updateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.FailFields(w, "validation failed", httpx.ValidationFields(err))
		return
	}
	user, err := h.service.Update(r.Context(), id, form.Name, form.Email)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "user updated", auth.NewUserDTO(user, nil))
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var form activeForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.service.SetActive(r.Context(), id, form.Active); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "user updated", nil)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "user deleted", nil)
}

func (h *Handler) attachRoles(w http.ResponseWriter, r *http.Request) {
	h.bindRoles(w, r, h.service.AssignRoles)
}

func (h *Handler) detachRoles(w http.ResponseWriter, r *http.Request) {
	h.bindRoles(w, r, h.service.RemoveRoles)
}

func (h *Handler) bindRoles(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userIDs, roleIDs []int64) error) {
	userIDs, err := shared.ParseIDList(chi.URLParam(r, "userIds"))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var req roleBindingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.FailFields(w, "validation failed", httpx.ValidationFields(err))
		return
	}
	if err := op(r.Context(), userIDs, req.RoleIDs); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	// Echo the updated binding set for each affected user.
	out := make(map[string][]auth.RoleDTO, len(userIDs))
	for _, userID := range userIDs {
		_, roles, err := h.service.Get(r.Context(), userID)
		if err != nil {
			httpx.RespondError(w, r, err)
			return
		}
		out[strconv.FormatInt(userID, 10)] = auth.NewRoleDTOs(roles)
	}
	httpx.JSON(w, http.StatusOK, "bindings updated", out)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}
