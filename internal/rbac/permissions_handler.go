package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-kit/vantage/internal/platform/httpx"
	"github.com/vantage-kit/vantage/internal/shared"
)

// PermissionsHandler manages permission CRUD over HTTP.
type PermissionsHandler struct {
	logger      *slog.Logger
	service     *Service
	guard       func(action, subject string) func(http.Handler) http.Handler
	requireAuth func(http.Handler) http.Handler
	validator   *validator.Validate
}

// NewPermissionsHandler builds a PermissionsHandler. The guard/requireAuth
// middleware come from the gate; taking them as values avoids an import
// cycle between rbac and gate.
func NewPermissionsHandler(logger *slog.Logger, service *Service, requireAuth func(http.Handler) http.Handler, guard func(action, subject string) func(http.Handler) http.Handler) *PermissionsHandler {
	return &PermissionsHandler{
		logger:      logger,
		service:     service,
		guard:       guard,
		requireAuth: requireAuth,
		validator:   validator.New(),
	}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth, h.guard(shared.ActionView, shared.SubjectPermissions))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth, h.guard(shared.ActionEdit, shared.SubjectPermissions))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type permissionForm struct {
	Key         string `json:"key" validate:"max=128"`
	Action      string `json:"action" validate:"required,min=2,max=64"`
	Subject     string `json:"subject" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=512"`
	TableName   string `json:"tableName" validate:"max=64"`
	AlwaysAllow bool   `json:"alwaysAllow"`
	IsPublic    bool   `json:"isPublic"`
}

func (h *PermissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "ok", perms)
}

func (h *PermissionsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "ok", perm)
}

func (h *PermissionsHandler) create(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), Permission{
		Key:         form.Key,
		Action:      form.Action,
		Subject:     form.Subject,
		Description: form.Description,
		TableName:   form.TableName,
		AlwaysAllow: form.AlwaysAllow,
		IsPublic:    form.IsPublic,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, "permission created", perm)
}

func (h *PermissionsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), Permission{
		ID:          id,
		Key:         form.Key,
		Action:      form.Action,
		Subject:     form.Subject,
		Description: form.Description,
		TableName:   form.TableName,
		AlwaysAllow: form.AlwaysAllow,
		IsPublic:    form.IsPublic,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "permission updated", perm)
}

func (h *PermissionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "permission deleted", nil)
}

func (h *PermissionsHandler) pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}

func (h *PermissionsHandler) decodeForm(w http.ResponseWriter, r *http.Request) (permissionForm, bool) {
	var form permissionForm
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
