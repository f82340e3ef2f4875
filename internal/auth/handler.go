package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-kit/vantage/internal/gate"
	"github.com/vantage-kit/vantage/internal/identity"
	"github.com/vantage-kit/vantage/internal/observability"
	"github.com/vantage-kit/vantage/internal/platform/httpx"
	"github.com/vantage-kit/vantage/internal/rbac"
	"github.com/vantage-kit/vantage/internal/shared"
)

// Handler wires the authentication endpoints.
type Handler struct {
	logger     *slog.Logger
	identity   *identity.Service
	resolver   *rbac.Resolver
	graph      *rbac.Service
	gate       gate.Gate
	metrics    *observability.Metrics
	validator  *validator.Validate
	loginLimit int
}

// NewHandler constructs a Handler instance. loginLimit caps login attempts
// per IP per minute; zero or negative falls back to the default of 10.
func NewHandler(logger *slog.Logger, ident *identity.Service, resolver *rbac.Resolver, graph *rbac.Service, g gate.Gate, metrics *observability.Metrics, loginLimit int) *Handler {
	if loginLimit <= 0 {
		loginLimit = 10
	}
	return &Handler{
		logger:     logger,
		identity:   ident,
		resolver:   resolver,
		graph:      graph,
		gate:       g,
		metrics:    metrics,
		validator:  validator.New(),
		loginLimit: loginLimit,
	}
}

// MountRoutes registers the auth routes. Login carries its own tighter rate
// limit on top of the global one.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(h.loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/login", h.handleLogin)
	})
	r.Get("/logout", h.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAuth)
		r.Get("/user", h.handleMe)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required,min=2"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.FailFields(w, "validation failed", httpx.ValidationFields(err))
		return
	}

	user, token, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.metrics.ObserveLogin(false)
		httpx.RespondError(w, r, err)
		return
	}
	roles, err := h.graph.RolesForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("load roles after login", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("load permissions after login", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}

	h.metrics.ObserveLogin(true)
	httpx.JSON(w, http.StatusOK, "login successful", LoginData{
		AccessToken: token,
		User:        NewUserDTO(user, roles),
		Roles:       NewRoleDTOs(roles),
		Permissions: NewPermissionDTOs(perms),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal != nil {
		if err := h.identity.RevokeToken(r.Context(), principal.TokenID); err != nil {
			h.logger.Warn("revoke token on logout", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, "logged out", nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	user, err := h.identity.GetByID(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	roles, err := h.graph.RolesForUser(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "ok", MeData{
		User:        NewUserDTO(user, roles),
		Roles:       NewRoleDTOs(roles),
		Permissions: NewPermissionDTOs(perms),
		Abilities:   rbac.AbilityKeys(perms),
	})
}
