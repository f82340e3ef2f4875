// Package gate enforces the per-request authorization boundary: principal
// resolution from bearer credentials, the suspended-account check, and
// ability-based route guards.
package gate

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vantage-kit/vantage/internal/identity"
	"github.com/vantage-kit/vantage/internal/observability"
	"github.com/vantage-kit/vantage/internal/platform/httpx"
	"github.com/vantage-kit/vantage/internal/rbac"
	"github.com/vantage-kit/vantage/internal/shared"
)

// Gate wires authorization middleware for HTTP handlers.
type Gate struct {
	Identity *identity.Service
	Resolver *rbac.Resolver
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Authenticate resolves the bearer token into a principal on the request
// context. Requests without a resolvable principal pass through untouched;
// rejecting them is RequireAuth's job. The one case handled here is the
// authenticated-but-suspended account: its token is revoked and the request
// answered with the distinct AccountSuspended signal rather than a plain 401.
func (g Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, record, err := g.Identity.ResolveToken(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !user.IsActive {
			// Suspension ends every live session, not only the one that
			// happened to hit the gate first.
			if err := g.Identity.RevokeAllTokens(r.Context(), user.ID); err != nil && g.Logger != nil {
				g.Logger.Warn("revoke suspended tokens", slog.Any("error", err))
			}
			g.Metrics.ObserveGateDenial("suspended")
			httpx.RespondError(w, r, shared.ErrAccountSuspended)
			return
		}
		principal := &shared.Principal{
			UserID:   user.ID,
			Username: user.Username,
			IsActive: user.IsActive,
			TokenID:  record.ID,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAuth rejects requests that carry no resolved principal.
func (g Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.PrincipalFromContext(r.Context()) == nil {
			g.Metrics.ObserveGateDenial("unauthenticated")
			httpx.RespondError(w, r, shared.ErrAuthenticationFailed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAbility guards a route with an (action, subject) check against the
// resolver. Anonymous callers still get through when a public permission
// covers the pair.
func (g Gate) RequireAbility(action, subject string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if g.Resolver.Can(r.Context(), principal, action, subject) {
				next.ServeHTTP(w, r)
				return
			}
			g.Metrics.ObserveGateDenial("forbidden")
			if principal == nil {
				httpx.RespondError(w, r, shared.ErrAuthenticationFailed)
				return
			}
			httpx.Fail(w, http.StatusForbidden, "forbidden")
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
