// Package authz gates every protected route: it verifies the bearer token,
// loads the stored account when fine-grained checks are needed, and allows or
// rejects the request before any business handler runs.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/platform/httpx"
	"github.com/examdesk/examdesk/internal/shared"
)

// TokenVerifier decodes the bearer token on a request. Implemented by the
// authn token manager.
type TokenVerifier interface {
	VerifyRequest(r *http.Request) (shared.Identity, error)
}

// Actor is the middleware's view of a stored account: enough to gate a
// request, with the effective matrix already resolved.
type Actor struct {
	ID             int64
	Classification perms.Classification
	Suspended      bool
	Permissions    perms.Matrix
}

// ActorSource loads the stored account behind a token and resolves its
// effective permission matrix. Returns shared.ErrNotFound when the record no
// longer exists.
type ActorSource interface {
	LoadActor(ctx context.Context, id int64) (Actor, error)
}

// RevocationList reports whether a token has been explicitly revoked.
// Implemented by the authn deny-list; a nil list never revokes.
type RevocationList interface {
	IsRevoked(ctx context.Context, actorID int64, issuedAt time.Time) (bool, error)
}

// Guard builds the enforcement middleware used by every protected route.
type Guard struct {
	tokens  TokenVerifier
	actors  ActorSource
	revoked RevocationList
	logger  *slog.Logger

	// superadminFallback keeps a superadmin-tagged token usable when its
	// account record has been deleted mid-session, so the platform's last
	// superadmin cannot lock itself out. A deliberate fail-open policy,
	// disabled per deployment via configuration.
	superadminFallback bool

	loads singleflight.Group
}

// GuardConfig collects Guard dependencies.
type GuardConfig struct {
	Tokens             TokenVerifier
	Actors             ActorSource
	Revoked            RevocationList
	Logger             *slog.Logger
	SuperadminFallback bool
}

// NewGuard constructs a Guard.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		tokens:             cfg.Tokens,
		actors:             cfg.Actors,
		revoked:            cfg.Revoked,
		logger:             cfg.Logger,
		superadminFallback: cfg.SuperadminFallback,
	}
}

// Authenticate requires a valid bearer token and stores the decoded identity
// in the request context.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.tokens.VerifyRequest(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if g.rejectRevoked(w, r, identity) {
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// AuthenticateOptional decodes the token when present but lets anonymous
// requests through. Used for public endpoints with personalization.
func (g *Guard) AuthenticateOptional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, err := g.tokens.VerifyRequest(r); err == nil {
			r = r.WithContext(shared.ContextWithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin requires an admin or subadmin coarse tag and an account that
// is not suspended. A cheap gate for routes that need any console staff.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.tokens.VerifyRequest(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if g.rejectRevoked(w, r, identity) {
			return
		}
		switch identity.Role {
		case perms.CoarseRoleAdmin, perms.CoarseRoleSubadmin:
		default:
			httpx.Fail(w, http.StatusForbidden, "administrator access required")
			return
		}
		actor, err := g.loadActor(r.Context(), identity.ActorID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				if identity.IsAdmin() && g.superadminFallback {
					next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
					return
				}
				httpx.Fail(w, http.StatusForbidden, "account no longer exists")
				return
			}
			g.serverFault(w, "load actor", err)
			return
		}
		if actor.Suspended {
			httpx.Fail(w, http.StatusForbidden, "account suspended")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequirePermission is the core enforcement primitive: it allows the request
// only when the actor's effective matrix grants the action on the module. On
// allow, the resolved matrix is attached to the request context so handlers
// can make secondary decisions without recomputing it.
func (g *Guard) RequirePermission(module perms.Module, action perms.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := g.tokens.VerifyRequest(r)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}

			// The deny-list is consulted before the superadmin fast
			// path so revocation reaches every tier.
			if g.rejectRevoked(w, r, identity) {
				return
			}

			ctx := shared.ContextWithIdentity(r.Context(), identity)

			// Fast path: a superadmin-tagged token allows without a
			// store lookup.
			if identity.IsAdmin() {
				ctx = shared.ContextWithPermissions(ctx, perms.FullAccess())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			actor, err := g.loadActor(ctx, identity.ActorID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					httpx.Fail(w, http.StatusForbidden, "account no longer exists")
					return
				}
				g.serverFault(w, "load actor", err)
				return
			}

			if actor.Classification == perms.ClassificationSuperadmin {
				ctx = shared.ContextWithPermissions(ctx, perms.FullAccess())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if actor.Suspended {
				httpx.Fail(w, http.StatusForbidden, "account suspended")
				return
			}

			if !actor.Permissions.Allows(module, action) {
				httpx.Fail(w, http.StatusForbidden, fmt.Sprintf("missing %s permission for %s", action, module))
				return
			}

			ctx = shared.ContextWithPermissions(ctx, actor.Permissions)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSuperAdmin gates irreversible operations: only a superadmin-tagged
// token or a stored superadmin classification passes.
func (g *Guard) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.tokens.VerifyRequest(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if g.rejectRevoked(w, r, identity) {
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), identity)
		if identity.IsAdmin() {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		actor, err := g.loadActor(ctx, identity.ActorID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Fail(w, http.StatusForbidden, "superadmin access required")
				return
			}
			g.serverFault(w, "load actor", err)
			return
		}
		if actor.Classification != perms.ClassificationSuperadmin {
			httpx.Fail(w, http.StatusForbidden, "superadmin access required")
			return
		}
		if actor.Suspended {
			httpx.Fail(w, http.StatusForbidden, "account suspended")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loadActor deduplicates concurrent loads of the same account across
// in-flight requests.
func (g *Guard) loadActor(ctx context.Context, id int64) (Actor, error) {
	v, err, _ := g.loads.Do(strconv.FormatInt(id, 10), func() (any, error) {
		return g.actors.LoadActor(ctx, id)
	})
	if err != nil {
		return Actor{}, err
	}
	return v.(Actor), nil
}

func (g *Guard) rejectRevoked(w http.ResponseWriter, r *http.Request, identity shared.Identity) bool {
	if g.revoked == nil {
		return false
	}
	revoked, err := g.revoked.IsRevoked(r.Context(), identity.ActorID, identity.IssuedAt)
	if err != nil {
		g.serverFault(w, "check revocation", err)
		return true
	}
	if revoked {
		httpx.Fail(w, http.StatusUnauthorized, "authorization token revoked")
		return true
	}
	return false
}

// serverFault converts an unexpected store or resolver error into a generic
// 500. It is never treated as an allow.
func (g *Guard) serverFault(w http.ResponseWriter, op string, err error) {
	if g.logger != nil {
		g.logger.Error("permission check failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrPermissionCheckFailed, op))
}
