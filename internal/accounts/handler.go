package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/examdesk/examdesk/internal/authz"
	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/platform/httpx"
	"github.com/examdesk/examdesk/internal/shared"
)

// TokenRevoker invalidates outstanding tokens for an actor. Implemented by
// the authn service; suspension revokes immediately rather than waiting for
// token expiry.
type TokenRevoker interface {
	RevokeTokens(ctx context.Context, actorID int64) error
}

// Handler manages administrator account endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *authz.Guard
	revoker   TokenRevoker
	validator *validator.Validate
}

// NewHandler builds a Handler instance. revoker may be nil.
func NewHandler(logger *slog.Logger, service *Service, guard *authz.Guard, revoker TokenRevoker) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, revoker: revoker, validator: validator.New()}
}

// MountRoutes registers account management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(perms.ModuleRoleManagement, perms.ActionView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(perms.ModuleRoleManagement, perms.ActionCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(perms.ModuleRoleManagement, perms.ActionEdit))
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireSuperAdmin)
		r.Put("/{id}/status", h.setStatus)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	accts, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	profiles := make([]Profile, len(accts))
	for i, acct := range accts {
		profiles[i] = acct.Profile()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"accounts":   profiles,
		"pagination": pagination,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid account id")
		return
	}
	acct, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"account":           acct.Profile(),
		"customPermissions": acct.Custom,
	})
}

type accountRequest struct {
	Email          string       `json:"email" validate:"required,email"`
	Name           string       `json:"name" validate:"required"`
	Phone          string       `json:"phone"`
	Password       string       `json:"password" validate:"omitempty,min=8"`
	Classification string       `json:"classification" validate:"required,oneof=superadmin subadmin teacher"`
	RoleID         *int64       `json:"roleId"`
	Custom         perms.Matrix `json:"customPermissions"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Password == "" {
		httpx.Fail(w, http.StatusBadRequest, "password is required")
		return
	}

	acct, err := h.service.Create(r.Context(), CreateInput{
		Email:          req.Email,
		Name:           req.Name,
		Phone:          req.Phone,
		Password:       req.Password,
		Classification: perms.Classification(req.Classification),
		RoleID:         req.RoleID,
		Custom:         req.Custom,
	}, actorRef(r))
	if err != nil {
		if errors.Is(err, ErrInvalidClassification) {
			httpx.Fail(w, http.StatusBadRequest, "invalid classification")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "account": acct.Profile()})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	acct, err := h.service.Update(r.Context(), id, UpdateInput{
		Email:          req.Email,
		Name:           req.Name,
		Phone:          req.Phone,
		Classification: perms.Classification(req.Classification),
		RoleID:         req.RoleID,
		Custom:         req.Custom,
	}, actorRef(r))
	if err != nil {
		if errors.Is(err, ErrInvalidClassification) {
			httpx.Fail(w, http.StatusBadRequest, "invalid classification")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "account": acct.Profile()})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	status := Status(req.Status)
	if err := h.service.SetStatus(r.Context(), id, status, actorRef(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}

	// Suspension takes effect immediately: outstanding tokens go on the
	// deny-list instead of expiring on their own.
	if status == StatusSuspended && h.revoker != nil {
		if err := h.revoker.RevokeTokens(r.Context(), id); err != nil {
			h.logger.Warn("revoke tokens", slog.Int64("account_id", id), slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// actorRef returns the authenticated actor's id for audit attribution.
func actorRef(r *http.Request) *int64 {
	if identity, ok := shared.IdentityFromContext(r.Context()); ok {
		return &identity.ActorID
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return "invalid field: " + fieldErrs[0].Field()
	}
	return "validation failed"
}
