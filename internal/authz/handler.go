package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meetpoint/meetpoint/internal/platform/httpx"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Handler exposes role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role routes. Management is admin-only; the
// capability query is open to any authenticated principal.
func (h *Handler) MountRoutes(r chi.Router, mw Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAdmin)
		r.Post("/grants", h.grant)
		r.Delete("/grants", h.revoke)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequirePrincipal)
		r.Get("/principals/{id}", h.listRoles)
		r.Get("/check", h.check)
	})
}

type grantRequest struct {
	PrincipalID int64         `json:"principal_id" validate:"required,gt=0"`
	Role        string        `json:"role" validate:"required"`
	Resource    *resource.Ref `json:"resource,omitempty"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor := shared.PrincipalFromContext(r.Context())
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Grant(r.Context(), actor.ID, req.PrincipalID, RoleKind(req.Role), req.Resource); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor := shared.PrincipalFromContext(r.Context())
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Revoke(r.Context(), actor.ID, req.PrincipalID, RoleKind(req.Role), req.Resource); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid principal id")
		return
	}
	assignments, err := h.service.ListRoles(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": assignments})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	principalID, err := strconv.ParseInt(q.Get("principal_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid principal id")
		return
	}
	role := RoleKind(q.Get("role"))

	var ref *resource.Ref
	if kind := q.Get("kind"); kind != "" {
		id, err := strconv.ParseInt(q.Get("id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid resource id")
			return
		}
		ref = &resource.Ref{Kind: resource.Kind(kind), ID: id}
	}

	allowed, err := h.service.HasRole(r.Context(), principalID, role, ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}
