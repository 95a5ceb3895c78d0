package automation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/platform/httpx"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Handler exposes automation queue management and manual runs.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers automation routes.
func (h *Handler) MountRoutes(r chi.Router, mw authz.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequirePrincipal)
		r.Get("/automation/kinds", h.listKinds)
		r.Get("/stages/{stageID}/actions", h.listActions)
		r.Post("/stages/{stageID}/actions", h.attachAction)
		r.Post("/stages/{stageID}/run", h.runStage)
		r.Patch("/actions/{actionID}/position", h.reorderAction)
		r.Put("/actions/{actionID}/config", h.updateConfig)
		r.Delete("/actions/{actionID}", h.detachAction)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.RequirePrincipal, mw.RequireAdmin)
		r.Patch("/automation/kinds/{key}", h.setKindEnabled)
	})
}

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (h *Handler) listKinds(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"kinds": h.service.Kinds()})
}

type setKindEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setKindEnabled(w http.ResponseWriter, r *http.Request) {
	var req setKindEnabledRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.service.registry.SetEnabled(chi.URLParam(r, "key"), req.Enabled); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	stageID, err := idParam(r, "stageID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid stage id")
		return
	}
	actions, err := h.service.ListActions(r.Context(), stageID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actions": actions})
}

type attachActionRequest struct {
	Kind     string `json:"kind" validate:"required"`
	Config   Config `json:"config"`
	Position int    `json:"position" validate:"gte=0"`
}

func (h *Handler) attachAction(w http.ResponseWriter, r *http.Request) {
	stageID, err := idParam(r, "stageID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid stage id")
		return
	}
	var req attachActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	action, err := h.service.AttachAction(r.Context(), p.ID, stageID, req.Kind, req.Config, req.Position)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, action)
}

type reorderActionRequest struct {
	Position int `json:"position" validate:"required,gte=1"`
}

func (h *Handler) reorderAction(w http.ResponseWriter, r *http.Request) {
	actionID, err := idParam(r, "actionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid action id")
		return
	}
	var req reorderActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.ReorderAction(r.Context(), p.ID, actionID, req.Position); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type updateConfigRequest struct {
	Config Config `json:"config" validate:"required"`
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	actionID, err := idParam(r, "actionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid action id")
		return
	}
	var req updateConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.UpdateActionConfig(r.Context(), p.ID, actionID, req.Config); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) detachAction(w http.ResponseWriter, r *http.Request) {
	actionID, err := idParam(r, "actionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid action id")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.DetachAction(r.Context(), p.ID, actionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type runStageRequest struct {
	TargetKind string `json:"target_kind" validate:"required"`
	TargetID   int64  `json:"target_id" validate:"required,gte=1"`
}

func (h *Handler) runStage(w http.ResponseWriter, r *http.Request) {
	stageID, err := idParam(r, "stageID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid stage id")
		return
	}
	var req runStageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	target := resource.Ref{Kind: resource.Kind(req.TargetKind), ID: req.TargetID}
	report, err := h.service.RunStage(r.Context(), p.ID, stageID, target)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
