package pipeline

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

// Handler exposes pipeline management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stage routes.
func (h *Handler) MountRoutes(r chi.Router, mw authz.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequirePrincipal)
		r.Get("/workflows/{kind}/{id}/stages", h.listStages)
		r.Post("/workflows/{kind}/{id}/stages", h.insertStage)
		r.Patch("/stages/{stageID}/position", h.moveStage)
		r.Delete("/stages/{stageID}", h.deleteStage)
	})
}

func workflowFromURL(r *http.Request) (resource.Ref, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return resource.Ref{}, err
	}
	return resource.Ref{Kind: resource.Kind(chi.URLParam(r, "kind")), ID: id}, nil
}

func (h *Handler) listStages(w http.ResponseWriter, r *http.Request) {
	workflow, err := workflowFromURL(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid workflow id")
		return
	}
	stages, err := h.service.ListStages(r.Context(), workflow)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stages": stages})
}

type insertStageRequest struct {
	Name     string `json:"name" validate:"required,max=256"`
	Color    string `json:"color" validate:"omitempty,oneof=gray green yellow red"`
	Position int    `json:"position" validate:"gte=0"`
}

func (h *Handler) insertStage(w http.ResponseWriter, r *http.Request) {
	workflow, err := workflowFromURL(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid workflow id")
		return
	}
	var req insertStageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	stage, err := h.service.InsertStage(r.Context(), p.ID, workflow, req.Name, Color(req.Color), req.Position)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stage)
}

type moveStageRequest struct {
	Position int `json:"position" validate:"required,gte=1"`
}

func (h *Handler) moveStage(w http.ResponseWriter, r *http.Request) {
	stageID, err := strconv.ParseInt(chi.URLParam(r, "stageID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid stage id")
		return
	}
	var req moveStageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.MoveStage(r.Context(), p.ID, stageID, req.Position); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) deleteStage(w http.ResponseWriter, r *http.Request) {
	stageID, err := strconv.ParseInt(chi.URLParam(r, "stageID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid stage id")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeleteStage(r.Context(), p.ID, stageID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
