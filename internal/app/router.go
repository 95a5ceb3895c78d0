package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meetpoint/meetpoint/internal/auth"
	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/events"
	"github.com/meetpoint/meetpoint/internal/observability"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/profiles"
	"github.com/meetpoint/meetpoint/internal/projects"
	"github.com/meetpoint/meetpoint/internal/shared"
	"github.com/meetpoint/meetpoint/internal/tasks"
	"github.com/meetpoint/meetpoint/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	Accounts          AccountLoader
	AuthHandler       *auth.Handler
	AuthzHandler      *authz.Handler
	ProfilesHandler   *profiles.Handler
	ProjectsHandler   *projects.Handler
	EventsHandler     *events.Handler
	TasksHandler      *tasks.Handler
	PipelineHandler   *pipeline.Handler
	AutomationHandler *automation.Handler
	JobHandler        *jobs.Handler
	AuthzMiddleware   authz.Middleware
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Accounts:       params.Accounts,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	params.AuthzHandler.MountRoutes(r, params.AuthzMiddleware)
	params.ProfilesHandler.MountRoutes(r, params.AuthzMiddleware)
	params.ProjectsHandler.MountRoutes(r, params.AuthzMiddleware)
	params.EventsHandler.MountRoutes(r, params.AuthzMiddleware)
	params.TasksHandler.MountRoutes(r, params.AuthzMiddleware)
	params.PipelineHandler.MountRoutes(r, params.AuthzMiddleware)
	params.AutomationHandler.MountRoutes(r, params.AuthzMiddleware)

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
