package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RepositoryPort defines data access methods for projects.
type RepositoryPort interface {
	List(ctx context.Context) ([]Project, error)
	Get(ctx context.Context, id int64) (Project, error)
	Insert(ctx context.Context, name, description string, leaderID int64) (Project, error)
	Update(ctx context.Context, id int64, name, description string) (Project, error)
	Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error
}

// Service handles project business logic. Creation and deletion are
// admin operations; the granted direction leader manages the pipeline.
type Service struct {
	repo         RepositoryPort
	authz        *authz.Service
	authzRepo    *authz.Repository
	pipelineRepo *pipeline.Repository
	audit        *shared.AuditLogger
	logger       *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, authzService *authz.Service, authzRepo *authz.Repository, pipelineRepo *pipeline.Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, authz: authzService, authzRepo: authzRepo, pipelineRepo: pipelineRepo, audit: audit, logger: logger}
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// Get fetches one project.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.repo.Get(ctx, id)
}

// Create adds a project and grants the leader the direction_leader role
// scoped to it.
func (s *Service) Create(ctx context.Context, principalID int64, name, description string, leaderID int64) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, shared.Validationf("project name required")
	}
	if leaderID <= 0 {
		return Project{}, shared.Validationf("leader id required")
	}
	if err := s.requireAdmin(ctx, principalID); err != nil {
		return Project{}, err
	}

	project, err := s.repo.Insert(ctx, name, strings.TrimSpace(description), leaderID)
	if err != nil {
		return Project{}, err
	}
	ref := resource.Ref{Kind: resource.KindProject, ID: project.ID}
	if err := s.authz.Grant(ctx, principalID, leaderID, authz.RoleDirectionLeader, &ref); err != nil {
		return Project{}, fmt.Errorf("projects: grant leader: %w", err)
	}
	s.recordAudit(ctx, principalID, "project.create", project)
	return project, nil
}

// Update rewrites name and description. Admin or the direction leader.
func (s *Service) Update(ctx context.Context, principalID, id int64, name, description string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, shared.Validationf("project name required")
	}
	ref := resource.Ref{Kind: resource.KindProject, ID: id}
	ok, err := s.authz.CanManage(ctx, principalID, authz.RoleDirectionLeader, ref)
	if err != nil {
		return Project{}, err
	}
	if !ok {
		return Project{}, fmt.Errorf("%w: no direction_leader role over %s", shared.ErrForbidden, ref)
	}
	project, err := s.repo.Update(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, principalID, "project.update", project)
	return project, nil
}

// Delete removes the project together with its pipeline and every role
// scoped to it, in one transaction. Admin only.
func (s *Service) Delete(ctx context.Context, principalID, id int64) error {
	if err := s.requireAdmin(ctx, principalID); err != nil {
		return err
	}
	ref := resource.Ref{Kind: resource.KindProject, ID: id}
	err := s.repo.Delete(ctx, id, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.pipelineRepo.DeleteByWorkflow(ctx, tx, ref); err != nil {
			return err
		}
		return s.authz.RevokeAllForResource(ctx, s.authzRepo.WithTx(tx), ref)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "project.delete", Project{ID: id})
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, principalID int64) error {
	ok, err := s.authz.HasRole(ctx, principalID, authz.RoleAdmin, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, project Project) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "project",
		EntityID: fmt.Sprintf("%d", project.ID),
		Meta:     map[string]any{"name": project.Name},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
