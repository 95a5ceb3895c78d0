package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RepositoryPort defines data access methods for events.
type RepositoryPort interface {
	ListByProject(ctx context.Context, projectID int64) ([]Event, error)
	ListByStage(ctx context.Context, stageID int64) ([]Event, error)
	Get(ctx context.Context, id int64) (Event, error)
	Insert(ctx context.Context, e Event) (Event, error)
	Update(ctx context.Context, e Event) (Event, error)
	SetStage(ctx context.Context, id, stageID int64) error
	Field(ctx context.Context, id int64, name string) (any, error)
	Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error
}

// StageStore resolves stages, satisfied by pipeline.Service.
type StageStore interface {
	GetStage(ctx context.Context, id int64) (pipeline.Stage, error)
}

// TaskPurger deletes an event's tasks inside the deletion transaction.
// Satisfied by tasks.Repository.
type TaskPurger interface {
	DeleteByEvent(ctx context.Context, tx pgx.Tx, eventID int64) error
}

// Service handles event business logic.
type Service struct {
	repo         RepositoryPort
	stages       StageStore
	authz        *authz.Service
	authzRepo    *authz.Repository
	pipelineRepo *pipeline.Repository
	tasks        TaskPurger
	runner       automation.Runner
	audit        *shared.AuditLogger
	logger       *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, stages StageStore, authzService *authz.Service, authzRepo *authz.Repository, pipelineRepo *pipeline.Repository, tasks TaskPurger, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, stages: stages, authz: authzService, authzRepo: authzRepo, pipelineRepo: pipelineRepo, tasks: tasks, audit: audit, logger: logger}
}

// SetRunner installs the automation queue executor.
func (s *Service) SetRunner(r automation.Runner) {
	s.runner = r
}

// ListByProject returns the project's events.
func (s *Service) ListByProject(ctx context.Context, projectID int64) ([]Event, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// Get fetches one event.
func (s *Service) Get(ctx context.Context, id int64) (Event, error) {
	return s.repo.Get(ctx, id)
}

// Create adds an event under a project and grants the creator the
// organizer role scoped to it. Requires direction_leader over the project.
func (s *Service) Create(ctx context.Context, principalID int64, e Event) (Event, error) {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return Event{}, shared.Validationf("event title required")
	}
	if e.ProjectID <= 0 {
		return Event{}, shared.Validationf("project id required")
	}
	if e.StartsAt != nil && e.EndsAt != nil && e.EndsAt.Before(*e.StartsAt) {
		return Event{}, shared.Validationf("event ends before it starts")
	}
	projectRef := resource.Ref{Kind: resource.KindProject, ID: e.ProjectID}
	if err := s.authorize(ctx, principalID, authz.RoleDirectionLeader, projectRef); err != nil {
		return Event{}, err
	}

	e.CreatedBy = principalID
	created, err := s.repo.Insert(ctx, e)
	if err != nil {
		return Event{}, err
	}
	ref := created.Ref()
	if err := s.authz.Grant(ctx, principalID, principalID, authz.RoleOrganizer, &ref); err != nil {
		return Event{}, fmt.Errorf("events: grant organizer: %w", err)
	}
	s.recordAudit(ctx, principalID, "event.create", created)
	return created, nil
}

// Update rewrites the mutable event fields. Requires organizer over the
// event.
func (s *Service) Update(ctx context.Context, principalID int64, e Event) (Event, error) {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return Event{}, shared.Validationf("event title required")
	}
	current, err := s.repo.Get(ctx, e.ID)
	if err != nil {
		return Event{}, err
	}
	if err := s.authorize(ctx, principalID, authz.RoleOrganizer, current.Ref()); err != nil {
		return Event{}, err
	}
	updated, err := s.repo.Update(ctx, e)
	if err != nil {
		return Event{}, err
	}
	s.recordAudit(ctx, principalID, "event.update", updated)
	return updated, nil
}

// AdvanceStage moves the event to a stage of its project's pipeline and
// runs that stage's automation queue against the event. The stage change
// is committed before the queue runs; step failures land in the report.
func (s *Service) AdvanceStage(ctx context.Context, principalID, eventID, stageID int64) (automation.ExecutionReport, error) {
	event, err := s.repo.Get(ctx, eventID)
	if err != nil {
		return automation.ExecutionReport{}, err
	}
	stage, err := s.stages.GetStage(ctx, stageID)
	if err != nil {
		return automation.ExecutionReport{}, err
	}
	projectRef := resource.Ref{Kind: resource.KindProject, ID: event.ProjectID}
	if !stage.Workflow.Equal(projectRef) {
		return automation.ExecutionReport{}, shared.Validationf("stage %d does not belong to project %d", stageID, event.ProjectID)
	}
	if err := s.authorize(ctx, principalID, authz.RoleDirectionLeader, projectRef); err != nil {
		return automation.ExecutionReport{}, err
	}

	if err := s.repo.SetStage(ctx, eventID, stageID); err != nil {
		return automation.ExecutionReport{}, err
	}
	s.recordAudit(ctx, principalID, "event.advance", event)

	if s.runner == nil {
		return automation.ExecutionReport{StageID: stageID, Target: event.Ref(), Status: automation.RunCompleted}, nil
	}
	return s.runner.RunQueue(ctx, stageID, event.Ref())
}

// Delete removes the event together with its pipeline, its tasks and
// every role scoped to it, in one transaction.
func (s *Service) Delete(ctx context.Context, principalID, id int64) error {
	event, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	ref := event.Ref()
	if err := s.authorize(ctx, principalID, authz.RoleOrganizer, ref); err != nil {
		return err
	}
	err = s.repo.Delete(ctx, id, func(ctx context.Context, tx pgx.Tx) error {
		if s.tasks != nil {
			if err := s.tasks.DeleteByEvent(ctx, tx, id); err != nil {
				return err
			}
		}
		if err := s.pipelineRepo.DeleteByWorkflow(ctx, tx, ref); err != nil {
			return err
		}
		return s.authz.RevokeAllForResource(ctx, s.authzRepo.WithTx(tx), ref)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "event.delete", event)
	return nil
}

// StageOf returns the event's current stage id, for trigger evaluation.
func (s *Service) StageOf(ctx context.Context, target resource.Ref) (int64, error) {
	event, err := s.repo.Get(ctx, target.ID)
	if err != nil {
		return 0, err
	}
	return event.StageID, nil
}

// MoveToStage relocates the event without firing the destination queue;
// robot-initiated moves never cascade into further runs.
func (s *Service) MoveToStage(ctx context.Context, target resource.Ref, stageID int64) error {
	event, err := s.repo.Get(ctx, target.ID)
	if err != nil {
		return err
	}
	stage, err := s.stages.GetStage(ctx, stageID)
	if err != nil {
		return err
	}
	projectRef := resource.Ref{Kind: resource.KindProject, ID: event.ProjectID}
	if !stage.Workflow.Equal(projectRef) {
		return shared.Validationf("stage %d does not belong to project %d", stageID, event.ProjectID)
	}
	return s.repo.SetStage(ctx, target.ID, stageID)
}

// Field reads a named event attribute, for trigger evaluation.
func (s *Service) Field(ctx context.Context, target resource.Ref, name string) (any, error) {
	return s.repo.Field(ctx, target.ID, name)
}

func (s *Service) authorize(ctx context.Context, principalID int64, role authz.RoleKind, ref resource.Ref) error {
	ok, err := s.authz.CanManage(ctx, principalID, role, ref)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no %s role over %s", shared.ErrForbidden, role, ref)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, event Event) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "event",
		EntityID: fmt.Sprintf("%d", event.ID),
		Meta:     map[string]any{"project_id": event.ProjectID},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
