package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RepositoryPort defines data access methods for tasks.
type RepositoryPort interface {
	ListByEvent(ctx context.Context, eventID int64) ([]Task, error)
	ListByStage(ctx context.Context, stageID int64) ([]Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Insert(ctx context.Context, t Task) (Task, error)
	Update(ctx context.Context, t Task) (Task, error)
	SetStage(ctx context.Context, id, stageID int64) error
	Field(ctx context.Context, id int64, name string) (any, error)
	Delete(ctx context.Context, id int64) error
}

// StageStore resolves stages, satisfied by pipeline.Service.
type StageStore interface {
	GetStage(ctx context.Context, id int64) (pipeline.Stage, error)
}

// Service handles task business logic. Moving a task into a stage fires
// that stage's automation queue against the task.
type Service struct {
	repo   RepositoryPort
	stages StageStore
	authz  *authz.Service
	runner automation.Runner
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, stages StageStore, authzService *authz.Service, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, stages: stages, authz: authzService, audit: audit, logger: logger}
}

// SetRunner installs the automation queue executor.
func (s *Service) SetRunner(r automation.Runner) {
	s.runner = r
}

// ListByEvent returns the event's tasks.
func (s *Service) ListByEvent(ctx context.Context, eventID int64) ([]Task, error) {
	return s.repo.ListByEvent(ctx, eventID)
}

// ListByStage returns the tasks currently in a stage.
func (s *Service) ListByStage(ctx context.Context, stageID int64) ([]Task, error) {
	return s.repo.ListByStage(ctx, stageID)
}

// Get fetches one task.
func (s *Service) Get(ctx context.Context, id int64) (Task, error) {
	return s.repo.Get(ctx, id)
}

// Create adds a task under an event. Requires organizer over the event.
func (s *Service) Create(ctx context.Context, principalID int64, t Task) (Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return Task{}, shared.Validationf("task title required")
	}
	if t.EventID <= 0 {
		return Task{}, shared.Validationf("event id required")
	}
	eventRef := resource.Ref{Kind: resource.KindEvent, ID: t.EventID}
	if err := s.authorize(ctx, principalID, eventRef); err != nil {
		return Task{}, err
	}
	if t.StageID != 0 {
		if err := s.checkStage(ctx, t.StageID, eventRef); err != nil {
			return Task{}, err
		}
	}
	created, err := s.repo.Insert(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.recordAudit(ctx, principalID, "task.create", created)
	return created, nil
}

// Update rewrites the mutable task fields. Requires organizer over the
// task's event.
func (s *Service) Update(ctx context.Context, principalID int64, t Task) (Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return Task{}, shared.Validationf("task title required")
	}
	current, err := s.repo.Get(ctx, t.ID)
	if err != nil {
		return Task{}, err
	}
	eventRef := resource.Ref{Kind: resource.KindEvent, ID: current.EventID}
	if err := s.authorize(ctx, principalID, eventRef); err != nil {
		return Task{}, err
	}
	updated, err := s.repo.Update(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.recordAudit(ctx, principalID, "task.update", updated)
	return updated, nil
}

// Move relocates the task to a stage of its event's pipeline and runs
// that stage's automation queue against the task. The move is committed
// before the queue runs; step failures land in the report.
func (s *Service) Move(ctx context.Context, principalID, taskID, stageID int64) (automation.ExecutionReport, error) {
	task, err := s.repo.Get(ctx, taskID)
	if err != nil {
		return automation.ExecutionReport{}, err
	}
	eventRef := resource.Ref{Kind: resource.KindEvent, ID: task.EventID}
	if err := s.authorize(ctx, principalID, eventRef); err != nil {
		return automation.ExecutionReport{}, err
	}
	if err := s.checkStage(ctx, stageID, eventRef); err != nil {
		return automation.ExecutionReport{}, err
	}

	if err := s.repo.SetStage(ctx, taskID, stageID); err != nil {
		return automation.ExecutionReport{}, err
	}
	s.recordAudit(ctx, principalID, "task.move", task)

	if s.runner == nil {
		return automation.ExecutionReport{StageID: stageID, Target: task.Ref(), Status: automation.RunCompleted}, nil
	}
	return s.runner.RunQueue(ctx, stageID, task.Ref())
}

// Delete removes one task. Requires organizer over the task's event.
func (s *Service) Delete(ctx context.Context, principalID, id int64) error {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	eventRef := resource.Ref{Kind: resource.KindEvent, ID: task.EventID}
	if err := s.authorize(ctx, principalID, eventRef); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "task.delete", task)
	return nil
}

// StageOf returns the task's current stage id, for trigger evaluation.
func (s *Service) StageOf(ctx context.Context, target resource.Ref) (int64, error) {
	task, err := s.repo.Get(ctx, target.ID)
	if err != nil {
		return 0, err
	}
	return task.StageID, nil
}

// MoveToStage relocates the task without firing the destination queue;
// robot-initiated moves never cascade into further runs.
func (s *Service) MoveToStage(ctx context.Context, target resource.Ref, stageID int64) error {
	task, err := s.repo.Get(ctx, target.ID)
	if err != nil {
		return err
	}
	eventRef := resource.Ref{Kind: resource.KindEvent, ID: task.EventID}
	if err := s.checkStage(ctx, stageID, eventRef); err != nil {
		return err
	}
	return s.repo.SetStage(ctx, target.ID, stageID)
}

// Field reads a named task attribute, for trigger evaluation.
func (s *Service) Field(ctx context.Context, target resource.Ref, name string) (any, error) {
	return s.repo.Field(ctx, target.ID, name)
}

// checkStage verifies the stage belongs to the event's own pipeline.
func (s *Service) checkStage(ctx context.Context, stageID int64, eventRef resource.Ref) error {
	stage, err := s.stages.GetStage(ctx, stageID)
	if err != nil {
		return err
	}
	if !stage.Workflow.Equal(eventRef) {
		return shared.Validationf("stage %d does not belong to %s", stageID, eventRef)
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, principalID int64, eventRef resource.Ref) error {
	ok, err := s.authz.CanManage(ctx, principalID, authz.RoleOrganizer, eventRef)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no organizer role over %s", shared.ErrForbidden, eventRef)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, task Task) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "task",
		EntityID: fmt.Sprintf("%d", task.ID),
		Meta:     map[string]any{"event_id": task.EventID},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
