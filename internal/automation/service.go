package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RepositoryPort defines data access methods for bound actions.
type RepositoryPort interface {
	List(ctx context.Context, stageID int64) ([]BoundAction, error)
	Get(ctx context.Context, id int64) (BoundAction, error)
	Insert(ctx context.Context, stageID int64, kindKey string, config Config, position int) (BoundAction, error)
	Move(ctx context.Context, actionID int64, newPosition int) error
	UpdateConfig(ctx context.Context, actionID int64, config Config) error
	Delete(ctx context.Context, actionID int64) error
	ListStagesWithKind(ctx context.Context, kindKey string) ([]int64, error)
}

// StageStore resolves stages, satisfied by pipeline.Service.
type StageStore interface {
	GetStage(ctx context.Context, id int64) (pipeline.Stage, error)
}

// Authorizer answers the admin-or-scoped-role question for a workflow.
type Authorizer interface {
	CanManage(ctx context.Context, principalID int64, role authz.RoleKind, ref resource.Ref) (bool, error)
}

// Runner executes a stage's queue. Satisfied by Coordinator.
type Runner interface {
	RunQueue(ctx context.Context, stageID int64, target resource.Ref) (ExecutionReport, error)
}

// Service manages the automation queue of a stage. All position-shifting
// mutations under one stage are serialized by a scope lock.
type Service struct {
	registry *Registry
	repo     RepositoryPort
	stages   StageStore
	authz    Authorizer
	runner   Runner
	locks    *shared.ScopeLocks
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(registry *Registry, repo RepositoryPort, stages StageStore, authorizer Authorizer, locks *shared.ScopeLocks, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{registry: registry, repo: repo, stages: stages, authz: authorizer, locks: locks, audit: audit, logger: logger}
}

// SetRunner installs the queue executor. Wired after construction because
// the coordinator reads the same repository the service manages.
func (s *Service) SetRunner(r Runner) {
	s.runner = r
}

// Kinds lists the registered action kinds.
func (s *Service) Kinds() []Kind {
	return s.registry.List()
}

func (s *Service) authorizeStage(ctx context.Context, principalID, stageID int64) (pipeline.Stage, error) {
	stage, err := s.stages.GetStage(ctx, stageID)
	if err != nil {
		return pipeline.Stage{}, err
	}
	role := authz.RoleOrganizer
	if stage.Workflow.Kind == resource.KindProject {
		role = authz.RoleDirectionLeader
	}
	ok, err := s.authz.CanManage(ctx, principalID, role, stage.Workflow)
	if err != nil {
		return pipeline.Stage{}, err
	}
	if !ok {
		return pipeline.Stage{}, fmt.Errorf("%w: no %s role over %s", shared.ErrForbidden, role, stage.Workflow)
	}
	return stage, nil
}

// ListActions returns the stage's queue in position order 1..M.
func (s *Service) ListActions(ctx context.Context, stageID int64) ([]BoundAction, error) {
	if _, err := s.stages.GetStage(ctx, stageID); err != nil {
		return nil, err
	}
	actions, err := s.repo.List(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if err := CheckDenseActions(actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// AttachAction binds an action kind to a stage at the given position
// (0 appends), validating the configuration against the kind's schema.
// Validation failure writes nothing.
func (s *Service) AttachAction(ctx context.Context, principalID, stageID int64, kindKey string, config Config, position int) (BoundAction, error) {
	kind, err := s.registry.Get(kindKey)
	if err != nil {
		return BoundAction{}, err
	}
	if config == nil {
		config = Config{}
	}
	if err := kind.Schema.Validate(config); err != nil {
		return BoundAction{}, err
	}
	if position < 0 {
		return BoundAction{}, shared.Validationf("position must be positive")
	}
	if _, err := s.authorizeStage(ctx, principalID, stageID); err != nil {
		return BoundAction{}, err
	}

	unlock := s.locks.Lock(shared.StageLockKey(stageID))
	defer unlock()

	action, err := s.repo.Insert(ctx, stageID, kindKey, config, position)
	if err != nil {
		return BoundAction{}, err
	}
	s.recordAudit(ctx, principalID, "action.attach", action)
	return action, nil
}

// ReorderAction relocates a bound action within its stage's queue.
func (s *Service) ReorderAction(ctx context.Context, principalID, actionID int64, newPosition int) error {
	if newPosition < 1 {
		return shared.Validationf("position must be positive")
	}
	action, err := s.repo.Get(ctx, actionID)
	if err != nil {
		return err
	}
	if _, err := s.authorizeStage(ctx, principalID, action.StageID); err != nil {
		return err
	}

	unlock := s.locks.Lock(shared.StageLockKey(action.StageID))
	defer unlock()

	if err := s.repo.Move(ctx, actionID, newPosition); err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "action.reorder", action)
	return nil
}

// UpdateActionConfig replaces the action's configuration after validating
// it against the kind's schema.
func (s *Service) UpdateActionConfig(ctx context.Context, principalID, actionID int64, config Config) error {
	action, err := s.repo.Get(ctx, actionID)
	if err != nil {
		return err
	}
	kind, err := s.registry.Get(action.KindKey)
	if err != nil {
		return err
	}
	if config == nil {
		config = Config{}
	}
	if err := kind.Schema.Validate(config); err != nil {
		return err
	}
	if _, err := s.authorizeStage(ctx, principalID, action.StageID); err != nil {
		return err
	}
	if err := s.repo.UpdateConfig(ctx, actionID, config); err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "action.update", action)
	return nil
}

// DetachAction removes a bound action and closes the position gap.
func (s *Service) DetachAction(ctx context.Context, principalID, actionID int64) error {
	action, err := s.repo.Get(ctx, actionID)
	if err != nil {
		return err
	}
	if _, err := s.authorizeStage(ctx, principalID, action.StageID); err != nil {
		return err
	}

	unlock := s.locks.Lock(shared.StageLockKey(action.StageID))
	defer unlock()

	if err := s.repo.Delete(ctx, actionID); err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "action.detach", action)
	return nil
}

// RunStage executes the stage's queue against the target on behalf of the
// principal. The run reads a snapshot of the queue; it does not take the
// stage lock, so concurrent edits affect the next run, not this one.
func (s *Service) RunStage(ctx context.Context, principalID, stageID int64, target resource.Ref) (ExecutionReport, error) {
	if s.runner == nil {
		return ExecutionReport{}, shared.Consistencyf("no queue runner configured")
	}
	if err := target.Validate(); err != nil {
		return ExecutionReport{}, err
	}
	if _, err := s.authorizeStage(ctx, principalID, stageID); err != nil {
		return ExecutionReport{}, err
	}
	report, err := s.runner.RunQueue(ctx, stageID, target)
	if err != nil {
		return ExecutionReport{}, err
	}
	s.recordAudit(ctx, principalID, "queue.run", BoundAction{StageID: stageID})
	return report, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, bound BoundAction) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "bound_action",
		EntityID: fmt.Sprintf("%d", bound.ID),
		Meta:     map[string]any{"stage_id": bound.StageID, "kind": bound.KindKey},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
