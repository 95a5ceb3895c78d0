package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RepositoryPort defines data access methods for stages.
type RepositoryPort interface {
	List(ctx context.Context, workflow resource.Ref) ([]Stage, error)
	Get(ctx context.Context, id int64) (Stage, error)
	Insert(ctx context.Context, workflow resource.Ref, name string, color Color, position int) (Stage, error)
	Move(ctx context.Context, stageID int64, newPosition int) error
	Delete(ctx context.Context, stageID int64) error
}

// Authorizer answers the admin-or-scoped-role question for a workflow.
type Authorizer interface {
	CanManage(ctx context.Context, principalID int64, role authz.RoleKind, ref resource.Ref) (bool, error)
}

// Service handles stage pipeline business logic. All position-shifting
// mutations under one workflow are serialized by a scope lock; reads are
// unrestricted.
type Service struct {
	repo   RepositoryPort
	authz  Authorizer
	locks  *shared.ScopeLocks
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, authorizer Authorizer, locks *shared.ScopeLocks, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, authz: authorizer, locks: locks, audit: audit, logger: logger}
}

// manageRole maps a workflow kind to the role allowed to edit its pipeline.
func manageRole(kind resource.Kind) authz.RoleKind {
	if kind == resource.KindProject {
		return authz.RoleDirectionLeader
	}
	return authz.RoleOrganizer
}

func (s *Service) authorize(ctx context.Context, principalID int64, workflow resource.Ref) error {
	ok, err := s.authz.CanManage(ctx, principalID, manageRole(workflow.Kind), workflow)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no %s role over %s", shared.ErrForbidden, manageRole(workflow.Kind), workflow)
	}
	return nil
}

// ListStages returns the workflow's stages in position order 1..N.
func (s *Service) ListStages(ctx context.Context, workflow resource.Ref) ([]Stage, error) {
	if err := validateWorkflow(workflow); err != nil {
		return nil, err
	}
	stages, err := s.repo.List(ctx, workflow)
	if err != nil {
		return nil, err
	}
	if err := CheckDense(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// GetStage fetches one stage.
func (s *Service) GetStage(ctx context.Context, id int64) (Stage, error) {
	return s.repo.Get(ctx, id)
}

// InsertStage creates a stage at the given position, shifting later stages
// up. Position 0 appends.
func (s *Service) InsertStage(ctx context.Context, principalID int64, workflow resource.Ref, name string, color Color, position int) (Stage, error) {
	if err := validateWorkflow(workflow); err != nil {
		return Stage{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Stage{}, shared.Validationf("stage name required")
	}
	if color == "" {
		color = ColorGray
	}
	if !color.Valid() {
		return Stage{}, shared.Validationf("unknown color %q", color)
	}
	if position < 0 {
		return Stage{}, shared.Validationf("position must be positive")
	}
	if err := s.authorize(ctx, principalID, workflow); err != nil {
		return Stage{}, err
	}

	unlock := s.locks.Lock(shared.WorkflowLockKey(string(workflow.Kind), workflow.ID))
	defer unlock()

	stage, err := s.repo.Insert(ctx, workflow, name, color, position)
	if err != nil {
		return Stage{}, err
	}
	s.recordAudit(ctx, principalID, "stage.insert", stage)
	return stage, nil
}

// MoveStage relocates a stage to a new position within its workflow.
func (s *Service) MoveStage(ctx context.Context, principalID, stageID int64, newPosition int) error {
	if newPosition < 1 {
		return shared.Validationf("position must be positive")
	}
	stage, err := s.repo.Get(ctx, stageID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, principalID, stage.Workflow); err != nil {
		return err
	}

	unlock := s.locks.Lock(shared.WorkflowLockKey(string(stage.Workflow.Kind), stage.Workflow.ID))
	defer unlock()

	if err := s.repo.Move(ctx, stageID, newPosition); err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "stage.move", stage)
	return nil
}

// DeleteStage removes a stage together with its automation queue and
// closes the position gap.
func (s *Service) DeleteStage(ctx context.Context, principalID, stageID int64) error {
	stage, err := s.repo.Get(ctx, stageID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, principalID, stage.Workflow); err != nil {
		return err
	}

	unlock := s.locks.Lock(shared.WorkflowLockKey(string(stage.Workflow.Kind), stage.Workflow.ID))
	defer unlock()

	if err := s.repo.Delete(ctx, stageID); err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "stage.delete", stage)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, stage Stage) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stage",
		EntityID: fmt.Sprintf("%d", stage.ID),
		Meta:     map[string]any{"workflow": stage.Workflow.String(), "name": stage.Name},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
