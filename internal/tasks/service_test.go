package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

type memTaskRepo struct {
	tasks  map[int64]Task
	nextID int64
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: map[int64]Task{}, nextID: 1}
}

func (m *memTaskRepo) ListByEvent(ctx context.Context, eventID int64) ([]Task, error) {
	var out []Task
	for _, t := range m.tasks {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTaskRepo) ListByStage(ctx context.Context, stageID int64) ([]Task, error) {
	var out []Task
	for _, t := range m.tasks {
		if t.StageID == stageID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTaskRepo) Get(ctx context.Context, id int64) (Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
	}
	return t, nil
}

func (m *memTaskRepo) Insert(ctx context.Context, t Task) (Task, error) {
	t.ID = m.nextID
	m.nextID++
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memTaskRepo) Update(ctx context.Context, t Task) (Task, error) {
	current, ok := m.tasks[t.ID]
	if !ok {
		return Task{}, fmt.Errorf("%w: task %d", shared.ErrNotFound, t.ID)
	}
	current.Title = t.Title
	current.Description = t.Description
	current.AssigneeID = t.AssigneeID
	current.Priority = t.Priority
	current.DueAt = t.DueAt
	m.tasks[t.ID] = current
	return current, nil
}

func (m *memTaskRepo) SetStage(ctx context.Context, id, stageID int64) error {
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
	}
	t.StageID = stageID
	m.tasks[id] = t
	return nil
}

func (m *memTaskRepo) Field(ctx context.Context, id int64, name string) (any, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
	}
	switch name {
	case "title":
		return t.Title, nil
	case "priority":
		return t.Priority, nil
	case "created_at":
		return t.CreatedAt, nil
	default:
		return nil, shared.Validationf("task has no field %q", name)
	}
}

func (m *memTaskRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
	}
	delete(m.tasks, id)
	return nil
}

type stubStages struct {
	stages map[int64]pipeline.Stage
}

func (s *stubStages) GetStage(ctx context.Context, id int64) (pipeline.Stage, error) {
	st, ok := s.stages[id]
	if !ok {
		return pipeline.Stage{}, fmt.Errorf("%w: stage %d", shared.ErrNotFound, id)
	}
	return st, nil
}

type memRoleRepo struct {
	tuples map[string]bool
}

func roleKey(principalID int64, role authz.RoleKind, ref *resource.Ref) string {
	if ref == nil {
		return fmt.Sprintf("%d/%s/global", principalID, role)
	}
	return fmt.Sprintf("%d/%s/%s", principalID, role, ref)
}

func (m *memRoleRepo) Insert(ctx context.Context, principalID int64, role authz.RoleKind, ref *resource.Ref) (bool, error) {
	k := roleKey(principalID, role, ref)
	if m.tuples[k] {
		return false, nil
	}
	m.tuples[k] = true
	return true, nil
}

func (m *memRoleRepo) Delete(ctx context.Context, principalID int64, role authz.RoleKind, ref *resource.Ref) (int64, error) {
	k := roleKey(principalID, role, ref)
	if !m.tuples[k] {
		return 0, nil
	}
	delete(m.tuples, k)
	return 1, nil
}

func (m *memRoleRepo) Exists(ctx context.Context, principalID int64, role authz.RoleKind, ref *resource.Ref) (bool, error) {
	return m.tuples[roleKey(principalID, role, ref)], nil
}

func (m *memRoleRepo) ListByPrincipal(ctx context.Context, principalID int64) ([]authz.Assignment, error) {
	return nil, nil
}

func (m *memRoleRepo) DeleteByResource(ctx context.Context, ref resource.Ref) (int64, error) {
	return 0, nil
}

type recordingRunner struct {
	calls []struct {
		StageID int64
		Target  resource.Ref
	}
}

func (r *recordingRunner) RunQueue(ctx context.Context, stageID int64, target resource.Ref) (automation.ExecutionReport, error) {
	r.calls = append(r.calls, struct {
		StageID int64
		Target  resource.Ref
	}{stageID, target})
	return automation.ExecutionReport{StageID: stageID, Target: target, Status: automation.RunCompleted}, nil
}

const (
	organizerID = int64(7)
	outsiderID  = int64(8)
	adminID     = int64(9)
	eventID     = int64(20)
)

func newTestService(t *testing.T) (*Service, *memTaskRepo, *recordingRunner) {
	t.Helper()
	repo := newMemTaskRepo()
	stages := &stubStages{stages: map[int64]pipeline.Stage{
		1: {ID: 1, Workflow: resource.Ref{Kind: resource.KindEvent, ID: eventID}, Name: "todo", Position: 1},
		2: {ID: 2, Workflow: resource.Ref{Kind: resource.KindEvent, ID: eventID}, Name: "doing", Position: 2},
		3: {ID: 3, Workflow: resource.Ref{Kind: resource.KindEvent, ID: 99}, Name: "foreign", Position: 1},
	}}

	roles := &memRoleRepo{tuples: map[string]bool{}}
	registry := resource.NewRegistry()
	registry.Register(resource.KindEvent, func(ctx context.Context, id int64) (bool, error) { return true, nil })
	authzSvc := authz.NewService(roles, registry, nil, nil)

	ctx := context.Background()
	eventRef := resource.Ref{Kind: resource.KindEvent, ID: eventID}
	require.NoError(t, authzSvc.Grant(ctx, adminID, organizerID, authz.RoleOrganizer, &eventRef))
	require.NoError(t, authzSvc.Grant(ctx, adminID, adminID, authz.RoleAdmin, nil))

	svc := NewService(repo, stages, authzSvc, nil, nil)
	runner := &recordingRunner{}
	svc.SetRunner(runner)
	return svc, repo, runner
}

func TestCreateRequiresOrganizer(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "set up venue"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = svc.Create(ctx, outsiderID, Task{EventID: eventID, Title: "sneak in"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	assert.Len(t, repo.tasks, 1)

	// Global admin manages any event.
	_, err = svc.Create(ctx, adminID, Task{EventID: eventID, Title: "admin task"})
	require.NoError(t, err)
}

func TestCreateValidatesStageOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "misplaced", StageID: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "placed", StageID: 1})
	require.NoError(t, err)
}

func TestMoveFiresDestinationQueue(t *testing.T) {
	svc, repo, runner := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "brief speakers", StageID: 1})
	require.NoError(t, err)

	report, err := svc.Move(ctx, organizerID, created.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, automation.RunCompleted, report.Status)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, int64(2), runner.calls[0].StageID)
	assert.Equal(t, created.Ref(), runner.calls[0].Target)
	assert.Equal(t, int64(2), repo.tasks[created.ID].StageID)
}

func TestMoveRejectsForeignStage(t *testing.T) {
	svc, repo, runner := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "stay put", StageID: 1})
	require.NoError(t, err)

	_, err = svc.Move(ctx, organizerID, created.ID, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Empty(t, runner.calls)
	assert.Equal(t, int64(1), repo.tasks[created.ID].StageID)
}

func TestMoveForbiddenWithoutRole(t *testing.T) {
	svc, _, runner := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "locked", StageID: 1})
	require.NoError(t, err)

	_, err = svc.Move(ctx, outsiderID, created.ID, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	assert.Empty(t, runner.calls)
}

func TestRobotMoveDoesNotFireQueue(t *testing.T) {
	svc, repo, runner := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "chained", StageID: 1})
	require.NoError(t, err)

	require.NoError(t, svc.MoveToStage(ctx, created.Ref(), 2))

	assert.Empty(t, runner.calls)
	assert.Equal(t, int64(2), repo.tasks[created.ID].StageID)

	stageID, err := svc.StageOf(ctx, created.Ref())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stageID)
}

func TestFieldReads(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "catering", Priority: 5})
	require.NoError(t, err)

	v, err := svc.Field(ctx, created.Ref(), "priority")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, err = svc.Field(ctx, created.Ref(), "secret")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestDeleteRequiresOrganizer(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, organizerID, Task{EventID: eventID, Title: "cleanup"})
	require.NoError(t, err)

	err = svc.Delete(ctx, outsiderID, created.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	require.NoError(t, svc.Delete(ctx, organizerID, created.ID))
	assert.Empty(t, repo.tasks)
}
