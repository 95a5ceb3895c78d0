package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

type memEventRepo struct {
	events map[int64]Event
	nextID int64
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: map[int64]Event{}, nextID: 1}
}

func (m *memEventRepo) ListByProject(ctx context.Context, projectID int64) ([]Event, error) {
	var out []Event
	for _, e := range m.events {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEventRepo) ListByStage(ctx context.Context, stageID int64) ([]Event, error) {
	var out []Event
	for _, e := range m.events {
		if e.StageID == stageID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEventRepo) Get(ctx context.Context, id int64) (Event, error) {
	e, ok := m.events[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	return e, nil
}

func (m *memEventRepo) Insert(ctx context.Context, e Event) (Event, error) {
	e.ID = m.nextID
	m.nextID++
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	m.events[e.ID] = e
	return e, nil
}

func (m *memEventRepo) Update(ctx context.Context, e Event) (Event, error) {
	current, ok := m.events[e.ID]
	if !ok {
		return Event{}, fmt.Errorf("%w: event %d", shared.ErrNotFound, e.ID)
	}
	current.Title = e.Title
	current.Description = e.Description
	current.Location = e.Location
	current.StartsAt = e.StartsAt
	current.EndsAt = e.EndsAt
	m.events[e.ID] = current
	return current, nil
}

func (m *memEventRepo) SetStage(ctx context.Context, id, stageID int64) error {
	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	e.StageID = stageID
	m.events[id] = e
	return nil
}

func (m *memEventRepo) Field(ctx context.Context, id int64, name string) (any, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	switch name {
	case "title":
		return e.Title, nil
	case "starts_at":
		return e.StartsAt, nil
	default:
		return nil, shared.Validationf("event has no field %q", name)
	}
}

func (m *memEventRepo) Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error {
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	delete(m.events, id)
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
	calls []int64
}

func (r *recordingRunner) RunQueue(ctx context.Context, stageID int64, target resource.Ref) (automation.ExecutionReport, error) {
	r.calls = append(r.calls, stageID)
	return automation.ExecutionReport{StageID: stageID, Target: target, Status: automation.RunCompleted}, nil
}

const (
	leaderID   = int64(3)
	strangerID = int64(4)
	projectID  = int64(10)
)

func newTestService(t *testing.T) (*Service, *memEventRepo, *recordingRunner, *authz.Service) {
	t.Helper()
	repo := newMemEventRepo()
	stages := &stubStages{stages: map[int64]pipeline.Stage{
		1: {ID: 1, Workflow: resource.Ref{Kind: resource.KindProject, ID: projectID}, Name: "planned", Position: 1},
		2: {ID: 2, Workflow: resource.Ref{Kind: resource.KindProject, ID: projectID}, Name: "running", Position: 2},
		9: {ID: 9, Workflow: resource.Ref{Kind: resource.KindProject, ID: 777}, Name: "foreign", Position: 1},
	}}

	roles := &memRoleRepo{tuples: map[string]bool{}}
	registry := resource.NewRegistry()
	always := func(ctx context.Context, id int64) (bool, error) { return true, nil }
	registry.Register(resource.KindProject, always)
	registry.Register(resource.KindEvent, always)
	authzSvc := authz.NewService(roles, registry, nil, nil)

	ctx := context.Background()
	projectRef := resource.Ref{Kind: resource.KindProject, ID: projectID}
	require.NoError(t, authzSvc.Grant(ctx, 1, leaderID, authz.RoleDirectionLeader, &projectRef))

	svc := NewService(repo, stages, authzSvc, nil, nil, nil, nil, nil)
	runner := &recordingRunner{}
	svc.SetRunner(runner)
	return svc, repo, runner, authzSvc
}

func TestCreateGrantsOrganizerToCreator(t *testing.T) {
	svc, _, _, authzSvc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, leaderID, Event{ProjectID: projectID, Title: "spring meetup"})
	require.NoError(t, err)

	ref := created.Ref()
	ok, err := authzSvc.HasRole(ctx, leaderID, authz.RoleOrganizer, &ref)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Create(ctx, strangerID, Event{ProjectID: projectID, Title: "crash"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestCreateValidatesTimeWindow(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := svc.Create(ctx, leaderID, Event{ProjectID: projectID, Title: "backwards", StartsAt: &start, EndsAt: &end})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestAdvanceStageFiresQueue(t *testing.T) {
	svc, repo, runner, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, leaderID, Event{ProjectID: projectID, Title: "spring meetup"})
	require.NoError(t, err)

	report, err := svc.AdvanceStage(ctx, leaderID, created.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, automation.RunCompleted, report.Status)
	assert.Equal(t, []int64{2}, runner.calls)
	assert.Equal(t, int64(2), repo.events[created.ID].StageID)
}

func TestAdvanceStageRejectsForeignStage(t *testing.T) {
	svc, repo, runner, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, leaderID, Event{ProjectID: projectID, Title: "spring meetup"})
	require.NoError(t, err)

	_, err = svc.AdvanceStage(ctx, leaderID, created.ID, 9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Empty(t, runner.calls)
	assert.Zero(t, repo.events[created.ID].StageID)
}

func TestRobotMoveDoesNotFireQueue(t *testing.T) {
	svc, repo, runner, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, leaderID, Event{ProjectID: projectID, Title: "spring meetup"})
	require.NoError(t, err)

	require.NoError(t, svc.MoveToStage(ctx, created.Ref(), 1))
	assert.Empty(t, runner.calls)
	assert.Equal(t, int64(1), repo.events[created.ID].StageID)
}

func TestUpdateRequiresOrganizer(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, leaderID, Event{ProjectID: projectID, Title: "spring meetup"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, strangerID, Event{ID: created.ID, Title: "hijacked"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	updated, err := svc.Update(ctx, leaderID, Event{ID: created.ID, Title: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
}
