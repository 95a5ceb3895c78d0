package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// memRepo mirrors the SQL repository's shift semantics in memory.
type memRepo struct {
	stages []Stage
	nextID int64
}

func newMemRepo() *memRepo { return &memRepo{nextID: 1} }

func (m *memRepo) scope(workflow resource.Ref) []*Stage {
	var out []*Stage
	for i := range m.stages {
		if m.stages[i].Workflow.Equal(workflow) {
			out = append(out, &m.stages[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *memRepo) List(ctx context.Context, workflow resource.Ref) ([]Stage, error) {
	var out []Stage
	for _, s := range m.scope(workflow) {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memRepo) Get(ctx context.Context, id int64) (Stage, error) {
	for _, s := range m.stages {
		if s.ID == id {
			return s, nil
		}
	}
	return Stage{}, fmt.Errorf("%w: stage %d", shared.ErrNotFound, id)
}

func (m *memRepo) Insert(ctx context.Context, workflow resource.Ref, name string, color Color, position int) (Stage, error) {
	scope := m.scope(workflow)
	if position == 0 {
		position = len(scope) + 1
	}
	if position < 1 || position > len(scope)+1 {
		return Stage{}, shared.Validationf("position %d out of range 1..%d", position, len(scope)+1)
	}
	for _, s := range scope {
		if s.Position >= position {
			s.Position++
		}
	}
	created := Stage{ID: m.nextID, Workflow: workflow, Name: name, Color: color, Position: position}
	m.nextID++
	m.stages = append(m.stages, created)
	return created, nil
}

func (m *memRepo) Move(ctx context.Context, stageID int64, newPosition int) error {
	stage, err := m.Get(ctx, stageID)
	if err != nil {
		return err
	}
	scope := m.scope(stage.Workflow)
	if newPosition < 1 || newPosition > len(scope) {
		return shared.Validationf("position %d out of range 1..%d", newPosition, len(scope))
	}
	old := stage.Position
	for _, s := range scope {
		switch {
		case s.ID == stageID:
			s.Position = newPosition
		case newPosition > old && s.Position > old && s.Position <= newPosition:
			s.Position--
		case newPosition < old && s.Position >= newPosition && s.Position < old:
			s.Position++
		}
	}
	return nil
}

func (m *memRepo) Delete(ctx context.Context, stageID int64) error {
	stage, err := m.Get(ctx, stageID)
	if err != nil {
		return err
	}
	for i := range m.stages {
		if m.stages[i].ID == stageID {
			m.stages = append(m.stages[:i], m.stages[i+1:]...)
			break
		}
	}
	for _, s := range m.scope(stage.Workflow) {
		if s.Position > stage.Position {
			s.Position--
		}
	}
	return nil
}

type allowAll struct{}

func (allowAll) CanManage(ctx context.Context, principalID int64, role authz.RoleKind, ref resource.Ref) (bool, error) {
	return true, nil
}

type denyAll struct{}

func (denyAll) CanManage(ctx context.Context, principalID int64, role authz.RoleKind, ref resource.Ref) (bool, error) {
	return false, nil
}

func newTestService(repo RepositoryPort, authorizer Authorizer) *Service {
	return NewService(repo, authorizer, shared.NewScopeLocks(), nil, nil)
}

var testWorkflow = resource.Ref{Kind: resource.KindEvent, ID: 1}

func mustNames(t *testing.T, svc *Service, workflow resource.Ref) []string {
	t.Helper()
	stages, err := svc.ListStages(context.Background(), workflow)
	require.NoError(t, err)
	require.NoError(t, CheckDense(stages))
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func TestInsertAppendAndAt(t *testing.T) {
	svc := newTestService(newMemRepo(), allowAll{})
	ctx := context.Background()

	_, err := svc.InsertStage(ctx, 1, testWorkflow, "Plan", ColorGray, 0)
	require.NoError(t, err)
	_, err = svc.InsertStage(ctx, 1, testWorkflow, "Review", ColorGreen, 0)
	require.NoError(t, err)
	_, err = svc.InsertStage(ctx, 1, testWorkflow, "Build", ColorYellow, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"Plan", "Build", "Review"}, mustNames(t, svc, testWorkflow))
}

func TestMoveStageForward(t *testing.T) {
	// Scenario: [Plan(1), Build(2), Review(3)]; moving Build to 3 yields
	// [Plan(1), Review(2), Build(3)].
	repo := newMemRepo()
	svc := newTestService(repo, allowAll{})
	ctx := context.Background()

	for _, name := range []string{"Plan", "Build", "Review"} {
		_, err := svc.InsertStage(ctx, 1, testWorkflow, name, ColorGray, 0)
		require.NoError(t, err)
	}
	build, err := svc.ListStages(ctx, testWorkflow)
	require.NoError(t, err)
	require.NoError(t, svc.MoveStage(ctx, 1, build[1].ID, 3))

	assert.Equal(t, []string{"Plan", "Review", "Build"}, mustNames(t, svc, testWorkflow))
}

func TestMoveStageBackward(t *testing.T) {
	svc := newTestService(newMemRepo(), allowAll{})
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C", "D"} {
		_, err := svc.InsertStage(ctx, 1, testWorkflow, name, ColorGray, 0)
		require.NoError(t, err)
	}
	stages, err := svc.ListStages(ctx, testWorkflow)
	require.NoError(t, err)
	require.NoError(t, svc.MoveStage(ctx, 1, stages[3].ID, 1))

	assert.Equal(t, []string{"D", "A", "B", "C"}, mustNames(t, svc, testWorkflow))
}

func TestDeleteClosesGap(t *testing.T) {
	svc := newTestService(newMemRepo(), allowAll{})
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.InsertStage(ctx, 1, testWorkflow, name, ColorGray, 0)
		require.NoError(t, err)
	}
	stages, err := svc.ListStages(ctx, testWorkflow)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteStage(ctx, 1, stages[0].ID))

	assert.Equal(t, []string{"B", "C"}, mustNames(t, svc, testWorkflow))
}

func TestDensityUnderMixedOperations(t *testing.T) {
	svc := newTestService(newMemRepo(), allowAll{})
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 6; i++ {
		s, err := svc.InsertStage(ctx, 1, testWorkflow, fmt.Sprintf("S%d", i), ColorGray, 0)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	require.NoError(t, svc.MoveStage(ctx, 1, ids[0], 6))
	require.NoError(t, svc.DeleteStage(ctx, 1, ids[3]))
	_, err := svc.InsertStage(ctx, 1, testWorkflow, "mid", ColorRed, 3)
	require.NoError(t, err)
	require.NoError(t, svc.MoveStage(ctx, 1, ids[5], 1))
	require.NoError(t, svc.DeleteStage(ctx, 1, ids[1]))

	stages, err := svc.ListStages(ctx, testWorkflow)
	require.NoError(t, err)
	require.NoError(t, CheckDense(stages))
}

func TestInsertPositionOutOfRange(t *testing.T) {
	svc := newTestService(newMemRepo(), allowAll{})
	ctx := context.Background()

	_, err := svc.InsertStage(ctx, 1, testWorkflow, "A", ColorGray, 0)
	require.NoError(t, err)

	_, err = svc.InsertStage(ctx, 1, testWorkflow, "B", ColorGray, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestInsertValidation(t *testing.T) {
	svc := newTestService(newMemRepo(), allowAll{})
	ctx := context.Background()

	_, err := svc.InsertStage(ctx, 1, testWorkflow, "  ", ColorGray, 0)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.InsertStage(ctx, 1, testWorkflow, "A", "purple", 0)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.InsertStage(ctx, 1, resource.Ref{Kind: resource.KindTask, ID: 1}, "A", ColorGray, 0)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestPipelineForbidden(t *testing.T) {
	svc := newTestService(newMemRepo(), denyAll{})

	_, err := svc.InsertStage(context.Background(), 1, testWorkflow, "A", ColorGray, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestSeparateWorkflowsDoNotInterfere(t *testing.T) {
	svc := newTestService(newMemRepo(), allowAll{})
	ctx := context.Background()
	other := resource.Ref{Kind: resource.KindProject, ID: 9}

	_, err := svc.InsertStage(ctx, 1, testWorkflow, "A", ColorGray, 0)
	require.NoError(t, err)
	_, err = svc.InsertStage(ctx, 1, other, "X", ColorGray, 0)
	require.NoError(t, err)
	_, err = svc.InsertStage(ctx, 1, other, "Y", ColorGray, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, mustNames(t, svc, testWorkflow))
	assert.Equal(t, []string{"Y", "X"}, mustNames(t, svc, other))
}
