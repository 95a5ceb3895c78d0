package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/observability"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/resource"
)

type stubStageLister struct {
	stages []int64
}

func (s *stubStageLister) ListStagesWithKind(ctx context.Context, kindKey string) ([]int64, error) {
	return s.stages, nil
}

type stubStageResolver struct {
	stages map[int64]pipeline.Stage
}

func (s *stubStageResolver) GetStage(ctx context.Context, id int64) (pipeline.Stage, error) {
	return s.stages[id], nil
}

type stubTargetLister struct {
	byStage map[int64][]resource.Ref
}

func (s *stubTargetLister) ListRefsByStage(ctx context.Context, stageID int64) ([]resource.Ref, error) {
	return s.byStage[stageID], nil
}

type countingRunner struct {
	mu   sync.Mutex
	runs []resource.Ref
}

func (r *countingRunner) RunQueue(ctx context.Context, stageID int64, target resource.Ref) (automation.ExecutionReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, target)
	return automation.ExecutionReport{StageID: stageID, Target: target, Status: automation.RunCompleted}, nil
}

func TestExpirationScanRunsEveryTarget(t *testing.T) {
	runner := &countingRunner{}
	job := &ExpirationScanJob{
		Stages: &stubStageLister{stages: []int64{1, 2}},
		Resolve: &stubStageResolver{stages: map[int64]pipeline.Stage{
			1: {ID: 1, Workflow: resource.Ref{Kind: resource.KindProject, ID: 5}},
			2: {ID: 2, Workflow: resource.Ref{Kind: resource.KindEvent, ID: 9}},
		}},
		Listers: map[resource.Kind]TargetLister{
			resource.KindEvent: &stubTargetLister{byStage: map[int64][]resource.Ref{
				1: {{Kind: resource.KindEvent, ID: 11}, {Kind: resource.KindEvent, ID: 12}},
			}},
			resource.KindTask: &stubTargetLister{byStage: map[int64][]resource.Ref{
				2: {{Kind: resource.KindTask, ID: 31}},
			}},
		},
		Runner:  runner,
		Metrics: observability.NewMetrics(),
	}

	require.NoError(t, job.Handle(context.Background(), NewExpirationScanTask()))
	assert.Len(t, runner.runs, 3)
}

func TestExpirationScanSkipsUnlistedKinds(t *testing.T) {
	runner := &countingRunner{}
	job := &ExpirationScanJob{
		Stages: &stubStageLister{stages: []int64{1}},
		Resolve: &stubStageResolver{stages: map[int64]pipeline.Stage{
			1: {ID: 1, Workflow: resource.Ref{Kind: resource.KindProject, ID: 5}},
		}},
		Listers: map[resource.Kind]TargetLister{},
		Runner:  runner,
		Metrics: observability.NewMetrics(),
	}

	require.NoError(t, job.Handle(context.Background(), NewExpirationScanTask()))
	assert.Empty(t, runner.runs)
}
