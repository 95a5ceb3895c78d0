package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/resource"
)

type memQueue struct {
	actions []BoundAction
}

func (m memQueue) List(ctx context.Context, stageID int64) ([]BoundAction, error) {
	return m.actions, nil
}

type robotFunc func(ctx context.Context, action BoundAction, target resource.Ref) (string, error)

func (f robotFunc) Execute(ctx context.Context, action BoundAction, target resource.Ref) (string, error) {
	return f(ctx, action, target)
}

type triggerFunc func(ctx context.Context, action BoundAction, target resource.Ref) (bool, string, error)

func (f triggerFunc) Evaluate(ctx context.Context, action BoundAction, target resource.Ref) (bool, string, error) {
	return f(ctx, action, target)
}

func act(position int, kind string, config Config) BoundAction {
	if config == nil {
		config = Config{}
	}
	return BoundAction{ID: int64(position), StageID: 1, Position: position, KindKey: kind, Config: config}
}

var testTarget = resource.Ref{Kind: resource.KindTask, ID: 42}

func newTestCoordinator(actions ...BoundAction) *Coordinator {
	return NewCoordinator(memQueue{actions: actions}, NewRegistry(), time.Second, nil, nil)
}

func outcomes(report ExecutionReport) []Outcome {
	out := make([]Outcome, len(report.Steps))
	for i, s := range report.Steps {
		out[i] = s.Outcome
	}
	return out
}

func TestRunQueueAllSucceed(t *testing.T) {
	c := newTestCoordinator(
		act(1, KindNotification, nil),
		act(2, KindNotification, nil),
	)
	var order []int
	c.RegisterRobot(KindNotification, robotFunc(func(ctx context.Context, a BoundAction, _ resource.Ref) (string, error) {
		order = append(order, a.Position)
		return "ok", nil
	}))

	report, err := c.RunQueue(context.Background(), 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeSucceeded}, outcomes(report))
	assert.Equal(t, []int{1, 2}, order)
	assert.NotEmpty(t, report.RunID)
}

func TestRunQueueNonBlockingFailureContinues(t *testing.T) {
	// Robot A fails without blocking, robot B still runs; the run finishes
	// with errors.
	c := newTestCoordinator(
		act(1, KindNotification, nil),
		act(2, KindMoveStatus, Config{FieldTargetStatus: 3}),
	)
	c.RegisterRobot(KindNotification, robotFunc(func(context.Context, BoundAction, resource.Ref) (string, error) {
		return "", errors.New("smtp unreachable")
	}))
	c.RegisterRobot(KindMoveStatus, robotFunc(func(context.Context, BoundAction, resource.Ref) (string, error) {
		return "moved", nil
	}))

	report, err := c.RunQueue(context.Background(), 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunWithErrors, report.Status)
	assert.Equal(t, []Outcome{OutcomeFailed, OutcomeSucceeded}, outcomes(report))
	assert.Equal(t, "smtp unreachable", report.Steps[0].Detail)
}

func TestRunQueueBlockingFailureSkipsRemainder(t *testing.T) {
	c := newTestCoordinator(
		act(1, KindNotification, Config{"blocking": true}),
		act(2, KindMoveStatus, Config{FieldTargetStatus: 3}),
		act(3, KindNotification, nil),
	)
	moved := false
	c.RegisterRobot(KindNotification, robotFunc(func(context.Context, BoundAction, resource.Ref) (string, error) {
		return "", errors.New("boom")
	}))
	c.RegisterRobot(KindMoveStatus, robotFunc(func(context.Context, BoundAction, resource.Ref) (string, error) {
		moved = true
		return "moved", nil
	}))

	report, err := c.RunQueue(context.Background(), 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunIncomplete, report.Status)
	assert.Equal(t, []Outcome{OutcomeFailed, OutcomeSkipped, OutcomeSkipped}, outcomes(report))
	assert.False(t, moved)
}

func TestRunQueueTriggerGating(t *testing.T) {
	queue := []BoundAction{
		act(1, KindStatusCheck, Config{FieldStatus: 5}),
		act(2, KindNotification, Config{"depends_on_trigger": 1}),
		act(3, KindNotification, nil),
	}

	for _, met := range []bool{false, true} {
		c := newTestCoordinator(queue...)
		c.RegisterTrigger(KindStatusCheck, triggerFunc(func(context.Context, BoundAction, resource.Ref) (bool, string, error) {
			return met, "", nil
		}))
		var sent []int
		c.RegisterRobot(KindNotification, robotFunc(func(_ context.Context, a BoundAction, _ resource.Ref) (string, error) {
			sent = append(sent, a.Position)
			return "sent", nil
		}))

		report, err := c.RunQueue(context.Background(), 1, testTarget)
		require.NoError(t, err)

		// A negative trigger is a control signal, never a failure.
		assert.Equal(t, RunCompleted, report.Status)
		assert.Equal(t, OutcomeSucceeded, report.Steps[0].Outcome)
		if met {
			assert.Equal(t, []int{2, 3}, sent)
			assert.Equal(t, OutcomeSucceeded, report.Steps[1].Outcome)
		} else {
			assert.Equal(t, []int{3}, sent)
			assert.Equal(t, OutcomeSkipped, report.Steps[1].Outcome)
		}
	}
}

func TestRunQueueTriggerErrorIsFailure(t *testing.T) {
	c := newTestCoordinator(
		act(1, KindFieldComparison, Config{FieldField: "priority", FieldOperator: ">", FieldValue: "3"}),
		act(2, KindNotification, Config{"depends_on_trigger": 1}),
	)
	c.RegisterTrigger(KindFieldComparison, triggerFunc(func(context.Context, BoundAction, resource.Ref) (bool, string, error) {
		return false, "", errors.New("field store down")
	}))
	c.RegisterRobot(KindNotification, robotFunc(func(context.Context, BoundAction, resource.Ref) (string, error) {
		return "sent", nil
	}))

	report, err := c.RunQueue(context.Background(), 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunWithErrors, report.Status)
	assert.Equal(t, OutcomeFailed, report.Steps[0].Outcome)
	// An errored trigger never recorded an outcome, so the gated step skips.
	assert.Equal(t, OutcomeSkipped, report.Steps[1].Outcome)
}

func TestRunQueueStepTimeout(t *testing.T) {
	c := NewCoordinator(memQueue{actions: []BoundAction{
		act(1, KindNotification, nil),
		act(2, KindNotification, nil),
	}}, NewRegistry(), 10*time.Millisecond, nil, nil)

	calls := 0
	c.RegisterRobot(KindNotification, robotFunc(func(ctx context.Context, _ BoundAction, _ resource.Ref) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}))

	report, err := c.RunQueue(context.Background(), 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunWithErrors, report.Status)
	assert.Equal(t, []Outcome{OutcomeFailed, OutcomeSucceeded}, outcomes(report))
}

func TestRunQueueCancellation(t *testing.T) {
	c := newTestCoordinator(
		act(1, KindNotification, nil),
		act(2, KindNotification, nil),
		act(3, KindNotification, nil),
	)
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	c.RegisterRobot(KindNotification, robotFunc(func(context.Context, BoundAction, resource.Ref) (string, error) {
		calls++
		// Cancel mid-run; the current step is allowed to finish.
		cancel()
		return "sent", nil
	}))

	report, err := c.RunQueue(ctx, 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunCancelled, report.Status)
	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeSkipped, OutcomeSkipped}, outcomes(report))
	assert.Equal(t, 1, calls)
}

func TestRunQueueUnknownKindFails(t *testing.T) {
	c := newTestCoordinator(
		act(1, "robot.teleport", nil),
		act(2, KindNotification, nil),
	)
	c.RegisterRobot(KindNotification, robotFunc(func(context.Context, BoundAction, resource.Ref) (string, error) {
		return "sent", nil
	}))

	report, err := c.RunQueue(context.Background(), 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunWithErrors, report.Status)
	assert.Equal(t, []Outcome{OutcomeFailed, OutcomeSucceeded}, outcomes(report))
}

func TestRunQueueEmptyStage(t *testing.T) {
	c := newTestCoordinator()

	report, err := c.RunQueue(context.Background(), 1, testTarget)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.Status)
	assert.Empty(t, report.Steps)
}
