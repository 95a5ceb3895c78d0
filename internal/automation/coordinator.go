package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meetpoint/meetpoint/internal/resource"
)

// RobotHandler performs a side-effecting operation against the target.
type RobotHandler interface {
	Execute(ctx context.Context, action BoundAction, target resource.Ref) (detail string, err error)
}

// TriggerHandler evaluates a condition against the target. A negative
// result is a control signal, not a failure.
type TriggerHandler interface {
	Evaluate(ctx context.Context, action BoundAction, target resource.Ref) (met bool, detail string, err error)
}

// MetricsRecorder receives per-run observations. Satisfied by
// observability.Metrics.
type MetricsRecorder interface {
	ObserveQueueRun(status string, seconds float64)
}

// QueueReader is the slice of the repository the coordinator needs.
type QueueReader interface {
	List(ctx context.Context, stageID int64) ([]BoundAction, error)
}

// Coordinator runs a stage's automation queue in position order. Distinct
// stages may run concurrently; within one run, steps are strictly
// sequential because later steps may depend on earlier trigger outcomes.
type Coordinator struct {
	queue       QueueReader
	registry    *Registry
	robots      map[string]RobotHandler
	triggers    map[string]TriggerHandler
	stepTimeout time.Duration
	metrics     MetricsRecorder
	logger      *slog.Logger
}

// NewCoordinator builds a coordinator with no handlers registered.
func NewCoordinator(queue QueueReader, registry *Registry, stepTimeout time.Duration, metrics MetricsRecorder, logger *slog.Logger) *Coordinator {
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &Coordinator{
		queue:       queue,
		registry:    registry,
		robots:      make(map[string]RobotHandler),
		triggers:    make(map[string]TriggerHandler),
		stepTimeout: stepTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// RegisterRobot installs the handler for a robot kind.
func (c *Coordinator) RegisterRobot(kindKey string, h RobotHandler) {
	c.robots[kindKey] = h
}

// RegisterTrigger installs the handler for a trigger kind.
func (c *Coordinator) RegisterTrigger(kindKey string, h TriggerHandler) {
	c.triggers[kindKey] = h
}

// RunQueue executes the stage's queue against the target and reports the
// per-step outcomes. Step failures and timeouts land in the report, never
// on the error channel; RunQueue itself only fails on engine problems
// (store unavailable, corrupted queue state).
func (c *Coordinator) RunQueue(ctx context.Context, stageID int64, target resource.Ref) (ExecutionReport, error) {
	report := ExecutionReport{
		RunID:     uuid.NewString(),
		StageID:   stageID,
		Target:    target,
		StartedAt: time.Now().UTC(),
	}

	actions, err := c.queue.List(ctx, stageID)
	if err != nil {
		return ExecutionReport{}, fmt.Errorf("automation: load queue for stage %d: %w", stageID, err)
	}
	if err := CheckDenseActions(actions); err != nil {
		return ExecutionReport{}, err
	}

	var (
		anyFailed      bool
		blocked        bool
		cancelled      bool
		triggerOutcome = make(map[int]bool)
	)

	for _, action := range actions {
		kind, known := c.registry.Lookup(action.KindKey)
		step := StepResult{Position: action.Position, KindKey: action.KindKey, Category: kind.Category}

		switch {
		case cancelled, blocked:
			step.Outcome = OutcomeSkipped
			if cancelled {
				step.Detail = "run cancelled"
			} else {
				step.Detail = "blocked by earlier failure"
			}
		case ctx.Err() != nil:
			cancelled = true
			step.Outcome = OutcomeSkipped
			step.Detail = "run cancelled"
		case !known:
			anyFailed = true
			step.Outcome = OutcomeFailed
			step.Detail = fmt.Sprintf("unknown action kind %q", action.KindKey)
			if action.Blocking() {
				blocked = true
			}
		case gated(action, triggerOutcome):
			step.Outcome = OutcomeSkipped
			step.Detail = fmt.Sprintf("gated by trigger at position %d", action.DependsOnTrigger())
		default:
			c.dispatch(ctx, kind, action, target, &step, triggerOutcome)
			if step.Outcome == OutcomeFailed {
				anyFailed = true
				if action.Blocking() {
					blocked = true
				}
			}
			// The dispatched step was allowed to finish; cancellation only
			// stops subsequent steps.
			if ctx.Err() != nil {
				cancelled = true
			}
		}

		report.Steps = append(report.Steps, step)
	}

	switch {
	case cancelled:
		report.Status = RunCancelled
	case blocked:
		report.Status = RunIncomplete
	case anyFailed:
		report.Status = RunWithErrors
	default:
		report.Status = RunCompleted
	}
	report.FinishedAt = time.Now().UTC()

	if c.metrics != nil {
		c.metrics.ObserveQueueRun(string(report.Status), report.FinishedAt.Sub(report.StartedAt).Seconds())
	}
	if c.logger != nil {
		c.logger.Info("queue run finished",
			slog.String("run_id", report.RunID),
			slog.Int64("stage_id", stageID),
			slog.String("target", target.String()),
			slog.String("status", string(report.Status)),
			slog.Int("steps", len(report.Steps)),
		)
	}
	return report, nil
}

// gated reports whether the step depends on a trigger that did not
// affirmatively pass.
func gated(action BoundAction, triggerOutcome map[int]bool) bool {
	dep := action.DependsOnTrigger()
	if dep == 0 {
		return false
	}
	return !triggerOutcome[dep]
}

func (c *Coordinator) dispatch(ctx context.Context, kind Kind, action BoundAction, target resource.Ref, step *StepResult, triggerOutcome map[int]bool) {
	timeout := action.StepTimeout()
	if timeout <= 0 {
		timeout = c.stepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch kind.Category {
	case CategoryRobot:
		handler, ok := c.robots[action.KindKey]
		if !ok {
			step.Outcome = OutcomeFailed
			step.Detail = fmt.Sprintf("no robot handler registered for %q", action.KindKey)
			return
		}
		detail, err := handler.Execute(stepCtx, action, target)
		if err != nil {
			step.Outcome = OutcomeFailed
			step.Detail = err.Error()
			return
		}
		step.Outcome = OutcomeSucceeded
		step.Detail = detail
	case CategoryTrigger:
		handler, ok := c.triggers[action.KindKey]
		if !ok {
			step.Outcome = OutcomeFailed
			step.Detail = fmt.Sprintf("no trigger handler registered for %q", action.KindKey)
			return
		}
		met, detail, err := handler.Evaluate(stepCtx, action, target)
		if err != nil {
			step.Outcome = OutcomeFailed
			step.Detail = err.Error()
			return
		}
		triggerOutcome[action.Position] = met
		step.Outcome = OutcomeSucceeded
		if detail == "" {
			detail = fmt.Sprintf("condition met: %t", met)
		}
		step.Detail = detail
	default:
		step.Outcome = OutcomeFailed
		step.Detail = fmt.Sprintf("kind %q has unknown category %q", action.KindKey, kind.Category)
	}
}
