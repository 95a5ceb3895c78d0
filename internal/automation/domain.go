// Package automation implements the per-stage queues of robots and
// triggers: a closed registry of action kinds, the ordered bound actions
// attached to a stage, and the coordinator that runs a stage's queue
// against a target record.
package automation

import (
	"time"

	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Category separates side-effecting robots from condition triggers.
type Category string

const (
	CategoryRobot   Category = "robot"
	CategoryTrigger Category = "trigger"
)

// Config is the free-form, kind-dependent configuration of a bound action.
// Shape is enforced against the kind's schema on attach and update.
type Config map[string]any

// BoundAction is one automation step attached to a stage at a position.
type BoundAction struct {
	ID        int64     `json:"id"`
	StageID   int64     `json:"stage_id"`
	Position  int       `json:"position"`
	KindKey   string    `json:"kind"`
	Config    Config    `json:"config"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blocking reports whether a failure of this step must stop the queue.
func (a BoundAction) Blocking() bool {
	v, _ := a.Config[fieldBlocking].(bool)
	return v
}

// DependsOnTrigger returns the position of the trigger gating this step,
// zero when unconditional.
func (a BoundAction) DependsOnTrigger() int {
	return intField(a.Config, fieldDependsOnTrigger)
}

// StepTimeout returns the per-step dispatch timeout, zero for the engine
// default.
func (a BoundAction) StepTimeout() time.Duration {
	secs := intField(a.Config, fieldTimeoutSeconds)
	return time.Duration(secs) * time.Second
}

// intField reads an integer config value. JSON unmarshalling produces
// float64, storage round-trips may produce int64.
func intField(c Config, key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func stringField(c Config, key string) string {
	v, _ := c[key].(string)
	return v
}

// CheckDenseActions verifies that the actions, ordered as returned by the
// store, occupy positions 1..M.
func CheckDenseActions(actions []BoundAction) error {
	for i, a := range actions {
		if a.Position != i+1 {
			return shared.Consistencyf("action positions not dense: want %d at index %d, got %d", i+1, i, a.Position)
		}
	}
	return nil
}

// Outcome is the per-step result recorded in the execution report.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// RunStatus is the overall result of a queue run.
type RunStatus string

const (
	RunCompleted  RunStatus = "completed"
	RunWithErrors RunStatus = "completed-with-errors"
	RunIncomplete RunStatus = "incomplete"
	RunCancelled  RunStatus = "cancelled"
)

// StepResult is one line of the execution report.
type StepResult struct {
	Position int     `json:"position"`
	KindKey  string  `json:"kind"`
	Category Category `json:"category"`
	Outcome  Outcome `json:"outcome"`
	Detail   string  `json:"detail,omitempty"`
}

// ExecutionReport enumerates what happened when a stage's queue ran
// against a target. Step failures live here, never on RunQueue's error
// channel.
type ExecutionReport struct {
	RunID      string       `json:"run_id"`
	StageID    int64        `json:"stage_id"`
	Target     resource.Ref `json:"target"`
	Status     RunStatus    `json:"status"`
	Steps      []StepResult `json:"steps"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}
