package automation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/meetpoint/meetpoint/internal/resource"
)

// TargetStore gives the handlers read and move access to target records.
// Satisfied by tasks.Service for task targets.
type TargetStore interface {
	// StageOf returns the id of the stage the target currently sits in.
	StageOf(ctx context.Context, target resource.Ref) (int64, error)
	// MoveToStage relocates the target to another stage of its workflow.
	MoveToStage(ctx context.Context, target resource.Ref, stageID int64) error
	// Field reads a named attribute of the target record.
	Field(ctx context.Context, target resource.Ref, name string) (any, error)
}

// Notifier delivers a message out of band. Satisfied by notify.Service.
type Notifier interface {
	Send(ctx context.Context, channel, recipient, message string) error
}

// RegisterBuiltins wires the built-in robot and trigger handlers into the
// coordinator.
func RegisterBuiltins(c *Coordinator, store TargetStore, notifier Notifier) {
	c.RegisterRobot(KindMoveStatus, &MoveStatusRobot{Store: store})
	c.RegisterRobot(KindNotification, &NotificationRobot{Notifier: notifier})
	c.RegisterTrigger(KindTimeExpiration, &TimeExpirationTrigger{Store: store, Now: time.Now})
	c.RegisterTrigger(KindStatusCheck, &StatusCheckTrigger{Store: store})
	c.RegisterTrigger(KindFieldComparison, &FieldComparisonTrigger{Store: store})
}

// MoveStatusRobot relocates the target to the stage named in the config.
type MoveStatusRobot struct {
	Store TargetStore
}

func (r *MoveStatusRobot) Execute(ctx context.Context, action BoundAction, target resource.Ref) (string, error) {
	stageID := int64(intField(action.Config, FieldTargetStatus))
	if stageID == 0 {
		return "", fmt.Errorf("move_status: missing %s", FieldTargetStatus)
	}
	if err := r.Store.MoveToStage(ctx, target, stageID); err != nil {
		return "", fmt.Errorf("move_status: %w", err)
	}
	return fmt.Sprintf("moved %s to stage %d", target, stageID), nil
}

// NotificationRobot sends a templated message over the configured channel.
type NotificationRobot struct {
	Notifier Notifier
}

func (r *NotificationRobot) Execute(ctx context.Context, action BoundAction, target resource.Ref) (string, error) {
	channel := stringField(action.Config, FieldChannel)
	recipient := stringField(action.Config, FieldRecipient)
	message := stringField(action.Config, FieldMessage)
	if err := r.Notifier.Send(ctx, channel, recipient, message); err != nil {
		return "", fmt.Errorf("notification: %w", err)
	}
	return fmt.Sprintf("sent %s notification to %s", channel, recipient), nil
}

// TimeExpirationTrigger passes when the configured interval has elapsed
// since the timestamp held in the target's field.
type TimeExpirationTrigger struct {
	Store TargetStore
	Now   func() time.Time
}

func (t *TimeExpirationTrigger) Evaluate(ctx context.Context, action BoundAction, target resource.Ref) (bool, string, error) {
	field := stringField(action.Config, FieldField)
	raw, err := t.Store.Field(ctx, target, field)
	if err != nil {
		return false, "", fmt.Errorf("time_expiration: %w", err)
	}
	since, err := asTime(raw)
	if err != nil {
		return false, "", fmt.Errorf("time_expiration: field %q: %w", field, err)
	}

	value := intField(action.Config, FieldValue)
	var unit time.Duration
	switch stringField(action.Config, FieldInterval) {
	case "days":
		unit = 24 * time.Hour
	case "hours":
		unit = time.Hour
	case "minutes":
		unit = time.Minute
	default:
		return false, "", fmt.Errorf("time_expiration: bad interval %q", stringField(action.Config, FieldInterval))
	}

	deadline := since.Add(time.Duration(value) * unit)
	met := !t.Now().Before(deadline)
	return met, fmt.Sprintf("%s deadline %s, met: %t", field, deadline.Format(time.RFC3339), met), nil
}

func asTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("not a timestamp: %q", v)
		}
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("not a timestamp: %T", raw)
}

// StatusCheckTrigger passes when the target sits in the configured stage.
type StatusCheckTrigger struct {
	Store TargetStore
}

func (t *StatusCheckTrigger) Evaluate(ctx context.Context, action BoundAction, target resource.Ref) (bool, string, error) {
	current, err := t.Store.StageOf(ctx, target)
	if err != nil {
		return false, "", fmt.Errorf("status_check: %w", err)
	}
	want := int64(intField(action.Config, FieldStatus))
	met := current == want
	return met, fmt.Sprintf("target in stage %d, want %d", current, want), nil
}

// FieldComparisonTrigger passes when the target's field compares true
// against the configured value. Values that parse as numbers on both
// sides compare numerically, anything else compares as strings.
type FieldComparisonTrigger struct {
	Store TargetStore
}

func (t *FieldComparisonTrigger) Evaluate(ctx context.Context, action BoundAction, target resource.Ref) (bool, string, error) {
	field := stringField(action.Config, FieldField)
	raw, err := t.Store.Field(ctx, target, field)
	if err != nil {
		return false, "", fmt.Errorf("field_comparison: %w", err)
	}
	op := stringField(action.Config, FieldOperator)
	want := stringField(action.Config, FieldValue)

	met, err := compare(raw, op, want)
	if err != nil {
		return false, "", fmt.Errorf("field_comparison: field %q: %w", field, err)
	}
	return met, fmt.Sprintf("%v %s %s is %t", raw, op, want, met), nil
}

func compare(raw any, op, want string) (bool, error) {
	got := fmt.Sprintf("%v", raw)

	gotNum, gotErr := strconv.ParseFloat(got, 64)
	wantNum, wantErr := strconv.ParseFloat(want, 64)
	if gotErr == nil && wantErr == nil {
		switch op {
		case ">":
			return gotNum > wantNum, nil
		case "<":
			return gotNum < wantNum, nil
		case "==":
			return gotNum == wantNum, nil
		case "!=":
			return gotNum != wantNum, nil
		}
		return false, fmt.Errorf("bad operator %q", op)
	}

	switch op {
	case "==":
		return got == want, nil
	case "!=":
		return got != want, nil
	case ">", "<":
		return false, fmt.Errorf("operator %q needs numeric operands, got %q and %q", op, got, want)
	}
	return false, fmt.Errorf("bad operator %q", op)
}
