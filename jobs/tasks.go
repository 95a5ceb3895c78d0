// Package jobs contains the asynq background worker, its task handlers
// and the enqueue client.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meetpoint/meetpoint/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotifyDeliver is the task type for outbound notifications.
	TaskTypeNotifyDeliver = "notify:deliver"
	// TaskTypeExpirationScan is the task type for the periodic
	// time-expiration trigger sweep.
	TaskTypeExpirationScan = "automation:expiration_scan"
)

// NewNotifyDeliverTask constructs the delivery task for one notification.
func NewNotifyDeliverTask(n notify.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyDeliver, data), nil
}

// NewExpirationScanTask constructs the scheduled scan task. The payload
// is empty; the scan discovers its work from the database.
func NewExpirationScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeExpirationScan, nil)
}

// NotifyDeliverHandler returns the asynq handler that pushes queued
// notifications through the deliverer.
func NotifyDeliverHandler(deliverer notify.Deliverer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var n notify.Notification
		if err := json.Unmarshal(t.Payload(), &n); err != nil {
			return asynq.SkipRetry
		}
		if err := deliverer.Deliver(ctx, n); err != nil {
			if logger != nil {
				logger.Warn("notification delivery failed",
					slog.String("channel", n.Channel),
					slog.Any("error", err),
				)
			}
			return err
		}
		return nil
	}
}
