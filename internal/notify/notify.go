// Package notify fans automation notifications out to their channels.
// Delivery normally goes through the background queue; without a queue
// the service falls back to delivering inline.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Channels accepted by the notification robot. The chat channel is
// delivered over the messenger-bot transport.
const (
	ChannelEmail   = "email"
	ChannelChat    = "chat"
	ChannelWebhook = "webhook"
)

// Notification is one outbound message.
type Notification struct {
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Enqueuer hands a notification to the background queue. Satisfied by
// jobs.Client.
type Enqueuer interface {
	EnqueueNotify(ctx context.Context, n Notification) error
}

// Deliverer pushes a notification over its channel.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// Service accepts notifications from the automation layer. It satisfies
// automation.Notifier.
type Service struct {
	queue    Enqueuer
	fallback Deliverer
	logger   *slog.Logger
}

// NewService builds a Service instance. queue may be nil, in which case
// every notification is delivered inline through the fallback.
func NewService(queue Enqueuer, fallback Deliverer, logger *slog.Logger) *Service {
	if fallback == nil {
		fallback = &LogDeliverer{Logger: logger}
	}
	return &Service{queue: queue, fallback: fallback, logger: logger}
}

// Send validates and dispatches one notification.
func (s *Service) Send(ctx context.Context, channel, recipient, message string) error {
	channel = strings.ToLower(strings.TrimSpace(channel))
	switch channel {
	case ChannelEmail, ChannelChat, ChannelWebhook:
	default:
		return fmt.Errorf("notify: unknown channel %q", channel)
	}
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("notify: recipient required")
	}
	n := Notification{
		Channel:   channel,
		Recipient: recipient,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if s.queue != nil {
		if err := s.queue.EnqueueNotify(ctx, n); err == nil {
			return nil
		} else if s.logger != nil {
			s.logger.Warn("notify enqueue failed, delivering inline", slog.Any("error", err))
		}
	}
	return s.fallback.Deliver(ctx, n)
}

// LogDeliverer writes notifications to the log. It stands in for the
// real channel integrations in development and tests.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver logs the notification.
func (d *LogDeliverer) Deliver(ctx context.Context, n Notification) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification delivered",
		slog.String("channel", n.Channel),
		slog.String("recipient", n.Recipient),
		slog.String("message", n.Message),
	)
	return nil
}
