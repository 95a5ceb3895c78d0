package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memQueue struct {
	sent []Notification
	err  error
}

func (m *memQueue) EnqueueNotify(ctx context.Context, n Notification) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

type memDeliverer struct {
	delivered []Notification
}

func (m *memDeliverer) Deliver(ctx context.Context, n Notification) error {
	m.delivered = append(m.delivered, n)
	return nil
}

func TestSendEnqueues(t *testing.T) {
	queue := &memQueue{}
	fallback := &memDeliverer{}
	svc := NewService(queue, fallback, nil)

	require.NoError(t, svc.Send(context.Background(), "Email", "ops@example.com", "stage reached"))

	require.Len(t, queue.sent, 1)
	assert.Equal(t, ChannelEmail, queue.sent[0].Channel)
	assert.Empty(t, fallback.delivered)
}

func TestSendFallsBackWhenQueueFails(t *testing.T) {
	queue := &memQueue{err: errors.New("redis down")}
	fallback := &memDeliverer{}
	svc := NewService(queue, fallback, nil)

	require.NoError(t, svc.Send(context.Background(), "chat", "@ops", "ping"))

	assert.Empty(t, queue.sent)
	require.Len(t, fallback.delivered, 1)
}

func TestSendWithoutQueueDeliversInline(t *testing.T) {
	fallback := &memDeliverer{}
	svc := NewService(nil, fallback, nil)

	require.NoError(t, svc.Send(context.Background(), "webhook", "https://hooks.example.com/x", "fired"))
	require.Len(t, fallback.delivered, 1)
}

func TestSendRejectsBadInput(t *testing.T) {
	svc := NewService(nil, &memDeliverer{}, nil)

	assert.Error(t, svc.Send(context.Background(), "pigeon", "x", "y"))
	assert.Error(t, svc.Send(context.Background(), "email", "  ", "y"))
}
