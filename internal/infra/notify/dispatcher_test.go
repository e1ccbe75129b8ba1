package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/app/policies"
)

type senderFunc func(ctx context.Context, n Notification) error

func (f senderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return nil
}

func TestNotifyNeverBlocks(t *testing.T) {
	d := NewDispatcher(senderFunc(func(context.Context, Notification) error { return nil }), 1, nil, nil)
	d.Notify(context.Background(), policies.NotifyBookingPending, "b1")
	d.Notify(context.Background(), policies.NotifyBookingPending, "b2")

	dropped, _ := d.Stats()
	assert.EqualValues(t, 1, dropped)
}

func TestRunRetriesThenGivesUp(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	sender := senderFunc(func(context.Context, Notification) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("broker down")
	})
	d := NewDispatcher(sender, 4, []time.Duration{time.Millisecond, time.Millisecond}, nil)
	d.Notify(context.Background(), policies.NotifyBookingCancelled, "b1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, func() bool {
		_, failed := d.Stats()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestTopicSenderKeysByBooking(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(TopicSender{Publisher: pub, Topic: "notifications.v1"}, 4, nil, nil)
	d.Notify(context.Background(), policies.NotifyBookingConfirmed, "b7")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)

	assert.Equal(t, []string{"notifications.v1"}, pub.topics)
	assert.Equal(t, []string{"b7"}, pub.keys)
}
