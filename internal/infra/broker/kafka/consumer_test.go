package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
)

type flakyHandler struct {
	failures int
	calls    int
}

func (h *flakyHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("store unavailable")
	}
	return nil
}

func quietClaims(handler MessageHandler) claimHandler {
	return claimHandler{
		handler: handler,
		logger:  slog.New(slog.DiscardHandler),
		backoff: []time.Duration{time.Millisecond},
	}
}

func TestDeliverRetriesUntilHandled(t *testing.T) {
	handler := &flakyHandler{failures: 3}

	ok := quietClaims(handler).deliver(context.Background(), &sarama.ConsumerMessage{Topic: "payments.events.v1"})

	assert.True(t, ok)
	assert.Equal(t, 4, handler.calls)
}

func TestDeliverStopsWhenSessionEnds(t *testing.T) {
	handler := &flakyHandler{failures: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ok := quietClaims(handler).deliver(ctx, &sarama.ConsumerMessage{Topic: "payments.events.v1"})

	assert.False(t, ok)
	assert.Positive(t, handler.calls)
}

func TestClaimBackoffClampsToLastStep(t *testing.T) {
	h := claimHandler{backoff: []time.Duration{time.Millisecond, time.Second}}

	assert.Equal(t, time.Millisecond, h.wait(0))
	assert.Equal(t, time.Second, h.wait(5))
	assert.Equal(t, time.Second, claimHandler{}.wait(2))
}
