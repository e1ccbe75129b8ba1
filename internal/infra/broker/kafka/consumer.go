package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer reads payment events through a consumer group. A message is marked only after
// its handler succeeds; failures are retried in place so a later offset never commits
// past an unapplied capture.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  *slog.Logger
	backoff []time.Duration
}

var defaultConsumerBackoff = []time.Duration{200 * time.Millisecond, time.Second, 5 * time.Second, 30 * time.Second}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: group, handler: handler, logger: logger.With("group", groupID), backoff: defaultConsumerBackoff}, nil
}

// Run consumes topics until ctx is cancelled, rejoining the group after every rebalance.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	claims := claimHandler{handler: c.handler, logger: c.logger, backoff: c.backoff}
	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, topics, claims); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type claimHandler struct {
	handler MessageHandler
	logger  *slog.Logger
	backoff []time.Duration
}

func (h claimHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info("payment consumer joined", "generation", sess.GenerationID(), "claims", sess.Claims())
	return nil
}

func (h claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.deliver(sess.Context(), msg) {
				return nil
			}
			sess.MarkMessage(msg, "")
		}
	}
}

// deliver runs the handler until it succeeds. It reports false when ctx ends first, which
// leaves the message unmarked for the next owner of the partition.
func (h claimHandler) deliver(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	for attempt := 0; ; attempt++ {
		err := h.handler.Handle(ctx, msg)
		if err == nil {
			return true
		}
		wait := h.wait(attempt)
		h.logger.Warn("payment event not applied, retrying",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
			"attempt", attempt+1, "retry_in", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func (h claimHandler) wait(attempt int) time.Duration {
	switch {
	case len(h.backoff) == 0:
		return time.Second
	case attempt < len(h.backoff):
		return h.backoff[attempt]
	default:
		return h.backoff[len(h.backoff)-1]
	}
}
