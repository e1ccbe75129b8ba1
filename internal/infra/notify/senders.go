package notify

import (
	"context"
	"encoding/json"
	"log/slog"
)

// LogSender writes notifications to the log, used when no broker is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "kind", n.Kind, "booking_id", n.BookingID)
	return nil
}

// Publisher matches the Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// TopicSender publishes notifications keyed by booking id so a booking's messages stay ordered.
type TopicSender struct {
	Publisher Publisher
	Topic     string
}

func (s TopicSender) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.Publisher.Publish(ctx, s.Topic, n.BookingID, payload, map[string]string{
		"content-type":      "application/json",
		"notification-kind": string(n.Kind),
	})
}
