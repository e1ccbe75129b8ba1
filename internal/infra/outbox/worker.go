package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	appoutbox "divineconnect/internal/app/outbox"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Relay is the lease side of the outbox store.
type Relay interface {
	Claim(ctx context.Context, workerID string) (*Message, error)
	Delivered(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, next time.Time, cause string) error
	Park(ctx context.Context, id string, cause string) error
}

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultRetryDelay   = 5 * time.Second
	defaultMaxAttempts  = 12
	defaultSource       = "app://divineconnect"
)

// Worker relays booking events to Kafka as CloudEvents keyed by booking id, so one
// booking's events stay on one partition.
type Worker struct {
	Store       Relay
	Producer    Producer
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	// MaxAttempts parks a message after this many failed publishes.
	MaxAttempts int
	Logger      *slog.Logger
}

var ErrWorkerNotConfigured = errors.New("outbox: worker needs a store and a producer")

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.logger().Error("outbox relay failed", "error", err)
			}
		}
	}
}

// drain relays every due message.
func (w *Worker) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		msg, err := w.Store.Claim(ctx, w.ID)
		if err != nil || msg == nil {
			return err
		}
		if err := w.settle(ctx, msg, w.publish(ctx, msg.Record())); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) settle(ctx context.Context, msg *Message, published error) error {
	if published == nil {
		return w.Store.Delivered(ctx, msg.ID)
	}
	attempt := msg.Attempts + 1
	log := w.logger().With("event", msg.Name, "booking_id", msg.BookingID, "attempt", attempt, "error", published)
	if attempt >= w.maxAttempts() {
		log.Error("outbox message parked")
		return w.Store.Park(ctx, msg.ID, published.Error())
	}
	log.Warn("outbox publish failed")
	return w.Store.Retry(ctx, msg.ID, time.Now().Add(w.delay(msg.Attempts)), published.Error())
}

// PublishRecords relays records straight to the producer, used with the in-memory outbox.
func (w *Worker) PublishRecords(ctx context.Context, records []appoutbox.EventRecord) error {
	var errs []error
	for _, rec := range records {
		if err := w.publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) publish(ctx context.Context, rec appoutbox.EventRecord) error {
	payload, err := json.Marshal(w.envelope(rec))
	if err != nil {
		return fmt.Errorf("outbox: envelope %s: %w", rec.ID, err)
	}
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	for k, v := range rec.Headers {
		if k != "content-type" {
			headers[k] = v
		}
	}
	return w.Producer.Publish(ctx, w.topicFor(rec), rec.Aggregate, payload, headers)
}

// cloudEvent is the structured-mode CloudEvents 1.0 envelope.
type cloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	Data            json.RawMessage `json:"data"`
}

func (w *Worker) envelope(rec appoutbox.EventRecord) cloudEvent {
	data := json.RawMessage(rec.Payload)
	if !json.Valid(data) {
		data = json.RawMessage("null")
	}
	return cloudEvent{
		SpecVersion:     "1.0",
		ID:              rec.ID,
		Type:            rec.Name + ".v1",
		Source:          w.source(),
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt.UTC(),
		DataContentType: "application/json",
		TraceParent:     rec.Headers["traceparent"],
		Data:            data,
	}
}

func (w *Worker) topicFor(rec appoutbox.EventRecord) string {
	return w.TopicPrefix + rec.Stream() + ".events.v1"
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return defaultPollInterval
	}
	return w.Interval
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return w.MaxAttempts
}

// delay picks the backoff step for a message that already failed attempts times.
func (w *Worker) delay(attempts int) time.Duration {
	switch {
	case len(w.Backoff) == 0:
		return defaultRetryDelay
	case attempts < len(w.Backoff):
		return w.Backoff[attempts]
	default:
		return w.Backoff[len(w.Backoff)-1]
	}
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return defaultSource
}
