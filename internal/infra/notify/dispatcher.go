package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"divineconnect/internal/app/policies"
)

// Notification is one queued message about a booking.
type Notification struct {
	Kind      policies.NotificationKind `json:"kind"`
	BookingID string                    `json:"booking_id"`
	QueuedAt  time.Time                 `json:"queued_at"`
}

// Sender delivers a notification to a channel such as Kafka or a log.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher queues notifications and delivers them from Run. Notify never blocks: when the
// queue is full the notification is dropped and counted.
type Dispatcher struct {
	queue   chan Notification
	sender  Sender
	backoff []time.Duration
	logger  *slog.Logger
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(sender Sender, size int, backoff []time.Duration, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{queue: make(chan Notification, size), sender: sender, backoff: backoff, logger: logger}
}

func (d *Dispatcher) Notify(ctx context.Context, kind policies.NotificationKind, bookingID string) {
	n := Notification{Kind: kind, BookingID: bookingID, QueuedAt: time.Now().UTC()}
	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification dropped", "kind", kind, "booking_id", bookingID)
	}
}

// Run delivers until ctx ends, then drains what is already queued with a short deadline.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	for attempt := 0; ; attempt++ {
		err := d.sender.Send(ctx, n)
		if err == nil {
			return
		}
		if attempt >= len(d.backoff) {
			d.failed.Add(1)
			d.logger.Error("notification failed", "kind", n.Kind, "booking_id", n.BookingID, "attempts", attempt+1, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			d.failed.Add(1)
			return
		case <-time.After(d.backoff[attempt]):
		}
	}
}

// Stats returns dropped and failed counts.
func (d *Dispatcher) Stats() (dropped, failed int64) {
	return d.dropped.Load(), d.failed.Load()
}

var _ policies.Notifier = (*Dispatcher)(nil)
