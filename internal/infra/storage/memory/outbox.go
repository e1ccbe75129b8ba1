package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "divineconnect/internal/app/outbox"
)

// Sink receives flushed records, for example a log or a broker producer.
type Sink func(ctx context.Context, records []appoutbox.EventRecord) error

// Outbox buffers records until flushed and keeps what it delivered for inspection. Sink
// failures are logged; the command that produced the records has already committed.
type Outbox struct {
	mu        sync.Mutex
	records   []appoutbox.EventRecord
	published []appoutbox.EventRecord
	sink      Sink
	logger    *slog.Logger
}

func NewOutbox(sink Sink, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{sink: sink, logger: logger}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	batch := o.records
	o.records = nil
	o.published = append(o.published, batch...)
	o.mu.Unlock()
	if o.sink == nil || len(batch) == 0 {
		return nil
	}
	if err := o.sink(ctx, batch); err != nil {
		o.logger.Error("outbox sink failed", "records", len(batch), "error", err)
	}
	return nil
}

// Published returns the names of every flushed record in order.
func (o *Outbox) Published() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.published))
	for _, rec := range o.published {
		names = append(names, rec.Name)
	}
	return names
}

var _ appoutbox.Outbox = (*Outbox)(nil)
