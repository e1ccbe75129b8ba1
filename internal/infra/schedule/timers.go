package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	appschedule "divineconnect/internal/app/schedule"
)

// Timers runs scheduled tasks in-process with time.AfterFunc. Pending tasks are lost on
// restart; the periodic sweep picks up whatever they would have handled.
type Timers struct {
	router *appschedule.Router
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func NewTimers(router *appschedule.Router, logger *slog.Logger) *Timers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timers{router: router, logger: logger, now: time.Now, pending: make(map[*time.Timer]struct{})}
}

func (t *Timers) Schedule(ctx context.Context, name string, payload any, runAt time.Time) error {
	raw, err := appschedule.Encode(payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return context.Canceled
	}
	delay := runAt.Sub(t.now())
	if delay < 0 {
		delay = 0
	}
	var timer *time.Timer
	t.wg.Add(1)
	timer = time.AfterFunc(delay, func() {
		defer t.wg.Done()
		t.mu.Lock()
		delete(t.pending, timer)
		t.mu.Unlock()
		t.run(name, raw)
	})
	t.pending[timer] = struct{}{}
	return nil
}

func (t *Timers) run(name string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.router.Dispatch(ctx, name, payload); err != nil {
		t.logger.Warn("scheduled task failed", "task", name, "error", err)
		return
	}
	t.logger.Debug("scheduled task done", "task", name)
}

// Close stops timers that have not fired and waits for running ones.
func (t *Timers) Close() {
	t.mu.Lock()
	t.closed = true
	for timer := range t.pending {
		if timer.Stop() {
			t.wg.Done()
		}
		delete(t.pending, timer)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Pending reports timers that have not fired yet.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

var _ appschedule.Scheduler = (*Timers)(nil)
