package schedule

import (
	"context"
	"log/slog"
	"time"

	appschedule "divineconnect/internal/app/schedule"
)

// Sweeper dispatches the sweep task on a fixed interval until ctx ends.
type Sweeper struct {
	Router   *appschedule.Router
	Interval time.Duration
	Logger   *slog.Logger
}

func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Router.Dispatch(ctx, appschedule.TaskSweepExpired, nil); err != nil {
				logger.Warn("sweep failed", "error", err)
			}
		}
	}
}
