package middleware

import (
	"context"
	"log/slog"

	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/outbox"
)

// OutboxFlush hands buffered booking events to the relay once a command has committed.
// The write already succeeded, so a flush failure is logged rather than returned.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if ferr := box.Flush(ctx); ferr != nil {
				logger.ErrorContext(ctx, "outbox flush failed", "command", cmd.Key(), "error", ferr)
			}
			return res, nil
		})
	}
}
