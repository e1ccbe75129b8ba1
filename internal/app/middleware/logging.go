package middleware

import (
	"context"
	"log/slog"
	"time"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
)

// Logging records every command with its outcome and latency.
func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "duration", time.Since(start)}
			if err != nil {
				classified := apperr.From(err)
				attrs = append(attrs, "code", classified.Code, "error", err)
				if classified.Code == apperr.CodeInternal || classified.Code == apperr.CodePersistence {
					logger.ErrorContext(ctx, "command failed", attrs...)
				} else {
					logger.InfoContext(ctx, "command rejected", attrs...)
				}
				return nil, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}
