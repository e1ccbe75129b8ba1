package middleware

import (
	"context"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/uow"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// SelfManagedCommand is implemented by commands whose handlers open and commit their own
// unit of work, typically because they hold slot locks across the commit.
type SelfManagedCommand interface {
	ManagesOwnUnit() bool
}

// Transaction runs each command inside one unit of work. A failed commit is reported as a
// persistence error so clients know the write did not land.
func Transaction(factory uow.UoWFactory, optsFor TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if self, ok := cmd.(SelfManagedCommand); ok && self.ManagesOwnUnit() {
				return next.Dispatch(ctx, cmd)
			}
			var opts uow.TxOptions
			if optsFor != nil {
				opts = optsFor(cmd)
			}
			tx, err := uow.Begin(ctx, factory, opts)
			if err != nil {
				return nil, apperr.Persistence(err)
			}
			defer tx.Close()

			res, err := next.Dispatch(tx.Ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := tx.Commit(); err != nil {
				return nil, apperr.Persistence(err)
			}
			return res, nil
		})
	}
}
