package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type ctxKey struct{}

// ContextWithUnitOfWork stores the provided unit of work in context.
func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

// FromContext retrieves a unit of work from context if present.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	val := ctx.Value(ctxKey{})
	if val == nil {
		return nil, false
	}
	unit, ok := val.(UnitOfWork)
	return unit, ok
}

// Managed is a unit of work begun by a handler, or borrowed from the context when a
// Transaction middleware already opened one. Only owned units are committed here.
type Managed struct {
	Unit      UnitOfWork
	Ctx       context.Context
	owned     bool
	committed bool
	closed    bool
}

// Begin reuses the context unit when present, otherwise starts one from factory.
func Begin(ctx context.Context, factory UoWFactory, opts TxOptions) (*Managed, error) {
	if unit, ok := FromContext(ctx); ok {
		return &Managed{Unit: unit, Ctx: ctx}, nil
	}
	if factory == nil {
		return nil, ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	execCtx := ctx
	if injector, ok := unit.(interface {
		InjectContext(context.Context) context.Context
	}); ok {
		execCtx = injector.InjectContext(ctx)
	}
	execCtx = ContextWithUnitOfWork(execCtx, unit)
	return &Managed{Unit: unit, Ctx: execCtx, owned: true}, nil
}

func (m *Managed) Commit() error {
	if !m.owned || m.committed {
		return nil
	}
	if err := m.Unit.Commit(m.Ctx); err != nil {
		return err
	}
	m.committed = true
	return nil
}

// Close rolls back an owned unit that was not committed. Safe to defer.
func (m *Managed) Close() {
	if m.owned && !m.committed && !m.closed {
		m.closed = true
		_ = m.Unit.Rollback(m.Ctx)
	}
}
