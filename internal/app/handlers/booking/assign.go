package booking

import (
	"context"
	"errors"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/middleware"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/saga"
	"divineconnect/internal/app/uow"
	"divineconnect/internal/domain/allocation"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/provider"
	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
)

const assignProviderKey = "booking.assign_provider"

type AssignProviderCommand struct {
	BookingID  string `validate:"required"`
	ProviderID string `validate:"required"`
	Actor      policies.Actor
}

func (c AssignProviderCommand) Key() string { return assignProviderKey }

func (c AssignProviderCommand) ActorID() string { return c.Actor.ID }

func (c AssignProviderCommand) ManagesOwnUnit() bool { return true }

type AssignProviderHandler struct {
	Orchestrator *Orchestrator
}

func (h *AssignProviderHandler) Handle(ctx context.Context, cmd AssignProviderCommand) (*dto.Booking, error) {
	b, err := h.Orchestrator.AssignProvider(ctx, cmd.BookingID, cmd.ProviderID, cmd.Actor)
	if err != nil {
		return nil, err
	}
	out := dto.MapBooking(b)
	return &out, nil
}

// AssignProvider fills a deferred assignment. Operators only.
func (o *Orchestrator) AssignProvider(ctx context.Context, id, providerID string, actor policies.Actor) (*domainbooking.Booking, error) {
	if !actor.Privileged() {
		return nil, apperr.From(apperr.ErrForbidden)
	}
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer m.Close()

	b, err := o.load(m.Ctx, m.Unit, id)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != "" || b.Allocation != domainbooking.AllocationPendingManual {
		return nil, apperr.From(domainbooking.ErrAlreadyAssigned)
	}
	if b.Status != domainbooking.StatusPending && b.Status != domainbooking.StatusConfirmed {
		return nil, apperr.From(domainbooking.ErrInvalidTransition)
	}
	svc, err := m.Unit.Catalog().Service(m.Ctx, b.ServiceID)
	if err != nil {
		return nil, apperr.From(err)
	}
	p, err := m.Unit.Providers().ByID(m.Ctx, provider.ID(providerID))
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil, apperr.From(allocation.ErrManualUnavailable)
		}
		return nil, apperr.Persistence(err)
	}
	if !p.Eligible(svc.Category) {
		return nil, apperr.From(allocation.ErrManualUnavailable)
	}

	comp := &saga.Stack{}
	holds, err := o.acquire(ctx, []slotlock.Claim{{
		Key:      slots.ProviderKey(providerID, b.Date, b.Slot),
		Units:    1,
		Capacity: 1,
		TTL:      o.cfg().DraftTTL,
		Owner:    string(b.ID),
	}}, comp)
	if err != nil {
		return nil, err
	}
	if err := b.AssignProvider(providerID, holds[0], o.now()); err != nil {
		_ = comp.Unwind(context.WithoutCancel(ctx))
		return nil, apperr.From(err)
	}
	if err := o.save(m, b); err != nil {
		if uerr := comp.Unwind(context.WithoutCancel(ctx)); uerr != nil {
			o.logger().Error("assign compensation failed", "booking_id", b.ID, "error", uerr)
		}
		return nil, err
	}
	comp.Discard()
	if err := o.Locker.Commit(ctx, holds[0]); err != nil {
		o.logger().Warn("hold commit failed, ttl still applies", "booking_id", b.ID, "error", err)
	}
	o.notify(ctx, policies.NotifyProviderAssigned, b.ID)
	o.logger().Info("provider assigned", "booking_id", b.ID, "provider_id", providerID, "by", actor.ID)
	return b, nil
}

var _ commands.Handler[AssignProviderCommand, *dto.Booking] = (*AssignProviderHandler)(nil)
var _ middleware.SelfManagedCommand = (*AssignProviderCommand)(nil)
