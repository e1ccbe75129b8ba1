package booking

import (
	"context"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/middleware"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/slotlock"
)

const cancelBookingKey = "booking.cancel"

type CancelBookingCommand struct {
	BookingID string `validate:"required"`
	Actor     policies.Actor
	Reason    string `validate:"max=500"`
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

func (c CancelBookingCommand) ActorID() string { return c.Actor.ID }

func (c CancelBookingCommand) ManagesOwnUnit() bool { return true }

type CancelBookingHandler struct {
	Orchestrator *Orchestrator
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*dto.Booking, error) {
	b, err := h.Orchestrator.CancelBooking(ctx, cmd.BookingID, cmd.Actor, cmd.Reason)
	if err != nil {
		return nil, err
	}
	out := dto.MapBooking(b)
	return &out, nil
}

// CancelBooking releases the booking's holds and persists the cancellation as one saga: if
// the write fails the released holds are restored so the ledger matches the stored booking.
func (o *Orchestrator) CancelBooking(ctx context.Context, id string, actor policies.Actor, reason string) (*domainbooking.Booking, error) {
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer m.Close()

	b, err := o.load(m.Ctx, m.Unit, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(actor, b); err != nil {
		return nil, err
	}
	return o.cancel(ctx, m, b, actor, reason, policies.NotifyBookingCancelled)
}

func (o *Orchestrator) cancel(ctx context.Context, m *uow.Managed, b *domainbooking.Booking, actor policies.Actor, reason string, kind policies.NotificationKind) (*domainbooking.Booking, error) {
	refund, err := b.Cancel(actor.ID, reason, o.now())
	if err != nil {
		return nil, apperr.From(err)
	}

	released := make([]slotlock.Token, 0, len(b.Holds))
	for _, h := range b.Holds {
		if err := o.Locker.Release(ctx, h); err != nil {
			o.restore(ctx, b.ID, released)
			return nil, apperr.Persistence(err)
		}
		released = append(released, h)
	}

	if err := o.save(m, b); err != nil {
		o.restore(ctx, b.ID, released)
		return nil, err
	}

	if !refund.IsZero() && o.Payments != nil {
		if err := o.Payments.Refund(ctx, string(b.ID), b.PaymentRef, refund); err != nil {
			o.logger().Error("refund failed, needs manual follow-up", "booking_id", b.ID, "payment_ref", b.PaymentRef, "amount", refund.Amount, "error", err)
		}
	}
	o.notify(ctx, kind, b.ID)
	o.logger().Info("booking cancelled", "booking_id", b.ID, "by", actor.ID, "reason", reason, "refunded", refund.Amount)
	return b, nil
}

func (o *Orchestrator) restore(ctx context.Context, id domainbooking.ID, tokens []slotlock.Token) {
	ctx = context.WithoutCancel(ctx)
	for _, tok := range tokens {
		if err := o.Locker.Restore(ctx, tok); err != nil {
			o.logger().Error("restore hold failed", "booking_id", id, "key", tok.Key.String(), "error", err)
		}
	}
}

var _ commands.Handler[CancelBookingCommand, *dto.Booking] = (*CancelBookingHandler)(nil)
var _ middleware.SelfManagedCommand = (*CancelBookingCommand)(nil)
