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
	"divineconnect/internal/domain/shared/money"
)

const transitionBookingKey = "booking.transition"

type TransitionBookingCommand struct {
	BookingID  string `validate:"required"`
	Event      string `validate:"required,oneof=payment_captured provider_started provider_completed cancelled"`
	Actor      policies.Actor
	PaymentRef string `validate:"max=128"`
	Amount     int64  `validate:"gte=0"`
	Reason     string `validate:"max=500"`
}

func (c TransitionBookingCommand) Key() string { return transitionBookingKey }

func (c TransitionBookingCommand) ActorID() string { return c.Actor.ID }

func (c TransitionBookingCommand) ManagesOwnUnit() bool { return true }

type TransitionBookingHandler struct {
	Orchestrator *Orchestrator
}

func (h *TransitionBookingHandler) Handle(ctx context.Context, cmd TransitionBookingCommand) (*dto.Booking, error) {
	ev, ok := domainbooking.ParseEvent(cmd.Event)
	if !ok {
		return nil, apperr.From(domainbooking.Invalid("event", "unknown event"))
	}
	b, err := h.Orchestrator.TransitionBooking(ctx, cmd.BookingID, ev, cmd.Actor, PaymentCapture{Ref: cmd.PaymentRef, Amount: cmd.Amount}, cmd.Reason)
	if err != nil {
		return nil, err
	}
	out := dto.MapBooking(b)
	return &out, nil
}

// PaymentCapture reports funds placed in escrow by the payment gateway.
type PaymentCapture struct {
	Ref    string
	Amount int64
}

// TransitionBooking applies a lifecycle event after checking it against the transition table.
// Illegal events fail without side effects.
func (o *Orchestrator) TransitionBooking(ctx context.Context, id string, ev domainbooking.Event, actor policies.Actor, capture PaymentCapture, reason string) (*domainbooking.Booking, error) {
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer m.Close()

	b, err := o.load(m.Ctx, m.Unit, id)
	if err != nil {
		return nil, err
	}
	if ev == domainbooking.EventPaymentCaptured {
		// only the gateway relay or an operator may report captured funds
		if !actor.Privileged() {
			return nil, apperr.From(apperr.ErrForbidden)
		}
		if b.Status == domainbooking.StatusCancelled && b.Payment == domainbooking.PaymentUnpaid {
			o.refundLateCapture(ctx, b, capture)
		}
	}
	if !domainbooking.CanTransition(b.Status, ev) {
		_, err := domainbooking.Next(b.Status, ev)
		return nil, apperr.From(err)
	}
	now := o.now()

	switch ev {
	case domainbooking.EventCancelled:
		if err := authorizeOwner(actor, b); err != nil {
			return nil, err
		}
		return o.cancel(ctx, m, b, actor, reason, policies.NotifyBookingCancelled)

	case domainbooking.EventPaymentCaptured:
		// the price is recomputed from the current catalog, never taken from the client
		p, err := o.price(m.Ctx, m.Unit.Catalog(), b.Request, b.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := b.CapturePayment(capture.Ref, capture.Amount, p.price, now); err != nil {
			return nil, apperr.From(err)
		}
		if err := o.save(m, b); err != nil {
			return nil, err
		}
		o.notify(ctx, policies.NotifyBookingConfirmed, b.ID)

	case domainbooking.EventProviderStarted:
		if err := authorizeProvider(actor, b); err != nil {
			return nil, err
		}
		if err := b.Start(now); err != nil {
			return nil, apperr.From(err)
		}
		if err := o.save(m, b); err != nil {
			return nil, err
		}
		o.notify(ctx, policies.NotifyBookingStarted, b.ID)

	case domainbooking.EventProviderCompleted:
		if err := authorizeProvider(actor, b); err != nil {
			return nil, err
		}
		if err := b.Complete(now); err != nil {
			return nil, apperr.From(err)
		}
		if err := o.save(m, b); err != nil {
			return nil, err
		}
		if o.Payments != nil {
			if err := o.Payments.Release(ctx, string(b.ID), b.PaymentRef, b.Price.Total); err != nil {
				o.logger().Error("escrow release failed, needs manual follow-up", "booking_id", b.ID, "payment_ref", b.PaymentRef, "error", err)
			}
		}
		// the service is over; the ledger no longer needs the entries
		if err := o.releaseHolds(ctx, b); err != nil {
			o.logger().Warn("release holds after completion", "booking_id", b.ID, "error", err)
		}
		o.notify(ctx, policies.NotifyBookingCompleted, b.ID)
	}

	o.logger().Info("booking transitioned", "booking_id", b.ID, "event", ev, "status", b.Status, "payment", b.Payment)
	return b, nil
}

// refundLateCapture returns funds captured for a booking that was already cancelled unpaid,
// typically expired while the gateway was still capturing. Failures need manual follow-up.
func (o *Orchestrator) refundLateCapture(ctx context.Context, b *domainbooking.Booking, capture PaymentCapture) {
	log := o.logger().With("booking_id", b.ID, "payment_ref", capture.Ref, "amount", capture.Amount)
	if o.Payments == nil || capture.Ref == "" || capture.Amount <= 0 {
		log.Error("capture arrived for a cancelled booking, needs manual refund")
		return
	}
	amount := money.Money{Amount: capture.Amount, Currency: b.Price.Total.Currency}
	if err := o.Payments.Refund(context.WithoutCancel(ctx), string(b.ID), capture.Ref, amount); err != nil {
		log.Error("late capture refund failed, needs manual follow-up", "error", err)
		return
	}
	log.Warn("late capture refunded")
}

var _ commands.Handler[TransitionBookingCommand, *dto.Booking] = (*TransitionBookingHandler)(nil)
var _ middleware.SelfManagedCommand = (*TransitionBookingCommand)(nil)
