package booking

import (
	"context"
	"errors"
	"time"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/middleware"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/schedule"
	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
)

const (
	expireBookingKey       = "booking.expire"
	sweepExpiredKey        = "booking.sweep_expired"
	notifyAssignmentDueKey = "booking.notify_assignment_due"
	sweepBatch             = 200
)

type ExpireBookingCommand struct {
	BookingID string `validate:"required"`
}

func (c ExpireBookingCommand) Key() string { return expireBookingKey }

func (c ExpireBookingCommand) ManagesOwnUnit() bool { return true }

type SweepExpiredCommand struct{}

func (c SweepExpiredCommand) Key() string { return sweepExpiredKey }

func (c SweepExpiredCommand) ManagesOwnUnit() bool { return true }

type SweepResult struct {
	Expired int `json:"expired"`
}

type NotifyAssignmentDueCommand struct {
	BookingID string `validate:"required"`
}

func (c NotifyAssignmentDueCommand) Key() string { return notifyAssignmentDueKey }

type ExpireBookingHandler struct {
	Orchestrator *Orchestrator
}

func (h *ExpireBookingHandler) Handle(ctx context.Context, cmd ExpireBookingCommand) (bool, error) {
	return h.Orchestrator.ExpireBooking(ctx, cmd.BookingID)
}

type SweepExpiredHandler struct {
	Orchestrator *Orchestrator
}

func (h *SweepExpiredHandler) Handle(ctx context.Context, _ SweepExpiredCommand) (SweepResult, error) {
	n, err := h.Orchestrator.SweepExpired(ctx)
	return SweepResult{Expired: n}, err
}

type NotifyAssignmentDueHandler struct {
	Orchestrator *Orchestrator
}

func (h *NotifyAssignmentDueHandler) Handle(ctx context.Context, cmd NotifyAssignmentDueCommand) (bool, error) {
	return h.Orchestrator.NotifyAssignmentDue(ctx, cmd.BookingID)
}

// expiryReason says why b is stale at now, or "" when it is not.
func (o *Orchestrator) expiryReason(b *domainbooking.Booking, now time.Time) string {
	cfg := o.cfg()
	switch b.Status {
	case domainbooking.StatusDraft:
		if !now.Before(b.CreatedAt.Add(cfg.DraftTTL)) {
			return reasonDraftExpired
		}
	case domainbooking.StatusPending:
		if cfg.PendingPaymentTTL > 0 && b.Payment == domainbooking.PaymentUnpaid && !now.Before(b.CreatedAt.Add(cfg.PendingPaymentTTL)) {
			return reasonPaymentTimeout
		}
	}
	return ""
}

// ExpireBooking cancels a stale draft or unpaid booking and frees its holds. Bookings that
// moved on in the meantime are left alone.
func (o *Orchestrator) ExpireBooking(ctx context.Context, id string) (bool, error) {
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{})
	if err != nil {
		return false, apperr.Persistence(err)
	}
	defer m.Close()

	b, err := m.Unit.Bookings().ByID(m.Ctx, domainbooking.ID(id))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, apperr.Persistence(err)
	}
	reason := o.expiryReason(b, o.now())
	if reason == "" {
		return false, nil
	}
	if _, err := o.cancel(ctx, m, b, policies.SystemActor, reason, policies.NotifyBookingExpired); err != nil {
		return false, err
	}
	return true, nil
}

// SweepExpired expires every stale booking and returns how many were cancelled. One failure
// does not stop the sweep.
func (o *Orchestrator) SweepExpired(ctx context.Context) (int, error) {
	cfg := o.cfg()
	now := o.now()
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	stale, err := m.Unit.Bookings().Find(m.Ctx, domainbooking.Filter{
		Statuses:      []domainbooking.Status{domainbooking.StatusDraft},
		CreatedBefore: now.Add(-cfg.DraftTTL),
		Limit:         sweepBatch,
	})
	if err == nil && cfg.PendingPaymentTTL > 0 {
		var pending []*domainbooking.Booking
		pending, err = m.Unit.Bookings().Find(m.Ctx, domainbooking.Filter{
			Statuses:      []domainbooking.Status{domainbooking.StatusPending},
			CreatedBefore: now.Add(-cfg.PendingPaymentTTL),
			Limit:         sweepBatch,
		})
		stale = append(stale, pending...)
	}
	m.Close()
	if err != nil {
		return 0, apperr.Persistence(err)
	}

	expired := 0
	var errs []error
	for _, b := range stale {
		ok, err := o.ExpireBooking(ctx, string(b.ID))
		if err != nil {
			o.logger().Warn("expire booking failed", "booking_id", b.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		o.logger().Info("expired stale bookings", "count", expired)
	}
	return expired, errors.Join(errs...)
}

// NotifyAssignmentDue nudges operators when a deferred assignment reaches its deadline.
func (o *Orchestrator) NotifyAssignmentDue(ctx context.Context, id string) (bool, error) {
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return false, apperr.Persistence(err)
	}
	defer m.Close()
	b, err := m.Unit.Bookings().ByID(m.Ctx, domainbooking.ID(id))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, apperr.Persistence(err)
	}
	if !b.Active() || b.Status.Terminal() || b.ProviderID != "" || b.Allocation != domainbooking.AllocationPendingManual {
		return false, nil
	}
	o.notify(ctx, policies.NotifyAssignmentDue, b.ID)
	o.logger().Warn("provider assignment overdue", "booking_id", b.ID, "assign_by", b.AssignBy)
	return true, nil
}

// RegisterTasks routes scheduled tasks through the command bus.
func RegisterTasks(router *schedule.Router, bus commands.Bus) {
	router.Handle(schedule.TaskExpireBooking, func(ctx context.Context, payload []byte) error {
		task, err := schedule.DecodeBookingTask(payload)
		if err != nil {
			return err
		}
		_, err = commands.Dispatch[ExpireBookingCommand, bool](ctx, bus, ExpireBookingCommand{BookingID: task.BookingID})
		return err
	})
	router.Handle(schedule.TaskAssignmentDue, func(ctx context.Context, payload []byte) error {
		task, err := schedule.DecodeBookingTask(payload)
		if err != nil {
			return err
		}
		_, err = commands.Dispatch[NotifyAssignmentDueCommand, bool](ctx, bus, NotifyAssignmentDueCommand{BookingID: task.BookingID})
		return err
	})
	router.Handle(schedule.TaskSweepExpired, func(ctx context.Context, _ []byte) error {
		_, err := commands.Dispatch[SweepExpiredCommand, SweepResult](ctx, bus, SweepExpiredCommand{})
		return err
	})
}

var _ commands.Handler[ExpireBookingCommand, bool] = (*ExpireBookingHandler)(nil)
var _ commands.Handler[SweepExpiredCommand, SweepResult] = (*SweepExpiredHandler)(nil)
var _ commands.Handler[NotifyAssignmentDueCommand, bool] = (*NotifyAssignmentDueHandler)(nil)
var _ middleware.SelfManagedCommand = (*ExpireBookingCommand)(nil)
