package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/outbox"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/schedule"
	"divineconnect/internal/app/uow"
	"divineconnect/internal/domain/allocation"
	"divineconnect/internal/domain/availability"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
)

// CaptureMode says whether payment is captured in the create call or reported later.
type CaptureMode string

const (
	CaptureDeferred    CaptureMode = "deferred"
	CaptureSynchronous CaptureMode = "synchronous"
)

const (
	DefaultDraftTTL = 10 * time.Minute
	DefaultLockWait = 2 * time.Second

	reasonDraftExpired   = "draft_expired"
	reasonPaymentTimeout = "payment_timeout"
)

var bookingNamespace = uuid.MustParse("6f1c3b2e-9a47-4d1e-8c55-2b7f0e9d4a31")

type Config struct {
	DraftTTL          time.Duration
	PendingPaymentTTL time.Duration
	LockWait          time.Duration
	Capture           CaptureMode
	Location          *time.Location
}

func (c Config) withDefaults() Config {
	if c.DraftTTL <= 0 {
		c.DraftTTL = DefaultDraftTTL
	}
	if c.LockWait <= 0 {
		c.LockWait = DefaultLockWait
	}
	if c.Capture == "" {
		c.Capture = CaptureDeferred
	}
	if c.Location == nil {
		c.Location = slots.DefaultLocation
	}
	return c
}

// Orchestrator runs every booking operation end to end: validation, pricing, allocation,
// slot locking, persistence with compensation, and the asynchronous side effects.
type Orchestrator struct {
	UoWFactory uow.UoWFactory
	Index      *availability.Index
	Resolver   *allocation.Resolver
	Pricing    pricing.Engine
	Locker     slotlock.Locker
	Payments   policies.PaymentsPort
	Notifier   policies.Notifier
	Scheduler  schedule.Scheduler
	Archive    policies.DocumentArchive
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Config     Config
	Logger     *slog.Logger
	Clock      func() time.Time
}

func (o *Orchestrator) cfg() Config {
	return o.Config.withDefaults()
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) encoder() outbox.EventEncoder {
	if o.Encoder != nil {
		return o.Encoder
	}
	return outbox.JSONEventEncoder{}
}

// bookingID is derived from the idempotency key so concurrent retries collide on the same id.
func bookingID(userID, idempotencyKey string) domainbooking.ID {
	if idempotencyKey == "" {
		return domainbooking.ID(uuid.NewString())
	}
	return domainbooking.ID(uuid.NewSHA1(bookingNamespace, []byte(userID+"|"+idempotencyKey)).String())
}

func (o *Orchestrator) load(ctx context.Context, unit uow.UnitOfWork, id string) (*domainbooking.Booking, error) {
	b, err := unit.Bookings().ByID(ctx, domainbooking.ID(id))
	if err != nil {
		return nil, apperr.From(err)
	}
	return b, nil
}

// save persists b and its events inside the managed unit and commits it.
func (o *Orchestrator) save(m *uow.Managed, b *domainbooking.Booking, extra ...outbox.Recorder) error {
	if err := b.CheckConsistency(); err != nil {
		return apperr.Persistence(err)
	}
	if err := m.Unit.Bookings().Update(m.Ctx, b); err != nil {
		return apperr.Persistence(err)
	}
	aggregates := append([]outbox.Recorder{b}, extra...)
	if err := outbox.Drain(m.Ctx, o.Outbox, o.encoder(), aggregates...); err != nil {
		return apperr.Persistence(err)
	}
	if err := m.Commit(); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, kind policies.NotificationKind, id domainbooking.ID) {
	if o.Notifier == nil {
		return
	}
	o.Notifier.Notify(context.WithoutCancel(ctx), kind, string(id))
}

func (o *Orchestrator) schedule(ctx context.Context, task string, id domainbooking.ID, at time.Time) {
	if o.Scheduler == nil || at.IsZero() {
		return
	}
	if err := o.Scheduler.Schedule(ctx, task, schedule.BookingTask{BookingID: string(id)}, at); err != nil {
		o.logger().Warn("schedule task failed", "task", task, "booking_id", id, "error", err)
	}
}

// releaseHolds frees every hold. Release is idempotent so already-released holds are fine.
func (o *Orchestrator) releaseHolds(ctx context.Context, b *domainbooking.Booking) error {
	return slotlock.ReleaseAll(ctx, o.Locker, b.Holds)
}

// authorizeOwner allows the booking's devotee and privileged actors.
func authorizeOwner(actor policies.Actor, b *domainbooking.Booking) error {
	if actor.Privileged() || (actor.ID != "" && actor.ID == b.UserID) {
		return nil
	}
	return apperr.From(apperr.ErrForbidden)
}

// authorizeProvider allows the assigned provider and privileged actors.
func authorizeProvider(actor policies.Actor, b *domainbooking.Booking) error {
	if actor.Privileged() {
		return nil
	}
	if actor.Role == policies.RoleProvider && actor.ID != "" && actor.ID == b.ProviderID {
		return nil
	}
	return apperr.From(apperr.ErrForbidden)
}

func isNotFound(err error) bool {
	return errors.Is(err, domainbooking.ErrNotFound)
}
