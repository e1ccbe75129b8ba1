package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/middleware"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/saga"
	"divineconnect/internal/app/schedule"
	"divineconnect/internal/app/uow"
	"divineconnect/internal/domain/allocation"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
)

const createBookingKey = "booking.create"

type ParticipantInput struct {
	Name      string `json:"name" validate:"required,max=120"`
	Gotra     string `json:"gotra" validate:"max=120"`
	Nakshatra string `json:"nakshatra" validate:"max=120"`
}

type LodgingInput struct {
	RoomID string `json:"room_id" validate:"required"`
	Nights int    `json:"nights" validate:"gte=1,lte=30"`
	Rooms  int    `json:"rooms" validate:"gte=1,lte=20"`
}

// BookingRequestInput is the transport shape of a booking request, shared by create and quote.
type BookingRequestInput struct {
	ServiceID        string             `json:"service_id" validate:"required"`
	Mode             string             `json:"mode" validate:"required,oneof=virtual-live virtual-on-behalf at-temple at-home"`
	Date             string             `json:"date" validate:"required,datetime=2006-01-02"`
	Slot             string             `json:"slot" validate:"required,slot_label"`
	ParticipantCount int                `json:"participant_count" validate:"gte=1,lte=100"`
	Participants     []ParticipantInput `json:"participants" validate:"omitempty,dive"`
	Materials        string             `json:"materials" validate:"omitempty,oneof=self provider venue"`
	Recording        bool               `json:"recording"`
	Manual           bool               `json:"manual"`
	ProviderID       string             `json:"provider_id"`
	CouponCode       string             `json:"coupon_code" validate:"max=32"`
	Lodging          *LodgingInput      `json:"lodging" validate:"omitempty"`
	TempleID         string             `json:"temple_id"`
	Address          string             `json:"address" validate:"max=500"`
	Locality         string             `json:"locality" validate:"max=120"`
	ContactPhone     string             `json:"contact_phone" validate:"omitempty,e164"`
	Notes            string             `json:"notes" validate:"max=1000"`
}

func (in BookingRequestInput) toDomain(userID string) domainbooking.Request {
	req := domainbooking.Request{
		UserID:           userID,
		ServiceID:        catalog.ServiceID(in.ServiceID),
		Mode:             catalog.Mode(strings.ToLower(strings.TrimSpace(in.Mode))),
		Date:             in.Date,
		Slot:             in.Slot,
		ParticipantCount: in.ParticipantCount,
		Materials:        catalog.Materials(in.Materials),
		Recording:        in.Recording,
		Manual:           in.Manual,
		ProviderID:       in.ProviderID,
		CouponCode:       in.CouponCode,
		TempleID:         in.TempleID,
		Address:          in.Address,
		Locality:         in.Locality,
		ContactPhone:     in.ContactPhone,
		Notes:            in.Notes,
	}
	for _, p := range in.Participants {
		req.Participants = append(req.Participants, domainbooking.Participant{Name: p.Name, Gotra: p.Gotra, Nakshatra: p.Nakshatra})
	}
	if in.Lodging != nil {
		req.Lodging = &domainbooking.LodgingSelection{RoomID: in.Lodging.RoomID, Nights: in.Lodging.Nights, Rooms: in.Lodging.Rooms}
	}
	return req
}

type CreateBookingCommand struct {
	UserID          string `validate:"required"`
	Request         BookingRequestInput
	IdempotencyKeyV string
}

func (c CreateBookingCommand) Key() string { return createBookingKey }

func (c CreateBookingCommand) ActorID() string { return c.UserID }

// IdempotencyKey is scoped per user so two devotees can reuse the same client key.
func (c CreateBookingCommand) IdempotencyKey() string {
	if c.IdempotencyKeyV == "" {
		return ""
	}
	return createBookingKey + ":" + c.UserID + ":" + c.IdempotencyKeyV
}

func (c CreateBookingCommand) ResultPrototype() any { return &dto.Booking{} }

func (c CreateBookingCommand) ManagesOwnUnit() bool { return true }

type CreateBookingHandler struct {
	Orchestrator *Orchestrator
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*dto.Booking, error) {
	b, err := h.Orchestrator.CreateBooking(ctx, cmd.Request.toDomain(cmd.UserID), cmd.IdempotencyKeyV)
	if err != nil {
		return nil, err
	}
	out := dto.MapBooking(b)
	return &out, nil
}

// priced is everything CreateBooking and Quote derive from the catalog.
type priced struct {
	service *catalog.Service
	room    *catalog.LodgingRoom
	price   pricing.Breakdown
}

// price validates catalog references and prices req from the current catalog. Coupons
// are checked against couponAt, so a capture honours a coupon valid at booking time.
func (o *Orchestrator) price(ctx context.Context, cat catalog.Repository, req domainbooking.Request, couponAt time.Time) (priced, error) {
	svc, err := cat.Service(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return priced{}, apperr.From(domainbooking.Invalid("service_id", "unknown service"))
		}
		return priced{}, apperr.Persistence(err)
	}
	if !svc.Active {
		return priced{}, apperr.From(domainbooking.Invalid("service_id", "service is not bookable"))
	}
	if req.Mode == catalog.ModeAtTemple {
		if _, err := cat.Temple(ctx, req.TempleID); err != nil {
			if errors.Is(err, catalog.ErrTempleNotFound) {
				return priced{}, apperr.From(domainbooking.Invalid("temple_id", "unknown temple"))
			}
			return priced{}, apperr.Persistence(err)
		}
	}
	out := priced{service: svc}
	in := pricing.Input{
		Mode:       req.Mode,
		Materials:  req.Materials,
		Recording:  req.Recording,
		CouponCode: req.CouponCode,
	}
	if req.Lodging != nil {
		room, err := cat.LodgingRoom(ctx, req.Lodging.RoomID)
		if err != nil {
			if errors.Is(err, catalog.ErrRoomNotFound) {
				return priced{}, apperr.From(domainbooking.Invalid("lodging.room_id", "unknown room"))
			}
			return priced{}, apperr.Persistence(err)
		}
		out.room = room
		in.Lodging = &pricing.Lodging{RoomID: room.ID, NightlyRate: room.NightlyRate, Nights: req.Lodging.Nights, Rooms: req.Lodging.Rooms}
	}
	var coupon *catalog.Coupon
	if req.CouponCode != "" {
		c, err := cat.Coupon(ctx, req.CouponCode)
		switch {
		case err == nil && c.UsableAt(couponAt):
			coupon = c
		case err != nil && !errors.Is(err, catalog.ErrCouponNotFound):
			return priced{}, apperr.Persistence(err)
		}
	}
	out.price, err = o.Pricing.Compute(in, svc.Prices, coupon)
	if err != nil {
		return priced{}, apperr.From(err)
	}
	return out, nil
}

// CreateBooking validates, prices, allocates, locks and persists a booking. A slot conflict
// is reported to the caller and never retried here.
func (o *Orchestrator) CreateBooking(ctx context.Context, req domainbooking.Request, idempotencyKey string) (*domainbooking.Booking, error) {
	cfg := o.cfg()
	now := o.now()
	req = req.Normalize()
	if err := req.Validate(now, cfg.Location); err != nil {
		return nil, apperr.From(err)
	}

	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer m.Close()

	id := bookingID(req.UserID, idempotencyKey)
	if idempotencyKey != "" {
		existing, err := m.Unit.Bookings().ByID(m.Ctx, id)
		if err == nil {
			return existing, nil
		}
		if !isNotFound(err) {
			return nil, apperr.Persistence(err)
		}
	}

	p, err := o.price(m.Ctx, m.Unit.Catalog(), req, now)
	if err != nil {
		return nil, err
	}

	res, err := o.Resolver.Resolve(m.Ctx, allocation.Request{
		Capability:       p.service.Category,
		RequiresProvider: p.service.RequiresProvider,
		ProviderID:       req.ProviderID,
		Locality:         req.Locality,
		Date:             req.Date,
		Slot:             req.Slot,
	})
	if err != nil {
		return nil, apperr.From(err)
	}
	if res.Outcome == allocation.OutcomeManualUnavailable {
		return nil, apperr.From(allocation.ErrManualUnavailable)
	}
	providerID := ""
	if res.Provider != nil {
		providerID = string(res.Provider.ID)
	}

	claims, err := buildClaims(req, providerID, p.room, cfg, string(id))
	if err != nil {
		return nil, apperr.From(err)
	}
	comp := &saga.Stack{}
	holds, err := o.acquire(ctx, claims, comp)
	if err != nil {
		if idempotencyKey != "" && apperr.Is(err, apperr.CodeConflict) {
			// the holder may be an earlier attempt with this key that has not committed yet
			if existing := o.awaitCommitted(ctx, id, cfg.LockWait); existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	fail := func(cause error) (*domainbooking.Booking, error) {
		if uerr := comp.Unwind(context.WithoutCancel(ctx)); uerr != nil {
			o.logger().Error("create compensation failed", "booking_id", id, "error", uerr)
		}
		return nil, cause
	}

	draft, err := domainbooking.NewDraft(domainbooking.CreateParams{
		ID:         id,
		Request:    req,
		ProviderID: providerID,
		Allocation: res.Outcome.Booking(),
		AssignBy:   res.AssignBy,
		Price:      p.price,
		Holds:      holds,
		CreatedAt:  now,
	})
	if err != nil {
		return fail(apperr.From(err))
	}
	if err := m.Unit.Bookings().Create(m.Ctx, draft); err != nil {
		if errors.Is(err, domainbooking.ErrDuplicate) && idempotencyKey != "" {
			_, _ = fail(nil)
			m.Close()
			return o.replay(ctx, id)
		}
		if errors.Is(err, slotlock.ErrConflict) {
			return fail(apperr.Conflict(err))
		}
		return fail(apperr.Persistence(err))
	}
	if err := draft.MarkAllocated(now); err != nil {
		return fail(apperr.From(err))
	}
	if cfg.Capture == CaptureSynchronous {
		if err := draft.CapturePayment("sync-"+string(id), p.price.Total.Amount, p.price, now); err != nil {
			return fail(apperr.From(err))
		}
	}
	if err := o.save(m, draft); err != nil {
		return fail(err)
	}
	comp.Discard()

	for _, h := range holds {
		if err := o.Locker.Commit(ctx, h); err != nil {
			o.logger().Warn("hold commit failed, ttl still applies", "booking_id", id, "key", h.Key.String(), "error", err)
		}
	}
	o.afterCreate(ctx, draft, cfg)
	o.logger().Info("booking created", "booking_id", id, "status", draft.Status, "allocation", draft.Allocation, "provider_id", providerID)
	return draft, nil
}

func (o *Orchestrator) afterCreate(ctx context.Context, b *domainbooking.Booking, cfg Config) {
	switch b.Status {
	case domainbooking.StatusConfirmed:
		o.notify(ctx, policies.NotifyBookingConfirmed, b.ID)
	default:
		o.notify(ctx, policies.NotifyBookingPending, b.ID)
		if cfg.PendingPaymentTTL > 0 {
			o.schedule(ctx, schedule.TaskExpireBooking, b.ID, b.CreatedAt.Add(cfg.PendingPaymentTTL))
		}
	}
	if b.Allocation == domainbooking.AllocationPendingManual {
		o.notify(ctx, policies.NotifyAssignmentNeeded, b.ID)
		o.schedule(ctx, schedule.TaskAssignmentDue, b.ID, b.AssignBy)
	}
}

const committedPollInterval = 25 * time.Millisecond

// awaitCommitted polls committed state for id until wait elapses. It returns nil when no
// booking with that id appears in time.
func (o *Orchestrator) awaitCommitted(ctx context.Context, id domainbooking.ID, wait time.Duration) *domainbooking.Booking {
	pollCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := time.NewTicker(committedPollInterval)
	defer ticker.Stop()
	for {
		if b, err := o.replay(pollCtx, id); err == nil {
			return b
		} else if !isNotFound(err) {
			o.logger().Warn("keyed retry lookup failed", "booking_id", id, "error", err)
		}
		select {
		case <-pollCtx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// replay returns the booking an earlier attempt with the same idempotency key created.
func (o *Orchestrator) replay(ctx context.Context, id domainbooking.ID) (*domainbooking.Booking, error) {
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer m.Close()
	b, err := m.Unit.Bookings().ByID(m.Ctx, id)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return b, nil
}

func buildClaims(req domainbooking.Request, providerID string, room *catalog.LodgingRoom, cfg Config, owner string) ([]slotlock.Claim, error) {
	var claims []slotlock.Claim
	if providerID != "" {
		claims = append(claims, slotlock.Claim{
			Key:      slots.ProviderKey(providerID, req.Date, req.Slot),
			Units:    1,
			Capacity: 1,
			TTL:      cfg.DraftTTL,
			Owner:    owner,
		})
	}
	if req.Lodging != nil && room != nil {
		nights, err := slots.Nights(req.Date, req.Lodging.Nights)
		if err != nil {
			return nil, err
		}
		for _, night := range nights {
			claims = append(claims, slotlock.Claim{
				Key:      slots.CapacityKey(room.ID, night),
				Units:    req.Lodging.Rooms,
				Capacity: room.Capacity,
				TTL:      cfg.DraftTTL,
				Owner:    owner,
			})
		}
	}
	return claims, nil
}

// acquire takes every claim within the bounded lock wait and re-checks each against the
// committed bookings. Any failure releases what was taken.
func (o *Orchestrator) acquire(ctx context.Context, claims []slotlock.Claim, comp *saga.Stack) ([]slotlock.Token, error) {
	lockCtx, cancel := context.WithTimeout(ctx, o.cfg().LockWait)
	defer cancel()

	holds := make([]slotlock.Token, 0, len(claims))
	for _, claim := range claims {
		tok, err := o.Locker.TryAcquire(lockCtx, claim)
		if err == nil {
			var fits bool
			fits, err = o.Index.FitsCapacity(lockCtx, claim.Key, claim.Units, claim.Capacity)
			if err == nil && !fits {
				err = slotlock.ErrConflict
			}
			if err != nil {
				_ = o.Locker.Release(context.WithoutCancel(ctx), tok)
			}
		}
		if err != nil {
			if uerr := comp.Unwind(context.WithoutCancel(ctx)); uerr != nil {
				o.logger().Error("release after failed acquire", "error", uerr)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				err = slotlock.ErrLockTimeout
			}
			return nil, apperr.From(err)
		}
		held := tok
		comp.Push("release "+claim.Key.String(), func(ctx context.Context) error {
			return o.Locker.Release(ctx, held)
		})
		holds = append(holds, tok)
	}
	return holds, nil
}

var _ commands.Handler[CreateBookingCommand, *dto.Booking] = (*CreateBookingHandler)(nil)
var _ middleware.IdempotentCommand = (*CreateBookingCommand)(nil)
var _ middleware.SelfManagedCommand = (*CreateBookingCommand)(nil)
