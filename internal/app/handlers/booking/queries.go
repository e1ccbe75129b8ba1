package booking

import (
	"context"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/queries"
	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
)

const (
	getBookingKey = "booking.get"
	quoteKey      = "booking.quote"
)

type GetBookingQuery struct {
	BookingID string `validate:"required"`
	Actor     policies.Actor
}

func (q GetBookingQuery) Key() string { return getBookingKey }

func (q GetBookingQuery) ActorID() string { return q.Actor.ID }

type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
}

// Handle shows a booking to its devotee, its provider and operators.
func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.Booking, error) {
	m, err := uow.Begin(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return dto.Booking{}, apperr.Persistence(err)
	}
	defer m.Close()
	b, err := m.Unit.Bookings().ByID(m.Ctx, domainbooking.ID(q.BookingID))
	if err != nil {
		return dto.Booking{}, apperr.From(err)
	}
	if authorizeOwner(q.Actor, b) != nil && authorizeProvider(q.Actor, b) != nil {
		return dto.Booking{}, apperr.From(apperr.ErrForbidden)
	}
	return dto.MapBooking(b), nil
}

// QuoteQuery prices a request without validating the slot or reserving anything.
type QuoteQuery struct {
	Request BookingRequestInput
}

func (q QuoteQuery) Key() string { return quoteKey }

type QuoteHandler struct {
	Orchestrator *Orchestrator
}

func (h *QuoteHandler) Handle(ctx context.Context, q QuoteQuery) (dto.Quote, error) {
	o := h.Orchestrator
	m, err := uow.Begin(ctx, o.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return dto.Quote{}, apperr.Persistence(err)
	}
	defer m.Close()

	req := q.Request.toDomain("").Normalize()
	if !req.Mode.Valid() {
		return dto.Quote{}, apperr.From(domainbooking.Invalid("mode", "unknown mode"))
	}
	p, err := o.price(m.Ctx, m.Unit.Catalog(), req, o.now())
	if err != nil {
		return dto.Quote{}, err
	}
	return dto.Quote{ServiceID: string(req.ServiceID), Mode: string(req.Mode), Price: dto.MapPrice(p.price)}, nil
}

var _ queries.Handler[GetBookingQuery, dto.Booking] = (*GetBookingHandler)(nil)
var _ queries.Handler[QuoteQuery, dto.Quote] = (*QuoteHandler)(nil)
