package mongo

import (
	"time"

	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/domain/shared/money"
	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
)

type bookingDocument struct {
	ID            string          `bson:"_id"`
	UserID        string          `bson:"user_id"`
	ServiceID     string          `bson:"service_id"`
	Mode          string          `bson:"mode"`
	Date          string          `bson:"date"`
	Slot          string          `bson:"slot"`
	ProviderID    string          `bson:"provider_id,omitempty"`
	ProviderSlot  string          `bson:"provider_slot,omitempty"`
	Allocation    string          `bson:"allocation"`
	AssignBy      int64           `bson:"assign_by"`
	Request       requestDocument `bson:"request"`
	Price         priceDocument   `bson:"price"`
	Status        string          `bson:"status"`
	Active        bool            `bson:"active"`
	Payment       string          `bson:"payment"`
	PaymentRef    string          `bson:"payment_ref,omitempty"`
	Holds         []holdDocument  `bson:"holds"`
	CancelledBy   string          `bson:"cancelled_by,omitempty"`
	CancelReason  string          `bson:"cancel_reason,omitempty"`
	CertificateNo string          `bson:"certificate_no,omitempty"`
	Reviewed      bool            `bson:"reviewed"`
	CreatedAt     time.Time       `bson:"created_at"`
	ConfirmedAt   int64           `bson:"confirmed_at"`
	StartedAt     int64           `bson:"started_at"`
	CompletedAt   int64           `bson:"completed_at"`
	CancelledAt   int64           `bson:"cancelled_at"`
	UpdatedAt     int64           `bson:"updated_at"`
	Version       int64           `bson:"version"`
}

type requestDocument struct {
	ParticipantCount int                   `bson:"participant_count"`
	Participants     []participantDocument `bson:"participants,omitempty"`
	Materials        string                `bson:"materials"`
	Recording        bool                  `bson:"recording"`
	Manual           bool                  `bson:"manual"`
	ProviderID       string                `bson:"provider_id,omitempty"`
	CouponCode       string                `bson:"coupon_code,omitempty"`
	Lodging          *lodgingDocument      `bson:"lodging,omitempty"`
	TempleID         string                `bson:"temple_id,omitempty"`
	Address          string                `bson:"address,omitempty"`
	Locality         string                `bson:"locality,omitempty"`
	ContactPhone     string                `bson:"contact_phone,omitempty"`
	Notes            string                `bson:"notes,omitempty"`
}

type participantDocument struct {
	Name      string `bson:"name"`
	Gotra     string `bson:"gotra,omitempty"`
	Nakshatra string `bson:"nakshatra,omitempty"`
}

type lodgingDocument struct {
	RoomID string `bson:"room_id"`
	Nights int    `bson:"nights"`
	Rooms  int    `bson:"rooms"`
}

type priceDocument struct {
	Currency   string         `bson:"currency"`
	Base       int64          `bson:"base"`
	AddOns     []lineDocument `bson:"add_ons,omitempty"`
	Subtotal   int64          `bson:"subtotal"`
	CouponCode string         `bson:"coupon_code,omitempty"`
	Discount   int64          `bson:"discount"`
	TaxPercent int64          `bson:"tax_percent"`
	Tax        int64          `bson:"tax"`
	Total      int64          `bson:"total"`
}

type lineDocument struct {
	Name   string `bson:"name"`
	Amount int64  `bson:"amount"`
}

type holdDocument struct {
	TokenID    string `bson:"token_id"`
	Key        string `bson:"key"`
	Kind       string `bson:"kind"`
	ResourceID string `bson:"resource_id"`
	Date       string `bson:"date"`
	Slot       string `bson:"slot,omitempty"`
	Units      int    `bson:"units"`
	Capacity   int    `bson:"capacity"`
	Owner      string `bson:"owner,omitempty"`
	ExpiresAt  int64  `bson:"expires_at"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	doc := bookingDocument{
		ID:            string(b.ID),
		UserID:        b.UserID,
		ServiceID:     string(b.ServiceID),
		Mode:          string(b.Mode),
		Date:          b.Date,
		Slot:          b.Slot,
		ProviderID:    b.ProviderID,
		Allocation:    string(b.Allocation),
		AssignBy:      toMillis(b.AssignBy),
		Request:       newRequestDocument(b.Request),
		Price:         newPriceDocument(b.Price),
		Status:        string(b.Status),
		Active:        b.Active(),
		Payment:       string(b.Payment),
		PaymentRef:    b.PaymentRef,
		CancelledBy:   b.CancelledBy,
		CancelReason:  b.CancelReason,
		CertificateNo: b.CertificateNo,
		Reviewed:      b.Reviewed,
		CreatedAt:     b.CreatedAt.UTC(),
		ConfirmedAt:   toMillis(b.ConfirmedAt),
		StartedAt:     toMillis(b.StartedAt),
		CompletedAt:   toMillis(b.CompletedAt),
		CancelledAt:   toMillis(b.CancelledAt),
		UpdatedAt:     toMillis(b.UpdatedAt),
		Version:       b.Version,
	}
	if b.ProviderID != "" {
		doc.ProviderSlot = slots.ProviderKey(b.ProviderID, b.Date, b.Slot).String()
	}
	for _, h := range b.Holds {
		doc.Holds = append(doc.Holds, holdDocument{
			TokenID:    h.ID,
			Key:        h.Key.String(),
			Kind:       string(h.Key.Kind),
			ResourceID: h.Key.ResourceID,
			Date:       h.Key.Date,
			Slot:       h.Key.Slot,
			Units:      h.Units,
			Capacity:   h.Capacity,
			Owner:      h.Owner,
			ExpiresAt:  toMillis(h.ExpiresAt),
		})
	}
	return doc
}

func newRequestDocument(r domainbooking.Request) requestDocument {
	doc := requestDocument{
		ParticipantCount: r.ParticipantCount,
		Materials:        string(r.Materials),
		Recording:        r.Recording,
		Manual:           r.Manual,
		ProviderID:       r.ProviderID,
		CouponCode:       r.CouponCode,
		TempleID:         r.TempleID,
		Address:          r.Address,
		Locality:         r.Locality,
		ContactPhone:     r.ContactPhone,
		Notes:            r.Notes,
	}
	for _, p := range r.Participants {
		doc.Participants = append(doc.Participants, participantDocument{Name: p.Name, Gotra: p.Gotra, Nakshatra: p.Nakshatra})
	}
	if r.Lodging != nil {
		doc.Lodging = &lodgingDocument{RoomID: r.Lodging.RoomID, Nights: r.Lodging.Nights, Rooms: r.Lodging.Rooms}
	}
	return doc
}

func newPriceDocument(p pricing.Breakdown) priceDocument {
	doc := priceDocument{
		Currency:   p.Total.Currency,
		Base:       p.Base.Amount,
		Subtotal:   p.Subtotal.Amount,
		CouponCode: p.CouponCode,
		Discount:   p.Discount.Amount,
		TaxPercent: p.TaxPercent,
		Tax:        p.Tax.Amount,
		Total:      p.Total.Amount,
	}
	for _, l := range p.AddOns {
		doc.AddOns = append(doc.AddOns, lineDocument{Name: l.Name, Amount: l.Amount.Amount})
	}
	return doc
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	b := &domainbooking.Booking{
		ID:            domainbooking.ID(d.ID),
		UserID:        d.UserID,
		ServiceID:     catalog.ServiceID(d.ServiceID),
		Mode:          catalog.Mode(d.Mode),
		Date:          d.Date,
		Slot:          d.Slot,
		ProviderID:    d.ProviderID,
		Allocation:    domainbooking.Allocation(d.Allocation),
		AssignBy:      fromMillis(d.AssignBy),
		Price:         d.Price.toBreakdown(),
		Status:        domainbooking.Status(d.Status),
		Payment:       domainbooking.PaymentStatus(d.Payment),
		PaymentRef:    d.PaymentRef,
		CancelledBy:   d.CancelledBy,
		CancelReason:  d.CancelReason,
		CertificateNo: d.CertificateNo,
		Reviewed:      d.Reviewed,
		CreatedAt:     d.CreatedAt.UTC(),
		ConfirmedAt:   fromMillis(d.ConfirmedAt),
		StartedAt:     fromMillis(d.StartedAt),
		CompletedAt:   fromMillis(d.CompletedAt),
		CancelledAt:   fromMillis(d.CancelledAt),
		UpdatedAt:     fromMillis(d.UpdatedAt),
		Version:       d.Version,
	}
	r := d.Request
	b.Request = domainbooking.Request{
		UserID:           d.UserID,
		ServiceID:        b.ServiceID,
		Mode:             b.Mode,
		Date:             d.Date,
		Slot:             d.Slot,
		ParticipantCount: r.ParticipantCount,
		Materials:        catalog.Materials(r.Materials),
		Recording:        r.Recording,
		Manual:           r.Manual,
		ProviderID:       r.ProviderID,
		CouponCode:       r.CouponCode,
		TempleID:         r.TempleID,
		Address:          r.Address,
		Locality:         r.Locality,
		ContactPhone:     r.ContactPhone,
		Notes:            r.Notes,
	}
	for _, p := range r.Participants {
		b.Request.Participants = append(b.Request.Participants, domainbooking.Participant{Name: p.Name, Gotra: p.Gotra, Nakshatra: p.Nakshatra})
	}
	if r.Lodging != nil {
		b.Request.Lodging = &domainbooking.LodgingSelection{RoomID: r.Lodging.RoomID, Nights: r.Lodging.Nights, Rooms: r.Lodging.Rooms}
	}
	for _, h := range d.Holds {
		b.Holds = append(b.Holds, slotlock.Token{
			ID:        h.TokenID,
			Key:       slots.Key{Kind: slots.Kind(h.Kind), ResourceID: h.ResourceID, Date: h.Date, Slot: h.Slot},
			Units:     h.Units,
			Capacity:  h.Capacity,
			Owner:     h.Owner,
			ExpiresAt: fromMillis(h.ExpiresAt),
		})
	}
	return b
}

func (d priceDocument) toBreakdown() pricing.Breakdown {
	m := func(amount int64) money.Money { return money.Money{Amount: amount, Currency: d.Currency} }
	out := pricing.Breakdown{
		Base:       m(d.Base),
		Subtotal:   m(d.Subtotal),
		CouponCode: d.CouponCode,
		Discount:   m(d.Discount),
		TaxPercent: d.TaxPercent,
		Tax:        m(d.Tax),
		Total:      m(d.Total),
	}
	for _, l := range d.AddOns {
		out.AddOns = append(out.AddOns, pricing.Line{Name: l.Name, Amount: m(l.Amount)})
	}
	return out
}

// Zero times are stored as 0 so unset timestamps survive the round trip.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
