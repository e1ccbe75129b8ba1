package dto

import (
	"time"

	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Participant struct {
	Name      string `json:"name"`
	Gotra     string `json:"gotra,omitempty"`
	Nakshatra string `json:"nakshatra,omitempty"`
}

type Lodging struct {
	RoomID string `json:"room_id"`
	Nights int    `json:"nights"`
	Rooms  int    `json:"rooms"`
}

type Hold struct {
	Key   string `json:"key"`
	Units int    `json:"units"`
}

type Booking struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	ServiceID        string         `json:"service_id"`
	Mode             string         `json:"mode"`
	Date             string         `json:"date"`
	Slot             string         `json:"slot"`
	ParticipantCount int            `json:"participant_count"`
	Participants     []Participant  `json:"participants,omitempty"`
	Materials        string         `json:"materials"`
	Recording        bool           `json:"recording"`
	TempleID         string         `json:"temple_id,omitempty"`
	Locality         string         `json:"locality,omitempty"`
	Lodging          *Lodging       `json:"lodging,omitempty"`
	ProviderID       string         `json:"provider_id,omitempty"`
	Allocation       string         `json:"allocation"`
	AssignBy         *time.Time     `json:"assign_by,omitempty"`
	Status           string         `json:"status"`
	PaymentStatus    string         `json:"payment_status"`
	Price            PriceBreakdown `json:"price"`
	Holds            []Hold         `json:"holds,omitempty"`
	CancelReason     string         `json:"cancel_reason,omitempty"`
	CertificateNo    string         `json:"certificate_no,omitempty"`
	Reviewed         bool           `json:"reviewed"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type BookingCollection struct {
	Items []Booking `json:"items"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{
		Amount:   value.Amount,
		Currency: value.Currency,
	}
}

func MapBooking(b *domainbooking.Booking) Booking {
	if b == nil {
		return Booking{}
	}
	out := Booking{
		ID:               string(b.ID),
		UserID:           b.UserID,
		ServiceID:        string(b.ServiceID),
		Mode:             string(b.Mode),
		Date:             b.Date,
		Slot:             b.Slot,
		ParticipantCount: b.Request.ParticipantCount,
		Materials:        string(b.Request.Materials),
		Recording:        b.Request.Recording,
		TempleID:         b.Request.TempleID,
		Locality:         b.Request.Locality,
		ProviderID:       b.ProviderID,
		Allocation:       string(b.Allocation),
		Status:           string(b.Status),
		PaymentStatus:    string(b.Payment),
		Price:            MapPrice(b.Price),
		CancelReason:     b.CancelReason,
		CertificateNo:    b.CertificateNo,
		Reviewed:         b.Reviewed,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	for _, p := range b.Request.Participants {
		out.Participants = append(out.Participants, Participant{Name: p.Name, Gotra: p.Gotra, Nakshatra: p.Nakshatra})
	}
	if l := b.Request.Lodging; l != nil {
		out.Lodging = &Lodging{RoomID: l.RoomID, Nights: l.Nights, Rooms: l.Rooms}
	}
	if !b.AssignBy.IsZero() && b.ProviderID == "" {
		at := b.AssignBy
		out.AssignBy = &at
	}
	for _, h := range b.Holds {
		out.Holds = append(out.Holds, Hold{Key: h.Key.String(), Units: h.Units})
	}
	return out
}

func MapBookings(list []*domainbooking.Booking) BookingCollection {
	items := make([]Booking, 0, len(list))
	for _, b := range list {
		items = append(items, MapBooking(b))
	}
	return BookingCollection{Items: items}
}

type Certificate struct {
	Number       string        `json:"number"`
	BookingID    string        `json:"booking_id"`
	ServiceName  string        `json:"service_name"`
	ProviderName string        `json:"provider_name,omitempty"`
	Date         string        `json:"date"`
	Slot         string        `json:"slot"`
	Participants []Participant `json:"participants,omitempty"`
	CompletedAt  time.Time     `json:"completed_at"`
	DocumentURL  string        `json:"document_url,omitempty"`
}
