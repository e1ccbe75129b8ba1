package booking

import (
	"time"

	"divineconnect/internal/domain/shared/money"
)

type BookingRequested struct {
	BookingID   ID
	UserID      string
	ServiceID   string
	Mode        string
	Date        string
	Slot        string
	ProviderID  string
	Allocation  Allocation
	QuotedTotal money.Money
	At          time.Time
}

func (e BookingRequested) EventName() string     { return "booking.requested" }
func (e BookingRequested) AggregateID() string   { return string(e.BookingID) }
func (e BookingRequested) OccurredAt() time.Time { return e.At }

type BookingConfirmed struct {
	BookingID  ID
	PaymentRef string
	Total      money.Money
	At         time.Time
}

func (e BookingConfirmed) EventName() string     { return "booking.confirmed" }
func (e BookingConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e BookingConfirmed) OccurredAt() time.Time { return e.At }

type BookingStarted struct {
	BookingID  ID
	ProviderID string
	At         time.Time
}

func (e BookingStarted) EventName() string     { return "booking.started" }
func (e BookingStarted) AggregateID() string   { return string(e.BookingID) }
func (e BookingStarted) OccurredAt() time.Time { return e.At }

type BookingCompleted struct {
	BookingID  ID
	ProviderID string
	Released   money.Money
	At         time.Time
}

func (e BookingCompleted) EventName() string     { return "booking.completed" }
func (e BookingCompleted) AggregateID() string   { return string(e.BookingID) }
func (e BookingCompleted) OccurredAt() time.Time { return e.At }

type BookingCancelled struct {
	BookingID   ID
	CancelledBy string
	Reason      string
	Refund      money.Money
	At          time.Time
}

func (e BookingCancelled) EventName() string     { return "booking.cancelled" }
func (e BookingCancelled) AggregateID() string   { return string(e.BookingID) }
func (e BookingCancelled) OccurredAt() time.Time { return e.At }

type ProviderAssigned struct {
	BookingID  ID
	ProviderID string
	At         time.Time
}

func (e ProviderAssigned) EventName() string     { return "booking.provider_assigned" }
func (e ProviderAssigned) AggregateID() string   { return string(e.BookingID) }
func (e ProviderAssigned) OccurredAt() time.Time { return e.At }

type CertificateIssued struct {
	BookingID ID
	Number    string
	At        time.Time
}

func (e CertificateIssued) EventName() string     { return "booking.certificate_issued" }
func (e CertificateIssued) AggregateID() string   { return string(e.BookingID) }
func (e CertificateIssued) OccurredAt() time.Time { return e.At }
