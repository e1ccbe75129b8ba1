package reviews

import (
	"time"

	"divineconnect/internal/domain/booking"
)

type ReviewSubmitted struct {
	ReviewID   ReviewID
	BookingID  booking.ID
	ProviderID string
	Rating     int
	At         time.Time
}

func (e ReviewSubmitted) EventName() string     { return "review.submitted" }
func (e ReviewSubmitted) AggregateID() string   { return string(e.ReviewID) }
func (e ReviewSubmitted) OccurredAt() time.Time { return e.At }
