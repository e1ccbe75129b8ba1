package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/shared/events"
)

var (
	ErrInvalidRating = errors.New("reviews: rating must be between 1 and 5")
	ErrNotFound      = errors.New("reviews: not found")
	ErrTextTooLong   = errors.New("reviews: text is too long")
)

const maxTextLength = 2000

type ReviewID string

type Review struct {
	ID         ReviewID
	BookingID  booking.ID
	AuthorID   string
	ProviderID string
	ServiceID  string
	Rating     int
	Text       string
	CreatedAt  time.Time
	events.EventRecorder
}

type Repository interface {
	ByBooking(ctx context.Context, bookingID booking.ID) (*Review, error)
	ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]*Review, error)
	Save(ctx context.Context, review *Review) error
}

type SubmitParams struct {
	ID         ReviewID
	BookingID  booking.ID
	AuthorID   string
	ProviderID string
	ServiceID  string
	Rating     int
	Text       string
	CreatedAt  time.Time
}

func Submit(params SubmitParams) (*Review, error) {
	if params.Rating < 1 || params.Rating > 5 {
		return nil, ErrInvalidRating
	}
	text := strings.TrimSpace(params.Text)
	if len(text) > maxTextLength {
		return nil, ErrTextTooLong
	}
	review := &Review{
		ID:         params.ID,
		BookingID:  params.BookingID,
		AuthorID:   params.AuthorID,
		ProviderID: params.ProviderID,
		ServiceID:  params.ServiceID,
		Rating:     params.Rating,
		Text:       text,
		CreatedAt:  params.CreatedAt.UTC(),
	}
	review.Record(ReviewSubmitted{
		ReviewID:   review.ID,
		BookingID:  review.BookingID,
		ProviderID: review.ProviderID,
		Rating:     review.Rating,
		At:         review.CreatedAt,
	})
	return review, nil
}
