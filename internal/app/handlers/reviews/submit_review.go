package reviews

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/outbox"
	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
	domainreviews "divineconnect/internal/domain/reviews"
)

const submitReviewKey = "reviews.submit"

var ErrBookingOwnership = errors.New("reviews: booking does not belong to current user")

// SubmitReviewCommand reviews a completed booking.
type SubmitReviewCommand struct {
	BookingID string `validate:"required"`
	AuthorID  string `validate:"required"`
	Rating    int    `validate:"gte=1,lte=5"`
	Text      string `validate:"max=2000"`
	Now       time.Time
}

func (c SubmitReviewCommand) Key() string { return submitReviewKey }

func (c SubmitReviewCommand) ActorID() string { return c.AuthorID }

// SubmitReviewHandler stores the review, marks the booking reviewed and folds the rating
// into the provider profile, all in one unit of work.
type SubmitReviewHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *SubmitReviewHandler) Handle(ctx context.Context, cmd SubmitReviewCommand) (dto.Review, error) {
	m, err := uow.Begin(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return dto.Review{}, apperr.Persistence(err)
	}
	defer m.Close()
	unit, ctx := m.Unit, m.Ctx

	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	booking, err := unit.Bookings().ByID(ctx, domainbooking.ID(cmd.BookingID))
	if err != nil {
		return dto.Review{}, apperr.From(err)
	}
	if booking.UserID != cmd.AuthorID {
		return dto.Review{}, apperr.New(apperr.CodeForbidden, "booking belongs to another user", ErrBookingOwnership)
	}
	if err := booking.MarkReviewed(now); err != nil {
		return dto.Review{}, apperr.From(err)
	}

	review, err := domainreviews.Submit(domainreviews.SubmitParams{
		ID:         domainreviews.ReviewID(uuid.NewString()),
		BookingID:  booking.ID,
		AuthorID:   cmd.AuthorID,
		ProviderID: booking.ProviderID,
		ServiceID:  string(booking.ServiceID),
		Rating:     cmd.Rating,
		Text:       cmd.Text,
		CreatedAt:  now,
	})
	if err != nil {
		return dto.Review{}, apperr.From(err)
	}
	if err := unit.Reviews().Save(ctx, review); err != nil {
		return dto.Review{}, apperr.Persistence(err)
	}
	if err := unit.Bookings().Update(ctx, booking); err != nil {
		return dto.Review{}, apperr.Persistence(err)
	}
	if err := applyProviderRating(ctx, unit, booking.ProviderID, cmd.Rating, now); err != nil {
		return dto.Review{}, err
	}
	if err := outbox.Drain(ctx, h.Outbox, h.Encoder, review); err != nil {
		return dto.Review{}, apperr.Persistence(err)
	}
	if err := m.Commit(); err != nil {
		return dto.Review{}, apperr.Persistence(err)
	}

	if h.Logger != nil {
		h.Logger.Info("review submitted", "booking_id", booking.ID, "provider_id", booking.ProviderID, "author_id", cmd.AuthorID, "rating", cmd.Rating)
	}
	return dto.MapReview(review), nil
}

var _ commands.Handler[SubmitReviewCommand, dto.Review] = (*SubmitReviewHandler)(nil)
