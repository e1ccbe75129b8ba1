package reviews

import (
	"context"
	"log/slog"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/queries"
	"divineconnect/internal/app/uow"
	domainprovider "divineconnect/internal/domain/provider"
)

const listProviderReviewsKey = "reviews.provider.list"

// ListProviderReviewsQuery retrieves reviews left for a provider.
type ListProviderReviewsQuery struct {
	ProviderID string `validate:"required"`
	Limit      int
	Offset     int
}

func (q ListProviderReviewsQuery) Key() string { return listProviderReviewsKey }

type ListProviderReviewsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListProviderReviewsHandler) Handle(ctx context.Context, q ListProviderReviewsQuery) (dto.ReviewCollection, error) {
	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	m, err := uow.Begin(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return dto.ReviewCollection{}, apperr.Persistence(err)
	}
	defer m.Close()

	profile, err := m.Unit.Providers().ByID(m.Ctx, domainprovider.ID(q.ProviderID))
	if err != nil {
		return dto.ReviewCollection{}, apperr.From(err)
	}

	page, err := m.Unit.Reviews().ListByProvider(m.Ctx, string(profile.ID), limit, offset)
	if err != nil {
		return dto.ReviewCollection{}, apperr.Persistence(err)
	}
	items := make([]dto.Review, 0, len(page))
	for _, review := range page {
		items = append(items, dto.MapReview(review))
	}

	if h.Logger != nil {
		h.Logger.Debug("provider reviews listed", "provider_id", profile.ID, "count", len(items))
	}
	return dto.ReviewCollection{Items: items, Total: profile.ReviewCount}, nil
}

var _ queries.Handler[ListProviderReviewsQuery, dto.ReviewCollection] = (*ListProviderReviewsHandler)(nil)
