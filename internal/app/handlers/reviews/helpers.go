package reviews

import (
	"context"
	"errors"
	"time"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/uow"
	domainprovider "divineconnect/internal/domain/provider"
)

// applyProviderRating is a no-op for bookings fulfilled without a provider.
func applyProviderRating(ctx context.Context, unit uow.UnitOfWork, providerID string, rating int, now time.Time) error {
	if providerID == "" {
		return nil
	}
	profile, err := unit.Providers().ByID(ctx, domainprovider.ID(providerID))
	if err != nil {
		if errors.Is(err, domainprovider.ErrNotFound) {
			return nil
		}
		return apperr.Persistence(err)
	}
	if err := profile.ApplyReview(rating, now); err != nil {
		return apperr.From(err)
	}
	if err := unit.Providers().Save(ctx, profile); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
