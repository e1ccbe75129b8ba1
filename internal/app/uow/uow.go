package uow

import (
	"context"

	domainbooking "divineconnect/internal/domain/booking"
	domaincatalog "divineconnect/internal/domain/catalog"
	domainprovider "divineconnect/internal/domain/provider"
	domainreviews "divineconnect/internal/domain/reviews"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Providers() domainprovider.Repository
	Catalog() domaincatalog.Repository
	Reviews() domainreviews.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
