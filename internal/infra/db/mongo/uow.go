package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
	domaincatalog "divineconnect/internal/domain/catalog"
	domainprovider "divineconnect/internal/domain/provider"
	domainreviews "divineconnect/internal/domain/reviews"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database

	BookingRepo  domainbooking.Repository
	ProviderRepo domainprovider.Repository
	CatalogRepo  domaincatalog.Repository
	ReviewsRepo  domainreviews.Repository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// NewFactory builds the repositories over db.
func NewFactory(db *mongo.Database) Factory {
	return Factory{
		DB:           db,
		BookingRepo:  NewBookingRepository(db),
		ProviderRepo: NewProviderRepository(db),
		CatalogRepo:  NewCatalogRepository(db),
		ReviewsRepo:  NewReviewRepository(db),
	}
}

// Begin starts a session with a snapshot, majority-acknowledged transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if opts.ReadOnly {
		txnOpts = options.Transaction().SetReadConcern(readconcern.Majority())
	}
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		session:   session,
		bookings:  f.BookingRepo,
		providers: f.ProviderRepo,
		catalog:   f.CatalogRepo,
		reviews:   f.ReviewsRepo,
	}, nil
}

type Unit struct {
	session mongo.Session

	bookings  domainbooking.Repository
	providers domainprovider.Repository
	catalog   domaincatalog.Repository
	reviews   domainreviews.Repository
}

func (u *Unit) Bookings() domainbooking.Repository {
	return u.bookings
}

func (u *Unit) Providers() domainprovider.Repository {
	return u.providers
}

func (u *Unit) Catalog() domaincatalog.Repository {
	return u.catalog
}

func (u *Unit) Reviews() domainreviews.Repository {
	return u.reviews
}

// Commit maps a write conflict inside the transaction to a concurrent update.
func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if err := u.session.CommitTransaction(ctx); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
			return domainbooking.ErrConcurrentUpdate
		}
		return err
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}
