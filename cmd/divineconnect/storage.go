package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"divineconnect/internal/app/middleware"
	appoutbox "divineconnect/internal/app/outbox"
	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
	domaincatalog "divineconnect/internal/domain/catalog"
	domainprovider "divineconnect/internal/domain/provider"
	"divineconnect/internal/infra/broker/kafka"
	"divineconnect/internal/infra/config"
	mongostore "divineconnect/internal/infra/db/mongo"
	"divineconnect/internal/infra/fixtures"
	"divineconnect/internal/infra/inbox"
	"divineconnect/internal/infra/obs"
	"divineconnect/internal/infra/outbox"
	"divineconnect/internal/infra/storage/memory"
)

// storage is one backend's view of persistence: transactional factory, the committed-state
// repositories the availability index reads, and the delivery stores around them.
type storage struct {
	factory     uow.UoWFactory
	bookings    domainbooking.Repository
	providers   domainprovider.Repository
	catalog     domaincatalog.Repository
	idempotency middleware.IdempotencyStore
	outbox      appoutbox.Outbox
	relayStore  outbox.Relay
	inbox       kafka.Inbox
	checks      map[string]obs.Check
	close       func()
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger, relay *outbox.Worker) (*storage, error) {
	catalog, err := fixtures.Load(cfg.CatalogFixtures, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if cfg.StorageMode == "mongo" {
		return openMongo(ctx, cfg, logger, catalog)
	}
	return openMemory(cfg, logger, catalog, relay), nil
}

func openMemory(cfg config.Config, logger *slog.Logger, catalog fixtures.Catalog, relay *outbox.Worker) *storage {
	bookings := memory.NewBookingRepository()
	providers := memory.NewProviderRepository(catalog.Providers...)
	cat := memory.NewCatalogRepository()
	for _, s := range catalog.Services {
		cat.PutService(s)
	}
	for _, t := range catalog.Temples {
		cat.PutTemple(t)
	}
	for _, r := range catalog.Rooms {
		cat.PutRoom(r)
	}
	for _, c := range catalog.Coupons {
		cat.PutCoupon(c)
	}
	logger.Info("catalog fixtures loaded", "services", len(catalog.Services), "providers", len(catalog.Providers))

	var sink memory.Sink
	if relay.Producer != nil {
		sink = relay.PublishRecords
	}
	return &storage{
		factory: memory.Factory{
			BookingRepo:  bookings,
			ProviderRepo: providers,
			CatalogRepo:  cat,
			ReviewsRepo:  memory.NewReviewRepository(),
		},
		bookings:    bookings,
		providers:   providers,
		catalog:     cat,
		idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
		outbox:      memory.NewOutbox(sink, logger),
		inbox:       memory.NewInbox(),
		checks:      map[string]obs.Check{},
		close:       func() {},
	}
}

func openMongo(ctx context.Context, cfg config.Config, logger *slog.Logger, catalog fixtures.Catalog) (*storage, error) {
	client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	closeClient := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}
	fail := func(step string, err error) (*storage, error) {
		closeClient()
		return nil, fmt.Errorf("mongo %s: %w", step, err)
	}

	db := client.DB
	bookings := mongostore.NewBookingRepository(db)
	if err := bookings.EnsureIndexes(ctx); err != nil {
		return fail("booking indexes", err)
	}
	reviews := mongostore.NewReviewRepository(db)
	if err := reviews.EnsureIndexes(ctx); err != nil {
		return fail("review indexes", err)
	}
	providers := mongostore.NewProviderRepository(db)
	cat := mongostore.NewCatalogRepository(db)
	if err := cat.Seed(ctx, catalog.Services, catalog.Temples, catalog.Rooms, catalog.Coupons); err != nil {
		return fail("catalog seed", err)
	}
	for _, p := range catalog.Providers {
		if err := providers.Save(ctx, p); err != nil {
			return fail("provider seed", err)
		}
	}
	logger.Info("catalog fixtures seeded", "services", len(catalog.Services), "providers", len(catalog.Providers))

	idem, err := mongostore.NewIdempotencyStore(ctx, db, cfg.IdempotencyTTL)
	if err != nil {
		return fail("idempotency store", err)
	}
	box, err := outbox.NewStore(ctx, db)
	if err != nil {
		return fail("outbox store", err)
	}
	seen, err := inbox.NewStore(ctx, db, paymentsConsumerGroup)
	if err != nil {
		return fail("inbox store", err)
	}

	return &storage{
		factory: mongostore.Factory{
			DB:           db,
			BookingRepo:  bookings,
			ProviderRepo: providers,
			CatalogRepo:  cat,
			ReviewsRepo:  reviews,
		},
		bookings:    bookings,
		providers:   providers,
		catalog:     cat,
		idempotency: idem,
		outbox:      box,
		relayStore:  box,
		inbox:       seen,
		checks:      map[string]obs.Check{"mongo": client.Ping},
		close:       closeClient,
	}, nil
}
