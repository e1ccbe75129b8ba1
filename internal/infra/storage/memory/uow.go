package memory

import (
	"context"
	"errors"
	"sync"

	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
	domaincatalog "divineconnect/internal/domain/catalog"
	domainprovider "divineconnect/internal/domain/provider"
	domainreviews "divineconnect/internal/domain/reviews"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	BookingRepo  *BookingRepository
	ProviderRepo domainprovider.Repository
	CatalogRepo  domaincatalog.Repository
	ReviewsRepo  domainreviews.Repository
}

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// ErrUnitClosed is returned when a unit is used after commit or rollback.
var ErrUnitClosed = errors.New("memory: unit of work already finished")

// Begin starts a unit that stages booking writes and applies them together on Commit.
// Provider, catalog and review writes are applied immediately.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.BookingRepo == nil || f.ProviderRepo == nil || f.CatalogRepo == nil || f.ReviewsRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		bookings:  &stagedBookings{base: f.BookingRepo, view: make(map[domainbooking.ID]*domainbooking.Booking), readOnly: opts.ReadOnly},
		providers: f.ProviderRepo,
		catalog:   f.CatalogRepo,
		reviews:   f.ReviewsRepo,
	}, nil
}

// Unit is a uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	bookings  *stagedBookings
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

func (u *Unit) Commit(ctx context.Context) error {
	return u.bookings.commit()
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.bookings.discard()
	return nil
}

type stagedBookings struct {
	mu       sync.Mutex
	base     *BookingRepository
	view     map[domainbooking.ID]*domainbooking.Booking
	ops      []bookingOp
	readOnly bool
	done     bool
}

func (s *stagedBookings) ByID(ctx context.Context, id domainbooking.ID) (*domainbooking.Booking, error) {
	s.mu.Lock()
	staged, ok := s.view[id]
	s.mu.Unlock()
	if ok {
		return staged.Clone(), nil
	}
	return s.base.ByID(ctx, id)
}

func (s *stagedBookings) Create(ctx context.Context, b *domainbooking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if _, ok := s.view[b.ID]; ok {
		return domainbooking.ErrDuplicate
	}
	if _, err := s.base.ByID(ctx, b.ID); err == nil {
		return domainbooking.ErrDuplicate
	}
	op := newCreateOp(b)
	s.ops = append(s.ops, op)
	s.view[b.ID] = op.snapshot
	return nil
}

func (s *stagedBookings) Update(ctx context.Context, b *domainbooking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	current, ok := s.view[b.ID]
	if !ok {
		stored, err := s.base.ByID(ctx, b.ID)
		if err != nil {
			return err
		}
		current = stored
	}
	if current.Version != b.Version {
		return domainbooking.ErrConcurrentUpdate
	}
	op := newUpdateOp(b)
	s.ops = append(s.ops, op)
	s.view[b.ID] = op.snapshot
	return nil
}

// Find only sees committed bookings.
func (s *stagedBookings) Find(ctx context.Context, filter domainbooking.Filter) ([]*domainbooking.Booking, error) {
	return s.base.Find(ctx, filter)
}

func (s *stagedBookings) writable() error {
	if s.done {
		return ErrUnitClosed
	}
	if s.readOnly {
		return errors.New("memory: write in read-only unit of work")
	}
	return nil
}

func (s *stagedBookings) commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrUnitClosed
	}
	s.done = true
	ops := s.ops
	s.ops = nil
	if len(ops) == 0 {
		return nil
	}
	return s.base.apply(ops)
}

func (s *stagedBookings) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.ops = nil
	s.view = make(map[domainbooking.ID]*domainbooking.Booking)
}

var _ uow.UoWFactory = Factory{}
