package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domainbooking "divineconnect/internal/domain/booking"
	domaincatalog "divineconnect/internal/domain/catalog"
	domainprovider "divineconnect/internal/domain/provider"
	domainreviews "divineconnect/internal/domain/reviews"
)

// BookingRepository keeps bookings in memory. Values are cloned on the way in and out so
// callers never share mutable state.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.ID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.ID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.ID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrNotFound
	}
	return b.Clone(), nil
}

func (r *BookingRepository) Create(ctx context.Context, b *domainbooking.Booking) error {
	return r.apply([]bookingOp{newCreateOp(b)})
}

func (r *BookingRepository) Update(ctx context.Context, b *domainbooking.Booking) error {
	return r.apply([]bookingOp{newUpdateOp(b)})
}

func (r *BookingRepository) Find(ctx context.Context, filter domainbooking.Filter) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if matchesFilter(b, filter) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type bookingOp struct {
	create   bool
	snapshot *domainbooking.Booking
	expected int64
}

// newCreateOp stamps version 1 on b.
func newCreateOp(b *domainbooking.Booking) bookingOp {
	b.Version = 1
	return bookingOp{create: true, snapshot: b.Clone()}
}

// newUpdateOp bumps b.Version and remembers the version it expects to replace.
func newUpdateOp(b *domainbooking.Booking) bookingOp {
	expected := b.Version
	b.Version++
	return bookingOp{snapshot: b.Clone(), expected: expected}
}

// apply validates every op against current state and only then writes them all.
func (r *BookingRepository) apply(ops []bookingOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := make(map[domainbooking.ID]int64, len(ops))
	current := func(id domainbooking.ID) (int64, bool) {
		if v, ok := versions[id]; ok {
			return v, true
		}
		if b, ok := r.items[id]; ok {
			return b.Version, true
		}
		return 0, false
	}
	for _, op := range ops {
		id := op.snapshot.ID
		version, exists := current(id)
		switch {
		case op.create && exists:
			return domainbooking.ErrDuplicate
		case !op.create && !exists:
			return domainbooking.ErrNotFound
		case !op.create && version != op.expected:
			return domainbooking.ErrConcurrentUpdate
		}
		versions[id] = op.snapshot.Version
	}
	for _, op := range ops {
		r.items[op.snapshot.ID] = op.snapshot
	}
	return nil
}

func matchesFilter(b *domainbooking.Booking, f domainbooking.Filter) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.ProviderID != "" && b.ProviderID != f.ProviderID {
		return false
	}
	if f.Date != "" && b.Date != f.Date {
		return false
	}
	if f.Slot != "" && b.Slot != f.Slot {
		return false
	}
	if f.ExcludeCancelled && !b.Active() {
		return false
	}
	if f.Unassigned && (b.ProviderID != "" || b.Allocation != domainbooking.AllocationPendingManual) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !b.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.HoldKey != "" {
		found := false
		for _, h := range b.Holds {
			if h.Key.String() == f.HoldKey {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ProviderRepository is an in-memory provider directory.
type ProviderRepository struct {
	mu    sync.RWMutex
	items map[domainprovider.ID]*domainprovider.Profile
}

func NewProviderRepository(profiles ...*domainprovider.Profile) *ProviderRepository {
	r := &ProviderRepository{items: make(map[domainprovider.ID]*domainprovider.Profile)}
	for _, p := range profiles {
		r.items[p.ID] = p.Clone()
	}
	return r
}

func (r *ProviderRepository) ByID(ctx context.Context, id domainprovider.ID) (*domainprovider.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domainprovider.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProviderRepository) FindCandidates(ctx context.Context, f domainprovider.Filter) ([]*domainprovider.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainprovider.Profile, 0)
	for _, p := range r.items {
		if f.VerifiedOnly && !p.Verified {
			continue
		}
		if f.VisibleOnly && !p.Visible {
			continue
		}
		if f.Capability != "" && !p.Can(f.Capability) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProviderRepository) Save(ctx context.Context, p *domainprovider.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = p.Clone()
	return nil
}

// CatalogRepository holds services, temples, lodging rooms and coupons.
type CatalogRepository struct {
	mu       sync.RWMutex
	services map[domaincatalog.ServiceID]domaincatalog.Service
	temples  map[string]domaincatalog.Temple
	rooms    map[string]domaincatalog.LodgingRoom
	coupons  map[string]domaincatalog.Coupon
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		services: make(map[domaincatalog.ServiceID]domaincatalog.Service),
		temples:  make(map[string]domaincatalog.Temple),
		rooms:    make(map[string]domaincatalog.LodgingRoom),
		coupons:  make(map[string]domaincatalog.Coupon),
	}
}

func (r *CatalogRepository) PutService(s domaincatalog.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	base := make(map[domaincatalog.Mode]int64, len(s.Prices.Base))
	for k, v := range s.Prices.Base {
		base[k] = v
	}
	s.Prices.Base = base
	r.services[s.ID] = s
}

func (r *CatalogRepository) PutTemple(t domaincatalog.Temple) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.temples[t.ID] = t
}

func (r *CatalogRepository) PutRoom(room domaincatalog.LodgingRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room
}

func (r *CatalogRepository) PutCoupon(c domaincatalog.Coupon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Code = domaincatalog.NormalizeCode(c.Code)
	r.coupons[c.Code] = c
}

func (r *CatalogRepository) Service(ctx context.Context, id domaincatalog.ServiceID) (*domaincatalog.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[id]
	if !ok {
		return nil, domaincatalog.ErrServiceNotFound
	}
	return &s, nil
}

func (r *CatalogRepository) Temple(ctx context.Context, id string) (*domaincatalog.Temple, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.temples[id]
	if !ok {
		return nil, domaincatalog.ErrTempleNotFound
	}
	return &t, nil
}

func (r *CatalogRepository) LodgingRoom(ctx context.Context, id string) (*domaincatalog.LodgingRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, domaincatalog.ErrRoomNotFound
	}
	return &room, nil
}

func (r *CatalogRepository) Coupon(ctx context.Context, code string) (*domaincatalog.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coupons[domaincatalog.NormalizeCode(code)]
	if !ok {
		return nil, domaincatalog.ErrCouponNotFound
	}
	return &c, nil
}

// ReviewRepository stores reviews keyed by booking.
type ReviewRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.ID]*domainreviews.Review
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{items: make(map[domainbooking.ID]*domainreviews.Review)}
}

func (r *ReviewRepository) ByBooking(ctx context.Context, bookingID domainbooking.ID) (*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	review, ok := r.items[bookingID]
	if !ok {
		return nil, domainreviews.ErrNotFound
	}
	clone := *review
	return &clone, nil
}

func (r *ReviewRepository) ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*domainreviews.Review, 0)
	for _, review := range r.items {
		if strings.EqualFold(review.ProviderID, providerID) {
			clone := *review
			matches = append(matches, &clone)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	if offset >= len(matches) {
		return []*domainreviews.Review{}, nil
	}
	matches = matches[offset:]
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *ReviewRepository) Save(ctx context.Context, review *domainreviews.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *review
	r.items[review.BookingID] = &clone
	return nil
}

var (
	_ domainbooking.Repository  = (*BookingRepository)(nil)
	_ domainprovider.Repository = (*ProviderRepository)(nil)
	_ domaincatalog.Repository  = (*CatalogRepository)(nil)
	_ domainreviews.Repository  = (*ReviewRepository)(nil)
)
