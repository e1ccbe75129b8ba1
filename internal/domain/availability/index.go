package availability

import (
	"context"
	"errors"
	"sort"

	"divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/provider"
	"divineconnect/internal/domain/slots"
)

var ErrUnknownCapacity = errors.New("availability: capacity resource not found")

// Index answers availability questions from committed bookings. It keeps no state of its own,
// so it can never drift from the booking store.
type Index struct {
	bookings  booking.Repository
	providers provider.Repository
	catalog   catalog.Repository
}

func NewIndex(bookings booking.Repository, providers provider.Repository, cat catalog.Repository) *Index {
	return &Index{bookings: bookings, providers: providers, catalog: cat}
}

// Committed sums the units active bookings hold on key.
func (ix *Index) Committed(ctx context.Context, key slots.Key) (int, error) {
	list, err := ix.bookings.Find(ctx, booking.Filter{HoldKey: key.String(), ExcludeCancelled: true})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range list {
		total += b.UnitsOn(key)
	}
	return total, nil
}

// IsFree reports whether at least one more unit fits on key.
func (ix *Index) IsFree(ctx context.Context, key slots.Key) (bool, error) {
	capacity := 1
	if !key.Exclusive() {
		room, err := ix.catalog.LodgingRoom(ctx, key.ResourceID)
		if err != nil {
			if errors.Is(err, catalog.ErrRoomNotFound) {
				return false, ErrUnknownCapacity
			}
			return false, err
		}
		capacity = room.Capacity
	}
	return ix.FitsCapacity(ctx, key, 1, capacity)
}

// FitsCapacity reports whether units more fit on key under capacity.
func (ix *Index) FitsCapacity(ctx context.Context, key slots.Key, units, capacity int) (bool, error) {
	committed, err := ix.Committed(ctx, key)
	if err != nil {
		return false, err
	}
	return committed+units <= capacity, nil
}

type CandidateQuery struct {
	Capability string
	Locality   string
	Date       string
	Slot       string
}

// ListCandidates returns eligible providers free at the slot, ordered by id. Providers in
// the requested locality are preferred; when none match, every free provider is returned.
func (ix *Index) ListCandidates(ctx context.Context, q CandidateQuery) ([]*provider.Profile, error) {
	profiles, err := ix.providers.FindCandidates(ctx, provider.Filter{
		Capability:   q.Capability,
		VerifiedOnly: true,
		VisibleOnly:  true,
	})
	if err != nil {
		return nil, err
	}
	busy, err := ix.busyProviders(ctx, q.Date, q.Slot)
	if err != nil {
		return nil, err
	}
	free := make([]*provider.Profile, 0, len(profiles))
	for _, p := range profiles {
		if !p.Eligible(q.Capability) {
			continue
		}
		if _, taken := busy[string(p.ID)]; taken {
			continue
		}
		free = append(free, p)
	}
	sort.Slice(free, func(i, j int) bool { return free[i].ID < free[j].ID })

	if q.Locality == "" {
		return free, nil
	}
	local := make([]*provider.Profile, 0, len(free))
	for _, p := range free {
		if p.ServesLocality(q.Locality) {
			local = append(local, p)
		}
	}
	if len(local) == 0 {
		return free, nil
	}
	return local, nil
}

// IsCandidate checks a single provider the same way ListCandidates does, ignoring locality.
func (ix *Index) IsCandidate(ctx context.Context, p *provider.Profile, capability, date, slot string) (bool, error) {
	if !p.Eligible(capability) {
		return false, nil
	}
	return ix.IsFree(ctx, slots.ProviderKey(string(p.ID), date, slot))
}

func (ix *Index) busyProviders(ctx context.Context, date, slot string) (map[string]struct{}, error) {
	list, err := ix.bookings.Find(ctx, booking.Filter{Date: date, ExcludeCancelled: true})
	if err != nil {
		return nil, err
	}
	busy := make(map[string]struct{})
	for _, b := range list {
		for _, h := range b.Holds {
			if h.Key.Kind == slots.KindProvider && h.Key.Date == date && h.Key.Slot == slot {
				busy[h.Key.ResourceID] = struct{}{}
			}
		}
	}
	return busy, nil
}
