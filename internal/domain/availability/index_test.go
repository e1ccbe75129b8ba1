package availability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/provider"
	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
)

type bookingsFake struct {
	list []*booking.Booking
}

func (f *bookingsFake) ByID(context.Context, booking.ID) (*booking.Booking, error) {
	return nil, booking.ErrNotFound
}
func (f *bookingsFake) Create(_ context.Context, b *booking.Booking) error {
	f.list = append(f.list, b)
	return nil
}
func (f *bookingsFake) Update(context.Context, *booking.Booking) error { return nil }

func (f *bookingsFake) Find(_ context.Context, filter booking.Filter) ([]*booking.Booking, error) {
	var out []*booking.Booking
	for _, b := range f.list {
		if filter.ExcludeCancelled && !b.Active() {
			continue
		}
		if filter.Date != "" && b.Date != filter.Date {
			continue
		}
		if filter.HoldKey != "" {
			match := false
			for _, h := range b.Holds {
				if h.Key.String() == filter.HoldKey {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, b)
	}
	return out, nil
}

type providersFake struct {
	list []*provider.Profile
}

func (f *providersFake) ByID(context.Context, provider.ID) (*provider.Profile, error) {
	return nil, provider.ErrNotFound
}
func (f *providersFake) FindCandidates(context.Context, provider.Filter) ([]*provider.Profile, error) {
	return f.list, nil
}
func (f *providersFake) Save(context.Context, *provider.Profile) error { return nil }

type catalogFake struct {
	rooms map[string]*catalog.LodgingRoom
}

func (f *catalogFake) Service(context.Context, catalog.ServiceID) (*catalog.Service, error) {
	return nil, catalog.ErrServiceNotFound
}
func (f *catalogFake) Temple(context.Context, string) (*catalog.Temple, error) {
	return nil, catalog.ErrTempleNotFound
}
func (f *catalogFake) LodgingRoom(_ context.Context, id string) (*catalog.LodgingRoom, error) {
	r, ok := f.rooms[id]
	if !ok {
		return nil, catalog.ErrRoomNotFound
	}
	return r, nil
}
func (f *catalogFake) Coupon(context.Context, string) (*catalog.Coupon, error) {
	return nil, catalog.ErrCouponNotFound
}

func held(id string, status booking.Status, date string, tokens ...slotlock.Token) *booking.Booking {
	return &booking.Booking{ID: booking.ID(id), Date: date, Status: status, Holds: tokens}
}

func officiant(id, locality string) *provider.Profile {
	return &provider.Profile{ID: provider.ID(id), Verified: true, Visible: true, Locality: locality, Capabilities: []string{"griha-pravesh"}}
}

func TestCommittedAndIsFree(t *testing.T) {
	pk := slots.ProviderKey("p1", "2025-03-10", "6:00 AM")
	ck := slots.CapacityKey("deluxe", "2025-03-10")
	bookings := &bookingsFake{list: []*booking.Booking{
		held("b1", booking.StatusConfirmed, "2025-03-10", slotlock.Token{Key: pk, Units: 1}, slotlock.Token{Key: ck, Units: 2}),
		held("b2", booking.StatusCancelled, "2025-03-10", slotlock.Token{Key: ck, Units: 3}),
		held("b3", booking.StatusPending, "2025-03-10", slotlock.Token{Key: ck, Units: 1}),
	}}
	ix := NewIndex(bookings, &providersFake{}, &catalogFake{rooms: map[string]*catalog.LodgingRoom{"deluxe": {ID: "deluxe", Capacity: 4}}})
	ctx := context.Background()

	n, err := ix.Committed(ctx, ck)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	free, err := ix.IsFree(ctx, pk)
	require.NoError(t, err)
	assert.False(t, free)

	free, err = ix.IsFree(ctx, ck)
	require.NoError(t, err)
	assert.True(t, free)

	fits, err := ix.FitsCapacity(ctx, ck, 2, 4)
	require.NoError(t, err)
	assert.False(t, fits)

	_, err = ix.IsFree(ctx, slots.CapacityKey("suite", "2025-03-10"))
	assert.ErrorIs(t, err, ErrUnknownCapacity)
}

func TestListCandidatesSkipsBusyAndPrefersLocality(t *testing.T) {
	pk := slots.ProviderKey("p1", "2025-03-10", "6:00 AM")
	bookings := &bookingsFake{list: []*booking.Booking{
		held("b1", booking.StatusPending, "2025-03-10", slotlock.Token{Key: pk, Units: 1}),
	}}
	hidden := officiant("p4", "Indiranagar")
	hidden.Visible = false
	providers := &providersFake{list: []*provider.Profile{
		officiant("p3", "Whitefield"),
		officiant("p1", "Indiranagar"),
		officiant("p2", "Indiranagar"),
		hidden,
	}}
	ix := NewIndex(bookings, providers, &catalogFake{})
	ctx := context.Background()

	got, err := ix.ListCandidates(ctx, CandidateQuery{Capability: "griha-pravesh", Locality: "indiranagar", Date: "2025-03-10", Slot: "6:00 AM"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, provider.ID("p2"), got[0].ID)

	got, err = ix.ListCandidates(ctx, CandidateQuery{Capability: "griha-pravesh", Locality: "Jayanagar", Date: "2025-03-10", Slot: "6:00 AM"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, provider.ID("p2"), got[0].ID)
	assert.Equal(t, provider.ID("p3"), got[1].ID)

	got, err = ix.ListCandidates(ctx, CandidateQuery{Capability: "griha-pravesh", Date: "2025-03-10", Slot: "7:00 AM"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
