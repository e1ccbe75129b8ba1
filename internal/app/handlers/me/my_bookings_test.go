package me

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/app/apperr"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/infra/storage/memory"
)

func seededHandler(t *testing.T) *ListMyBookingsHandler {
	t.Helper()
	bookings := memory.NewBookingRepository()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		id     string
		user   string
		status domainbooking.Status
	}{
		{"b1", "dev-1", domainbooking.StatusPending},
		{"b2", "dev-1", domainbooking.StatusConfirmed},
		{"b3", "dev-1", domainbooking.StatusCompleted},
		{"b4", "dev-1", domainbooking.StatusCancelled},
		{"b5", "dev-2", domainbooking.StatusConfirmed},
	}
	for i, s := range seed {
		require.NoError(t, bookings.Create(context.Background(), &domainbooking.Booking{
			ID:        domainbooking.ID(s.id),
			UserID:    s.user,
			Status:    s.status,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	return &ListMyBookingsHandler{UoWFactory: memory.Factory{
		BookingRepo:  bookings,
		ProviderRepo: memory.NewProviderRepository(),
		CatalogRepo:  memory.NewCatalogRepository(),
		ReviewsRepo:  memory.NewReviewRepository(),
	}}
}

func ids(t *testing.T, h *ListMyBookingsHandler, q ListMyBookingsQuery) []string {
	t.Helper()
	out, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	got := make([]string, 0, len(out.Items))
	for _, b := range out.Items {
		got = append(got, b.ID)
	}
	return got
}

func TestListMyBookingsNewestFirstForCallerOnly(t *testing.T) {
	h := seededHandler(t)

	assert.Equal(t, []string{"b4", "b3", "b2", "b1"}, ids(t, h, ListMyBookingsQuery{UserID: "dev-1"}))
	assert.Equal(t, []string{"b4", "b3"}, ids(t, h, ListMyBookingsQuery{UserID: "dev-1", Limit: 2}))
}

func TestListMyBookingsStatusFilters(t *testing.T) {
	h := seededHandler(t)

	assert.Equal(t, []string{"b2", "b1"}, ids(t, h, ListMyBookingsQuery{UserID: "dev-1", Status: "active"}))
	assert.Equal(t, []string{"b4", "b3"}, ids(t, h, ListMyBookingsQuery{UserID: "dev-1", Status: "completed, cancelled"}))

	_, err := h.Handle(context.Background(), ListMyBookingsQuery{UserID: "dev-1", Status: "paid"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.From(err).Code)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxListLimit, clampLimit(10_000))
}
