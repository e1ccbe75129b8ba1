package me

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/dto"
	"divineconnect/internal/app/queries"
	"divineconnect/internal/app/uow"
	domainbooking "divineconnect/internal/domain/booking"
)

const listMyBookingsKey = "me.bookings.list"

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// activeStatuses is what a devotee still has to attend or pay for.
var activeStatuses = []domainbooking.Status{
	domainbooking.StatusPending,
	domainbooking.StatusConfirmed,
	domainbooking.StatusInProgress,
}

var knownStatuses = map[domainbooking.Status]bool{
	domainbooking.StatusDraft:      true,
	domainbooking.StatusPending:    true,
	domainbooking.StatusConfirmed:  true,
	domainbooking.StatusInProgress: true,
	domainbooking.StatusCompleted:  true,
	domainbooking.StatusCancelled:  true,
}

// ListMyBookingsQuery lists the caller's bookings. Status is a comma separated list of
// booking statuses, "active", or empty for everything.
type ListMyBookingsQuery struct {
	UserID string `validate:"required"`
	Status string
	Limit  int `validate:"gte=0"`
}

func (q ListMyBookingsQuery) Key() string { return listMyBookingsKey }

func (q ListMyBookingsQuery) ActorID() string { return q.UserID }

type ListMyBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

// Handle lists the devotee's bookings, newest first.
func (h *ListMyBookingsHandler) Handle(ctx context.Context, q ListMyBookingsQuery) (dto.BookingCollection, error) {
	userID := strings.TrimSpace(q.UserID)
	if userID == "" {
		return dto.BookingCollection{}, apperr.From(apperr.ErrUnauthorized)
	}
	statuses, err := parseStatuses(q.Status)
	if err != nil {
		return dto.BookingCollection{}, apperr.New(apperr.CodeValidation, err.Error(), err)
	}
	m, err := uow.Begin(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return dto.BookingCollection{}, apperr.Persistence(err)
	}
	defer m.Close()

	list, err := m.Unit.Bookings().Find(m.Ctx, domainbooking.Filter{
		UserID:   userID,
		Statuses: statuses,
		Limit:    clampLimit(q.Limit),
	})
	if err != nil {
		return dto.BookingCollection{}, apperr.Persistence(err)
	}
	if h.Logger != nil {
		h.Logger.Debug("user bookings listed", "user_id", userID, "statuses", statuses, "count", len(list))
	}
	return dto.MapBookings(list), nil
}

func parseStatuses(raw string) ([]domainbooking.Status, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "all":
		return nil, nil
	case "active":
		return activeStatuses, nil
	}
	var out []domainbooking.Status
	for _, part := range strings.Split(raw, ",") {
		status := domainbooking.Status(strings.ToUpper(strings.TrimSpace(part)))
		if status == "" {
			continue
		}
		if !knownStatuses[status] {
			return nil, fmt.Errorf("unknown booking status %q", part)
		}
		out = append(out, status)
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

var _ queries.Handler[ListMyBookingsQuery, dto.BookingCollection] = (*ListMyBookingsHandler)(nil)
