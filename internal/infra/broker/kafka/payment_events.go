package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	bookinghandlers "divineconnect/internal/app/handlers/booking"
	"divineconnect/internal/app/policies"
	domainbooking "divineconnect/internal/domain/booking"
)

const EventPaymentCaptured = "payment.captured"

// PaymentEvent is what the payment gateway relay publishes once funds sit in escrow.
type PaymentEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	BookingID  string `json:"booking_id"`
	PaymentRef string `json:"payment_ref"`
	Amount     int64  `json:"amount"`
}

// Inbox remembers handled event ids. Seen records id and reports whether it was already there.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// PaymentEventHandler turns gateway events into payment_captured transitions.
type PaymentEventHandler struct {
	Bus    commands.Bus
	Inbox  Inbox
	Logger *slog.Logger
}

func (h *PaymentEventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var ev PaymentEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.ID == "" || ev.BookingID == "" {
		logger.Warn("dropping malformed payment event", "offset", msg.Offset, "error", err)
		return nil
	}
	if ev.Type != EventPaymentCaptured {
		return nil
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, ev.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	_, err := commands.Dispatch[bookinghandlers.TransitionBookingCommand, *dto.Booking](ctx, h.Bus, bookinghandlers.TransitionBookingCommand{
		BookingID:  ev.BookingID,
		Event:      string(domainbooking.EventPaymentCaptured),
		Actor:      policies.SystemActor,
		PaymentRef: ev.PaymentRef,
		Amount:     ev.Amount,
	})
	switch {
	case err == nil:
		logger.Info("payment captured", "booking_id", ev.BookingID, "payment_ref", ev.PaymentRef)
		return nil
	case !retryable(err):
		// acked so one bad event cannot stall the partition
		logger.Warn("payment event rejected", "booking_id", ev.BookingID, "event_id", ev.ID, "code", apperr.From(err).Code, "error", err)
		return nil
	default:
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, ev.ID); ferr != nil {
				logger.Error("inbox forget failed", "event_id", ev.ID, "error", ferr)
			}
		}
		return err
	}
}

// retryable reports whether a failed capture may succeed on redelivery. Storage failures and
// unclassified errors are; every business rejection is final.
func retryable(err error) bool {
	switch apperr.From(err).Code {
	case apperr.CodePersistence, apperr.CodeInternal:
		return true
	}
	return false
}

var _ MessageHandler = (*PaymentEventHandler)(nil)
