package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	bookinghandlers "divineconnect/internal/app/handlers/booking"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/infra/storage/memory"
)

func paymentBus(t *testing.T, result error, got *[]bookinghandlers.TransitionBookingCommand) commands.Bus {
	t.Helper()
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[bookinghandlers.TransitionBookingCommand, *dto.Booking](bus,
		commands.HandlerFunc[bookinghandlers.TransitionBookingCommand, *dto.Booking](func(ctx context.Context, cmd bookinghandlers.TransitionBookingCommand) (*dto.Booking, error) {
			*got = append(*got, cmd)
			if result != nil {
				return nil, result
			}
			return &dto.Booking{ID: cmd.BookingID}, nil
		}))
	return bus
}

func message(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "payments.events.v1", Value: []byte(value)}
}

func TestPaymentEventDispatchesCaptureOnce(t *testing.T) {
	var got []bookinghandlers.TransitionBookingCommand
	h := &PaymentEventHandler{Bus: paymentBus(t, nil, &got), Inbox: memory.NewInbox()}
	msg := message(`{"id":"ev-1","type":"payment.captured","booking_id":"b1","payment_ref":"pi_1","amount":1534}`)

	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	require.Len(t, got, 1)
	assert.Equal(t, "payment_captured", got[0].Event)
	assert.Equal(t, "pi_1", got[0].PaymentRef)
	assert.EqualValues(t, 1534, got[0].Amount)
}

func TestPaymentEventSkipsMalformedAndForeign(t *testing.T) {
	var got []bookinghandlers.TransitionBookingCommand
	h := &PaymentEventHandler{Bus: paymentBus(t, nil, &got), Inbox: memory.NewInbox()}

	require.NoError(t, h.Handle(context.Background(), message(`not json`)))
	require.NoError(t, h.Handle(context.Background(), message(`{"id":"ev-2","type":"payment.failed","booking_id":"b1"}`)))
	assert.Empty(t, got)
}

func TestPaymentEventRetriesTransientFailure(t *testing.T) {
	var got []bookinghandlers.TransitionBookingCommand
	failure := apperr.Persistence(errors.New("mongo down"))
	inbox := memory.NewInbox()
	h := &PaymentEventHandler{Bus: paymentBus(t, failure, &got), Inbox: inbox}
	msg := message(`{"id":"ev-3","type":"payment.captured","booking_id":"b1","payment_ref":"pi_3","amount":10}`)

	assert.Error(t, h.Handle(context.Background(), msg))
	seen, err := inbox.Seen(context.Background(), "ev-3")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPaymentEventAcksRejectedTransition(t *testing.T) {
	var got []bookinghandlers.TransitionBookingCommand
	rejected := apperr.New(apperr.CodeInvalidTransition, "illegal transition", nil)
	h := &PaymentEventHandler{Bus: paymentBus(t, rejected, &got), Inbox: memory.NewInbox()}

	err := h.Handle(context.Background(), message(`{"id":"ev-4","type":"payment.captured","booking_id":"b1","payment_ref":"pi_4"}`))
	assert.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPaymentEventAcksPermanentRejections(t *testing.T) {
	permanent := []*apperr.Error{
		apperr.From(pricing.ErrInvalidCoupon),
		apperr.From(pricing.ErrUnavailableMode),
		apperr.From(apperr.ErrForbidden),
		apperr.From(apperr.ErrUnauthorized),
		apperr.New(apperr.CodeInvalidTransition, "illegal transition", nil),
		apperr.New(apperr.CodeNotFound, "booking not found", nil),
		apperr.New(apperr.CodeValidation, "amount mismatch", nil),
		apperr.New(apperr.CodeConflict, "slot taken", nil),
		apperr.New(apperr.CodeManualUnavailable, "provider busy", nil),
	}
	for _, rejection := range permanent {
		t.Run(rejection.Code, func(t *testing.T) {
			var got []bookinghandlers.TransitionBookingCommand
			inbox := memory.NewInbox()
			h := &PaymentEventHandler{Bus: paymentBus(t, rejection, &got), Inbox: inbox}

			err := h.Handle(context.Background(), message(`{"id":"ev-5","type":"payment.captured","booking_id":"b1","payment_ref":"pi_5","amount":10}`))

			assert.NoError(t, err)
			assert.Len(t, got, 1)
			seen, err := inbox.Seen(context.Background(), "ev-5")
			require.NoError(t, err)
			assert.True(t, seen)
		})
	}
}

func TestPaymentEventRetriesUnclassifiedFailure(t *testing.T) {
	var got []bookinghandlers.TransitionBookingCommand
	h := &PaymentEventHandler{Bus: paymentBus(t, errors.New("connection reset"), &got), Inbox: memory.NewInbox()}

	err := h.Handle(context.Background(), message(`{"id":"ev-6","type":"payment.captured","booking_id":"b1","payment_ref":"pi_6","amount":10}`))

	assert.Error(t, err)
}
