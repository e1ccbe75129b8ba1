package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"divineconnect/internal/app/policies"
	"divineconnect/internal/domain/shared/money"
)

var ErrNotStripeRef = errors.New("payments: payment reference is not a stripe payment intent")

// minorUnits converts whole catalog units to the smallest currency unit Stripe expects.
const minorUnits = 100

// Stripe moves escrow held on manual-capture PaymentIntents. A captured booking holds an
// authorised intent; release captures it and refund cancels or refunds it.
type Stripe struct {
	api    *client.API
	logger *slog.Logger
}

func NewStripe(secretKey string, logger *slog.Logger) *Stripe {
	if logger == nil {
		logger = slog.Default()
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, logger: logger}
}

func (s *Stripe) Release(ctx context.Context, bookingID, paymentRef string, amount money.Money) error {
	if err := checkRef(paymentRef); err != nil {
		return err
	}
	pi, err := s.api.PaymentIntents.Get(paymentRef, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return fmt.Errorf("stripe get %s: %w", paymentRef, err)
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		s.logger.Info("payment already settled", "booking_id", bookingID, "payment_ref", paymentRef, "status", pi.Status)
		return nil
	}
	params := &stripe.PaymentIntentCaptureParams{
		Params:          stripe.Params{Context: ctx},
		AmountToCapture: stripe.Int64(amount.Amount * minorUnits),
	}
	params.AddMetadata("booking_id", bookingID)
	if _, err := s.api.PaymentIntents.Capture(paymentRef, params); err != nil {
		return fmt.Errorf("stripe capture %s: %w", paymentRef, err)
	}
	return nil
}

func (s *Stripe) Refund(ctx context.Context, bookingID, paymentRef string, amount money.Money) error {
	if err := checkRef(paymentRef); err != nil {
		return err
	}
	pi, err := s.api.PaymentIntents.Get(paymentRef, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return fmt.Errorf("stripe get %s: %w", paymentRef, err)
	}
	if pi.Status == stripe.PaymentIntentStatusRequiresCapture {
		params := &stripe.PaymentIntentCancelParams{
			Params:             stripe.Params{Context: ctx},
			CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
		}
		if _, err := s.api.PaymentIntents.Cancel(paymentRef, params); err != nil {
			return fmt.Errorf("stripe cancel %s: %w", paymentRef, err)
		}
		return nil
	}
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(amount.Amount * minorUnits),
	}
	params.AddMetadata("booking_id", bookingID)
	if _, err := s.api.Refunds.New(params); err != nil {
		return fmt.Errorf("stripe refund %s: %w", paymentRef, err)
	}
	return nil
}

func checkRef(ref string) error {
	if !strings.HasPrefix(ref, "pi_") {
		return ErrNotStripeRef
	}
	return nil
}

var _ policies.PaymentsPort = (*Stripe)(nil)
