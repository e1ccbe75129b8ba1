package policies

import (
	"context"

	"divineconnect/internal/domain/shared/money"
)

// PaymentsPort moves escrowed funds. Capture into escrow happens outside this system and is
// reported through the payment_captured event.
type PaymentsPort interface {
	Release(ctx context.Context, bookingID, paymentRef string, amount money.Money) error
	Refund(ctx context.Context, bookingID, paymentRef string, amount money.Money) error
}
