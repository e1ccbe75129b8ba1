package payments

import (
	"context"
	"sync"

	"divineconnect/internal/app/policies"
	"divineconnect/internal/domain/shared/money"
)

type MovementKind string

const (
	MovementRelease MovementKind = "release"
	MovementRefund  MovementKind = "refund"
)

type Movement struct {
	Kind       MovementKind
	BookingID  string
	PaymentRef string
	Amount     money.Money
}

// Escrow is an in-memory gateway that records every movement. Err, when set, fails all calls.
type Escrow struct {
	mu        sync.Mutex
	movements []Movement
	Err       error
}

func NewEscrow() *Escrow {
	return &Escrow{}
}

func (e *Escrow) Release(ctx context.Context, bookingID, paymentRef string, amount money.Money) error {
	return e.record(Movement{Kind: MovementRelease, BookingID: bookingID, PaymentRef: paymentRef, Amount: amount})
}

func (e *Escrow) Refund(ctx context.Context, bookingID, paymentRef string, amount money.Money) error {
	return e.record(Movement{Kind: MovementRefund, BookingID: bookingID, PaymentRef: paymentRef, Amount: amount})
}

func (e *Escrow) record(m Movement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.movements = append(e.movements, m)
	return nil
}

func (e *Escrow) Movements() []Movement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Movement(nil), e.movements...)
}

var _ policies.PaymentsPort = (*Escrow)(nil)
