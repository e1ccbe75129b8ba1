package booking

import (
	"context"
	"errors"
	"time"

	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/domain/shared/events"
	"divineconnect/internal/domain/shared/money"
	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
)

var (
	ErrNotFound            = errors.New("booking: not found")
	ErrDuplicate           = errors.New("booking: already exists")
	ErrConcurrentUpdate    = errors.New("booking: concurrent update")
	ErrProviderUnassigned  = errors.New("booking: no provider assigned yet")
	ErrAlreadyAssigned     = errors.New("booking: provider already assigned")
	ErrAlreadyReviewed     = errors.New("booking: already reviewed")
	ErrPaymentRefRequired  = errors.New("booking: payment reference required")
	ErrPaymentMismatch     = errors.New("booking: captured amount does not match the price")
	ErrCertificateRequired = errors.New("booking: certificate number required")
)

type ID string

// Allocation records how the provider side of a booking was resolved.
type Allocation string

const (
	AllocationAssigned      Allocation = "ASSIGNED"
	AllocationPendingManual Allocation = "PENDING_MANUAL_ASSIGNMENT"
	AllocationNotRequired   Allocation = "NOT_REQUIRED"
)

type Booking struct {
	ID            ID
	UserID        string
	ServiceID     catalog.ServiceID
	Mode          catalog.Mode
	Date          string
	Slot          string
	ProviderID    string
	Allocation    Allocation
	AssignBy      time.Time
	Request       Request
	Price         pricing.Breakdown
	Status        Status
	Payment       PaymentStatus
	PaymentRef    string
	Holds         []slotlock.Token
	CancelledBy   string
	CancelReason  string
	CertificateNo string
	Reviewed      bool
	CreatedAt     time.Time
	ConfirmedAt   time.Time
	StartedAt     time.Time
	CompletedAt   time.Time
	CancelledAt   time.Time
	UpdatedAt     time.Time
	Version       int64
	events.EventRecorder
}

type Filter struct {
	UserID           string
	ProviderID       string
	HoldKey          string
	Date             string
	Slot             string
	Statuses         []Status
	ExcludeCancelled bool
	CreatedBefore    time.Time
	Unassigned       bool
	Limit            int
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Booking, error)
	// Create fails with ErrDuplicate when the id is taken.
	Create(ctx context.Context, booking *Booking) error
	// Update fails with ErrConcurrentUpdate when Version is stale; on success Version is bumped.
	Update(ctx context.Context, booking *Booking) error
	Find(ctx context.Context, filter Filter) ([]*Booking, error)
}

type CreateParams struct {
	ID         ID
	Request    Request
	ProviderID string
	Allocation Allocation
	AssignBy   time.Time
	Price      pricing.Breakdown
	Holds      []slotlock.Token
	CreatedAt  time.Time
}

// NewDraft starts a booking whose holds are already acquired.
func NewDraft(params CreateParams) (*Booking, error) {
	if params.ID == "" {
		return nil, errors.New("booking: id required")
	}
	if params.Request.UserID == "" {
		return nil, Invalid("user_id", "required")
	}
	now := params.CreatedAt.UTC()
	req := params.Request.Clone()
	b := &Booking{
		ID:         params.ID,
		UserID:     req.UserID,
		ServiceID:  req.ServiceID,
		Mode:       req.Mode,
		Date:       req.Date,
		Slot:       req.Slot,
		ProviderID: params.ProviderID,
		Allocation: params.Allocation,
		AssignBy:   params.AssignBy.UTC(),
		Request:    req,
		Price:      params.Price.Copy(),
		Status:     StatusDraft,
		Payment:    PaymentUnpaid,
		Holds:      append([]slotlock.Token(nil), params.Holds...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return b, nil
}

// MarkAllocated moves a draft whose holds are durable to Pending.
func (b *Booking) MarkAllocated(now time.Time) error {
	if err := b.apply(EventAllocated); err != nil {
		return err
	}
	b.UpdatedAt = b.stamp(now)
	b.Record(BookingRequested{
		BookingID:   b.ID,
		UserID:      b.UserID,
		ServiceID:   string(b.ServiceID),
		Mode:        string(b.Mode),
		Date:        b.Date,
		Slot:        b.Slot,
		ProviderID:  b.ProviderID,
		Allocation:  b.Allocation,
		QuotedTotal: b.Price.Total,
		At:          b.UpdatedAt,
	})
	return nil
}

// CapturePayment confirms the booking and places the funds in escrow. price is the
// freshly recomputed breakdown and amount must equal its total.
func (b *Booking) CapturePayment(ref string, amount int64, price pricing.Breakdown, now time.Time) error {
	if ref == "" {
		return ErrPaymentRefRequired
	}
	if !CanTransition(b.Status, EventPaymentCaptured) {
		return b.apply(EventPaymentCaptured)
	}
	if amount != price.Total.Amount {
		return ErrPaymentMismatch
	}
	_ = b.apply(EventPaymentCaptured)
	b.Payment = PaymentEscrowed
	b.PaymentRef = ref
	b.Price = price.Copy()
	b.ConfirmedAt = b.stamp(now)
	b.UpdatedAt = b.ConfirmedAt
	b.Record(BookingConfirmed{BookingID: b.ID, PaymentRef: ref, Total: b.Price.Total, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Start(now time.Time) error {
	if b.Status == StatusConfirmed && b.requiresProvider() && b.ProviderID == "" {
		return ErrProviderUnassigned
	}
	if err := b.apply(EventProviderStarted); err != nil {
		return err
	}
	b.StartedAt = b.stamp(now)
	b.UpdatedAt = b.StartedAt
	b.Record(BookingStarted{BookingID: b.ID, ProviderID: b.ProviderID, At: b.UpdatedAt})
	return nil
}

// Complete finishes the service and releases escrow to the provider.
func (b *Booking) Complete(now time.Time) error {
	if err := b.apply(EventProviderCompleted); err != nil {
		return err
	}
	b.Payment = PaymentReleased
	b.CompletedAt = b.stamp(now)
	b.UpdatedAt = b.CompletedAt
	b.Record(BookingCompleted{BookingID: b.ID, ProviderID: b.ProviderID, Released: b.Price.Total, At: b.UpdatedAt})
	return nil
}

// Cancel returns the amount to refund, zero when nothing was captured.
func (b *Booking) Cancel(actor, reason string, now time.Time) (money.Money, error) {
	if err := b.apply(EventCancelled); err != nil {
		return money.Money{}, err
	}
	refund := money.Zero(b.Price.Total.Currency)
	if b.Payment == PaymentEscrowed {
		b.Payment = PaymentRefunded
		refund = b.Price.Total
	}
	b.CancelledBy = actor
	b.CancelReason = reason
	b.CancelledAt = b.stamp(now)
	b.UpdatedAt = b.CancelledAt
	b.Record(BookingCancelled{BookingID: b.ID, CancelledBy: actor, Reason: reason, Refund: refund, At: b.UpdatedAt})
	return refund, nil
}

// AssignProvider fills a deferred provider allocation with a held slot.
func (b *Booking) AssignProvider(providerID string, hold slotlock.Token, now time.Time) error {
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return ErrInvalidTransition
	}
	if b.ProviderID != "" || b.Allocation != AllocationPendingManual {
		return ErrAlreadyAssigned
	}
	b.ProviderID = providerID
	b.Allocation = AllocationAssigned
	b.Holds = append(b.Holds, hold)
	b.UpdatedAt = b.stamp(now)
	b.Record(ProviderAssigned{BookingID: b.ID, ProviderID: providerID, At: b.UpdatedAt})
	return nil
}

// MarkReviewed allows one review per completed booking.
func (b *Booking) MarkReviewed(now time.Time) error {
	if b.Status != StatusCompleted {
		return ErrInvalidTransition
	}
	if b.Reviewed {
		return ErrAlreadyReviewed
	}
	b.Reviewed = true
	b.UpdatedAt = b.stamp(now)
	return nil
}

// IssueCertificate is idempotent; a second call keeps the first number.
func (b *Booking) IssueCertificate(number string, now time.Time) error {
	if b.Status != StatusCompleted {
		return ErrInvalidTransition
	}
	if b.CertificateNo != "" {
		return nil
	}
	if number == "" {
		return ErrCertificateRequired
	}
	b.CertificateNo = number
	b.UpdatedAt = b.stamp(now)
	b.Record(CertificateIssued{BookingID: b.ID, Number: number, At: b.UpdatedAt})
	return nil
}

// CheckConsistency must hold before any write.
func (b *Booking) CheckConsistency() error {
	if !ValidPair(b.Status, b.Payment) {
		return ErrInconsistentState
	}
	return nil
}

func (b *Booking) Active() bool {
	return b.Status != StatusCancelled
}

// HoldsKey reports whether the booking holds units on key.
func (b *Booking) HoldsKey(key slots.Key) bool {
	for _, h := range b.Holds {
		if h.Key == key {
			return true
		}
	}
	return false
}

// UnitsOn sums the units this booking holds on key.
func (b *Booking) UnitsOn(key slots.Key) int {
	total := 0
	for _, h := range b.Holds {
		if h.Key == key {
			total += h.Units
		}
	}
	return total
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	clone := *b
	clone.EventRecorder = events.EventRecorder{}
	clone.Request = b.Request.Clone()
	clone.Price = b.Price.Copy()
	clone.Holds = append([]slotlock.Token(nil), b.Holds...)
	return &clone
}

func (b *Booking) requiresProvider() bool {
	return b.Allocation != AllocationNotRequired
}

func (b *Booking) apply(ev Event) error {
	next, err := Next(b.Status, ev)
	if err != nil {
		return err
	}
	b.Status = next
	return nil
}

// stamp keeps timestamps monotonic even if the clock steps back.
func (b *Booking) stamp(now time.Time) time.Time {
	now = now.UTC()
	if now.Before(b.UpdatedAt) {
		return b.UpdatedAt
	}
	return now
}
