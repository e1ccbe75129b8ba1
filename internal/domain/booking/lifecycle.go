package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("booking: invalid state transition")
	ErrInconsistentState = errors.New("booking: status and payment status disagree")
)

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentEscrowed PaymentStatus = "ESCROWED"
	PaymentReleased PaymentStatus = "RELEASED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Event drives the lifecycle.
type Event string

const (
	EventAllocated         Event = "allocated"
	EventPaymentCaptured   Event = "payment_captured"
	EventProviderStarted   Event = "provider_started"
	EventProviderCompleted Event = "provider_completed"
	EventCancelled         Event = "cancelled"
)

var transitions = map[Status]map[Event]Status{
	StatusDraft: {
		EventAllocated: StatusPending,
		EventCancelled: StatusCancelled,
	},
	StatusPending: {
		EventPaymentCaptured: StatusConfirmed,
		EventCancelled:       StatusCancelled,
	},
	StatusConfirmed: {
		EventProviderStarted: StatusInProgress,
		EventCancelled:       StatusCancelled,
	},
	StatusInProgress: {
		EventProviderCompleted: StatusCompleted,
	},
}

var allowedPayments = map[Status][]PaymentStatus{
	StatusDraft:      {PaymentUnpaid},
	StatusPending:    {PaymentUnpaid},
	StatusConfirmed:  {PaymentEscrowed},
	StatusInProgress: {PaymentEscrowed},
	StatusCompleted:  {PaymentReleased},
	StatusCancelled:  {PaymentUnpaid, PaymentRefunded},
}

// Next returns the status event leads to from from.
func Next(from Status, ev Event) (Status, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
	}
	return next, nil
}

// CanTransition reports whether ev is accepted in from.
func CanTransition(from Status, ev Event) bool {
	_, err := Next(from, ev)
	return err == nil
}

// ValidPair reports whether the payment status may accompany the booking status.
func ValidPair(status Status, payment PaymentStatus) bool {
	for _, p := range allowedPayments[status] {
		if p == payment {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further events.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseEvent accepts the externally triggerable events.
func ParseEvent(value string) (Event, bool) {
	switch Event(value) {
	case EventPaymentCaptured, EventProviderStarted, EventProviderCompleted, EventCancelled:
		return Event(value), true
	}
	return "", false
}
