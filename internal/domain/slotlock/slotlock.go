package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"divineconnect/internal/domain/slots"
)

var (
	// ErrConflict means the units are no longer free. The message is shown to users as is.
	ErrConflict     = errors.New("this slot was just taken, choose another")
	ErrInvalidClaim = errors.New("slotlock: invalid claim")
	// ErrLockTimeout is returned when the bounded wait for a contended key runs out.
	ErrLockTimeout = errors.New("slotlock: timed out waiting for key")
)

// Claim asks for Units out of Capacity on Key. A zero TTL holds until released.
type Claim struct {
	Key      slots.Key
	Units    int
	Capacity int
	TTL      time.Duration
	Owner    string
}

func (c Claim) Validate() error {
	if err := c.Key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
	if c.Units <= 0 || c.Capacity <= 0 {
		return fmt.Errorf("%w: units and capacity must be positive", ErrInvalidClaim)
	}
	if c.Key.Exclusive() && (c.Units != 1 || c.Capacity != 1) {
		return fmt.Errorf("%w: provider keys hold exactly one unit", ErrInvalidClaim)
	}
	if c.Units > c.Capacity {
		return ErrConflict
	}
	return nil
}

// Token is proof that units were reserved on a key.
type Token struct {
	ID        string
	Key       slots.Key
	Units     int
	Capacity  int
	Owner     string
	ExpiresAt time.Time
}

// Locker is the atomic reservation ledger. Acquiring is linearizable per key: of any set of
// concurrent claims that together exceed capacity, only a fitting subset succeeds.
type Locker interface {
	TryAcquire(ctx context.Context, claim Claim) (Token, error)
	// Commit clears the expiry so the hold lives until released.
	Commit(ctx context.Context, token Token) error
	// Release is idempotent.
	Release(ctx context.Context, token Token) error
	// Restore puts a released hold back, used to compensate a failed cancellation.
	Restore(ctx context.Context, token Token) error
}

// ReleaseAll releases every token and joins the failures.
func ReleaseAll(ctx context.Context, locker Locker, tokens []Token) error {
	var errs []error
	for _, tok := range tokens {
		if err := locker.Release(ctx, tok); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", tok.Key, err))
		}
	}
	return errors.Join(errs...)
}
