package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"divineconnect/internal/domain/slotlock"
)

// SlotLocker is a process-local slot ledger. All keys share one mutex, which keeps every
// check-and-reserve atomic.
type SlotLocker struct {
	mu     sync.Mutex
	ledger map[string]map[string]hold
	now    func() time.Time
	newID  func() string
}

type hold struct {
	units     int
	expiresAt time.Time
}

func NewSlotLocker() *SlotLocker {
	return &SlotLocker{
		ledger: make(map[string]map[string]hold),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithClock replaces the time source, used by tests to move past draft TTLs.
func (l *SlotLocker) WithClock(now func() time.Time) *SlotLocker {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

func (l *SlotLocker) TryAcquire(ctx context.Context, claim slotlock.Claim) (slotlock.Token, error) {
	if err := claim.Validate(); err != nil {
		return slotlock.Token{}, err
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return slotlock.Token{}, slotlock.ErrLockTimeout
		}
		return slotlock.Token{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	key := claim.Key.String()
	holds := l.purge(key, now)
	if used(holds)+claim.Units > claim.Capacity {
		return slotlock.Token{}, slotlock.ErrConflict
	}
	tok := slotlock.Token{
		ID:       l.newID(),
		Key:      claim.Key,
		Units:    claim.Units,
		Capacity: claim.Capacity,
		Owner:    claim.Owner,
	}
	h := hold{units: claim.Units}
	if claim.TTL > 0 {
		h.expiresAt = now.Add(claim.TTL)
		tok.ExpiresAt = h.expiresAt
	}
	if holds == nil {
		holds = make(map[string]hold)
		l.ledger[key] = holds
	}
	holds[tok.ID] = h
	return tok, nil
}

// Commit fails with ErrConflict when the hold already expired.
func (l *SlotLocker) Commit(ctx context.Context, token slotlock.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	holds := l.purge(token.Key.String(), l.now())
	h, ok := holds[token.ID]
	if !ok {
		return slotlock.ErrConflict
	}
	h.expiresAt = time.Time{}
	holds[token.ID] = h
	return nil
}

func (l *SlotLocker) Release(ctx context.Context, token slotlock.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := token.Key.String()
	if holds, ok := l.ledger[key]; ok {
		delete(holds, token.ID)
		if len(holds) == 0 {
			delete(l.ledger, key)
		}
	}
	return nil
}

func (l *SlotLocker) Restore(ctx context.Context, token slotlock.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := token.Key.String()
	holds := l.purge(key, l.now())
	if _, ok := holds[token.ID]; ok {
		return nil
	}
	capacity := token.Capacity
	if capacity <= 0 {
		capacity = token.Units
	}
	if used(holds)+token.Units > capacity {
		return slotlock.ErrConflict
	}
	if holds == nil {
		holds = make(map[string]hold)
		l.ledger[key] = holds
	}
	holds[token.ID] = hold{units: token.Units}
	return nil
}

// Used reports the units currently held on key.
func (l *SlotLocker) Used(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return used(l.purge(key, l.now()))
}

func (l *SlotLocker) purge(key string, now time.Time) map[string]hold {
	holds, ok := l.ledger[key]
	if !ok {
		return nil
	}
	for id, h := range holds {
		if !h.expiresAt.IsZero() && !now.Before(h.expiresAt) {
			delete(holds, id)
		}
	}
	if len(holds) == 0 {
		delete(l.ledger, key)
		return nil
	}
	return holds
}

func used(holds map[string]hold) int {
	total := 0
	for _, h := range holds {
		total += h.units
	}
	return total
}

var _ slotlock.Locker = (*SlotLocker)(nil)
