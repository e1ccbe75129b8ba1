package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/domain/slotlock"
	"divineconnect/internal/domain/slots"
)

func providerClaim(ttl time.Duration) slotlock.Claim {
	return slotlock.Claim{Key: slots.ProviderKey("p1", "2025-03-10", "6:00 AM"), Units: 1, Capacity: 1, TTL: ttl}
}

func TestSlotLockerExactlyOneWinner(t *testing.T) {
	locker := NewSlotLocker()
	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := locker.TryAcquire(context.Background(), providerClaim(time.Minute))
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case assert.ErrorIs(t, err, slotlock.ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, 31, conflicts)
}

func TestSlotLockerCapacityBound(t *testing.T) {
	locker := NewSlotLocker()
	key := slots.CapacityKey("room-deluxe", "2025-03-10")
	ctx := context.Background()

	_, err := locker.TryAcquire(ctx, slotlock.Claim{Key: key, Units: 2, Capacity: 3})
	require.NoError(t, err)
	_, err = locker.TryAcquire(ctx, slotlock.Claim{Key: key, Units: 2, Capacity: 3})
	assert.ErrorIs(t, err, slotlock.ErrConflict)
	tok, err := locker.TryAcquire(ctx, slotlock.Claim{Key: key, Units: 1, Capacity: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, locker.Used(key.String()))

	require.NoError(t, locker.Release(ctx, tok))
	require.NoError(t, locker.Release(ctx, tok))
	assert.Equal(t, 2, locker.Used(key.String()))
}

func TestSlotLockerDraftExpires(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	locker := NewSlotLocker().WithClock(func() time.Time { return now })
	ctx := context.Background()

	tok, err := locker.TryAcquire(ctx, providerClaim(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), tok.ExpiresAt)

	now = now.Add(11 * time.Minute)
	assert.ErrorIs(t, locker.Commit(ctx, tok), slotlock.ErrConflict)
	_, err = locker.TryAcquire(ctx, providerClaim(10*time.Minute))
	assert.NoError(t, err)
}

func TestSlotLockerCommitKeepsHold(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	locker := NewSlotLocker().WithClock(func() time.Time { return now })
	ctx := context.Background()

	tok, err := locker.TryAcquire(ctx, providerClaim(time.Minute))
	require.NoError(t, err)
	require.NoError(t, locker.Commit(ctx, tok))

	now = now.Add(time.Hour)
	_, err = locker.TryAcquire(ctx, providerClaim(time.Minute))
	assert.ErrorIs(t, err, slotlock.ErrConflict)
}

func TestSlotLockerRestore(t *testing.T) {
	locker := NewSlotLocker()
	ctx := context.Background()
	tok, err := locker.TryAcquire(ctx, providerClaim(0))
	require.NoError(t, err)
	require.NoError(t, locker.Release(ctx, tok))

	require.NoError(t, locker.Restore(ctx, tok))
	require.NoError(t, locker.Restore(ctx, tok))
	assert.Equal(t, 1, locker.Used(tok.Key.String()))

	require.NoError(t, locker.Release(ctx, tok))
	_, err = locker.TryAcquire(ctx, providerClaim(0))
	require.NoError(t, err)
	assert.ErrorIs(t, locker.Restore(ctx, tok), slotlock.ErrConflict)
}

func TestSlotLockerExpiredContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	_, err := NewSlotLocker().TryAcquire(ctx, providerClaim(0))
	assert.ErrorIs(t, err, slotlock.ErrLockTimeout)
}
