package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"divineconnect/internal/domain/slotlock"
)

// Each slot key is a hash of token id -> "units:expiryMs". An expiry of 0 marks a committed
// hold. Expired entries are purged by every script that reads the hash.
var acquireScript = goredis.NewScript(`
local now = tonumber(ARGV[4])
if ARGV[6] == "1" and redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return 1
end
local used = 0
local entries = redis.call('HGETALL', KEYS[1])
for i = 1, #entries, 2 do
  local units, exp = string.match(entries[i + 1], '^(%d+):(%d+)$')
  exp = tonumber(exp)
  if exp > 0 and exp <= now then
    redis.call('HDEL', KEYS[1], entries[i])
  else
    used = used + tonumber(units)
  end
end
if used + tonumber(ARGV[2]) > tonumber(ARGV[3]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2] .. ':' .. ARGV[5])
return 1
`)

var commitScript = goredis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if not v then
  return 0
end
local units, exp = string.match(v, '^(%d+):(%d+)$')
exp = tonumber(exp)
if exp > 0 and exp <= tonumber(ARGV[2]) then
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], units .. ':0')
return 1
`)

// SlotLocker keeps the slot ledger in Redis so every instance sees the same holds.
type SlotLocker struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
	newID  func() string
}

type Option func(*SlotLocker)

func WithPrefix(prefix string) Option {
	return func(l *SlotLocker) { l.prefix = prefix }
}

func WithClock(now func() time.Time) Option {
	return func(l *SlotLocker) { l.now = now }
}

func NewSlotLocker(client goredis.UniversalClient, opts ...Option) *SlotLocker {
	l := &SlotLocker{client: client, prefix: "slotlock:", now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewClient connects and pings, the same way the cache clients are initialised.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (l *SlotLocker) TryAcquire(ctx context.Context, claim slotlock.Claim) (slotlock.Token, error) {
	if err := claim.Validate(); err != nil {
		return slotlock.Token{}, err
	}
	now := l.now()
	tok := slotlock.Token{
		ID:       l.newID(),
		Key:      claim.Key,
		Units:    claim.Units,
		Capacity: claim.Capacity,
		Owner:    claim.Owner,
	}
	var expiry int64
	if claim.TTL > 0 {
		tok.ExpiresAt = now.Add(claim.TTL)
		expiry = tok.ExpiresAt.UnixMilli()
	}
	ok, err := l.reserve(ctx, tok, now, expiry, false)
	if err != nil {
		return slotlock.Token{}, err
	}
	if !ok {
		return slotlock.Token{}, slotlock.ErrConflict
	}
	return tok, nil
}

func (l *SlotLocker) Commit(ctx context.Context, token slotlock.Token) error {
	res, err := commitScript.Run(ctx, l.client, []string{l.key(token)}, token.ID, l.now().UnixMilli()).Int()
	if err != nil {
		return mapErr(err)
	}
	if res == 0 {
		return slotlock.ErrConflict
	}
	return nil
}

func (l *SlotLocker) Release(ctx context.Context, token slotlock.Token) error {
	return mapErr(l.client.HDel(ctx, l.key(token), token.ID).Err())
}

func (l *SlotLocker) Restore(ctx context.Context, token slotlock.Token) error {
	if token.Capacity <= 0 {
		token.Capacity = token.Units
	}
	ok, err := l.reserve(ctx, token, l.now(), 0, true)
	if err != nil {
		return err
	}
	if !ok {
		return slotlock.ErrConflict
	}
	return nil
}

func (l *SlotLocker) reserve(ctx context.Context, tok slotlock.Token, now time.Time, expiry int64, restore bool) (bool, error) {
	flag := "0"
	if restore {
		flag = "1"
	}
	res, err := acquireScript.Run(ctx, l.client, []string{l.key(tok)},
		tok.ID, tok.Units, tok.Capacity, now.UnixMilli(), strconv.FormatInt(expiry, 10), flag).Int()
	if err != nil {
		return false, mapErr(err)
	}
	return res == 1, nil
}

func (l *SlotLocker) key(tok slotlock.Token) string {
	return l.prefix + tok.Key.String()
}

func mapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return slotlock.ErrLockTimeout
	}
	return err
}

var _ slotlock.Locker = (*SlotLocker)(nil)
