package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"divineconnect/internal/app/apperr"
	"divineconnect/internal/app/commands"
)

// IdempotentCommand is a command whose successful result may be replayed for a repeated key.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	// ResultPrototype returns a pointer the stored result decodes into.
	ResultPrototype() any
}

// IdempotencyRecord is the stored outcome of one keyed command.
type IdempotencyRecord struct {
	Key         string
	Fingerprint string
	Result      []byte
	StoredAt    time.Time
}

// Expired reports whether the record is older than ttl. A zero ttl never expires.
func (r IdempotencyRecord) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(r.StoredAt) > ttl
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONResultCodec) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }

var (
	errMissingPrototype = errors.New("middleware: idempotent command has no result prototype")
	// ErrKeyReused is returned when a key comes back with a different request body.
	ErrKeyReused = errors.New("idempotency key was already used for a different request")
)

// Idempotency replays the stored result of a keyed command. Only successes are stored,
// so a failed create can be retried with the same key.
func Idempotency(store IdempotencyStore, codec ResultCodec, logger *slog.Logger) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			keyed, ok := cmd.(IdempotentCommand)
			if !ok || keyed.IdempotencyKey() == "" {
				return nextFn(ctx, cmd)
			}
			key := keyed.IdempotencyKey()
			fingerprint, err := fingerprintOf(codec, cmd)
			if err != nil {
				return nil, err
			}

			stored, found, err := store.Get(ctx, key)
			if err != nil {
				return nil, apperr.Persistence(fmt.Errorf("idempotency lookup %s: %w", key, err))
			}
			if found {
				return replay(codec, keyed, stored, fingerprint)
			}

			result, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			rec := IdempotencyRecord{Key: key, Fingerprint: fingerprint, StoredAt: time.Now().UTC()}
			if result != nil {
				if rec.Result, err = codec.Encode(result); err != nil {
					return nil, err
				}
			}
			// the command already committed; a lost record only costs a duplicate on retry
			if serr := store.Save(ctx, rec); serr != nil {
				logger.ErrorContext(ctx, "idempotency record not saved", "command", cmd.Key(), "idempotency_key", key, "error", serr)
			}
			return result, nil
		})
	}
}

func replay(codec ResultCodec, cmd IdempotentCommand, rec IdempotencyRecord, fingerprint string) (any, error) {
	if rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		return nil, apperr.New(apperr.CodeValidation, ErrKeyReused.Error(), ErrKeyReused)
	}
	out := cmd.ResultPrototype()
	if out == nil {
		return nil, errMissingPrototype
	}
	if len(rec.Result) > 0 {
		if err := codec.Decode(rec.Result, out); err != nil {
			return nil, fmt.Errorf("middleware: decode stored result for %s: %w", rec.Key, err)
		}
	}
	return out, nil
}

func fingerprintOf(codec ResultCodec, cmd commands.Command) (string, error) {
	raw, err := codec.Encode(cmd)
	if err != nil {
		return "", fmt.Errorf("middleware: fingerprint %s: %w", cmd.Key(), err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
