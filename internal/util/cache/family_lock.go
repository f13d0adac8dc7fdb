package cache_utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const (
	DefaultLockTTL        = 30 * time.Second
	DefaultLockRetryDelay = 25 * time.Millisecond
	DefaultLockTimeout    = 10 * time.Second

	lockKeyPrefix = "entries:family_lock:"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseLuaScript deletes the lock only if it is still held by the caller's token
const releaseLuaScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// FamilyLock is a Valkey mutex keyed by exception family hash. It lets
// several processes store exceptions of the same family without racing on
// the occurrence count.
type FamilyLock struct {
	client     valkey.Client
	logger     *slog.Logger
	ttl        time.Duration
	retryDelay time.Duration
	timeout    time.Duration
}

func NewFamilyLock(client valkey.Client, logger *slog.Logger) *FamilyLock {
	return &FamilyLock{
		client:     client,
		logger:     logger,
		ttl:        DefaultLockTTL,
		retryDelay: DefaultLockRetryDelay,
		timeout:    DefaultLockTimeout,
	}
}

// Lock blocks until the family lock is acquired, ctx is done or the lock
// timeout passes. The TTL bounds how long a crashed holder blocks others.
func (l *FamilyLock) Lock(ctx context.Context, familyHash string) (func(), error) {
	key := lockKeyPrefix + familyHash
	token := uuid.New().String()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	for {
		result := l.client.Do(ctx, l.client.B().Set().
			Key(key).
			Value(token).
			Nx().
			PxMilliseconds(l.ttl.Milliseconds()).
			Build())

		err := result.Error()
		if err == nil {
			return func() { l.release(key, token) }, nil
		}
		if !valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *FamilyLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCacheTimeout)
	defer cancel()

	result := l.client.Do(ctx, l.client.B().Eval().
		Script(releaseLuaScript).
		Numkeys(1).
		Key(key).
		Arg(token).
		Build())

	if err := result.Error(); err != nil {
		l.logger.Warn("failed to release family lock",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
