package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock errors
var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Lock is a held lease on a key. Only the holder's token can release it.
type Lock struct {
	client *Client
	key    string
	token  string
}

// Locker hands out SET NX leases so only one replica runs a periodic job at a time.
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a new Locker
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "bellflower:lock:"
	}
	return &Locker{client: client, keyPrefix: keyPrefix}
}

// Acquire attempts to acquire a lock, failing with ErrLockNotAcquired when it is held
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := l.keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)
	return &Lock{client: l.client, key: lockKey, token: token}, nil
}

// Release releases the lock if this holder still owns it
func (lock *Lock) Release(ctx context.Context) error {
	released, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if released == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// WithLock runs fn while holding key. ErrLockNotAcquired means another holder has it.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			l.client.logger.WithContext(ctx).WithError(err).Warnf("failed to release lock %s", lock.key)
		}
	}()

	return fn(ctx)
}
