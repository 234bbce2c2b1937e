// Package lease serializes work on one upload session.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lease not acquired")

const retryDelay = 50 * time.Millisecond

type Release func() error

// Locker grants exclusive access to a named resource, waiting up to wait.
type Locker interface {
	Acquire(ctx context.Context, name string, wait time.Duration) (Release, error)
}

type fileLocker struct{}

// NewFileLocker locks files on the local disk. name is the lock file path.
func NewFileLocker() Locker {
	return fileLocker{}
}

func (fileLocker) Acquire(ctx context.Context, name string, wait time.Duration) (Release, error) {
	lock := flock.New(name)

	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, retryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !locked {
		return nil, ErrNotAcquired
	}
	return lock.Unlock, nil
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker holds leases as redis keys with an expiry so a crashed
// holder cannot block a session forever.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &redisLocker{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *redisLocker) Acquire(ctx context.Context, name string, wait time.Duration) (Release, error) {
	key := "lease:" + name
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lease %s: %w", name, err)
		}
		if ok {
			return func() error {
				return releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}
