package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseIfMatch deletes the lock only when it still holds our token, so a
// holder whose lease expired cannot release a lock re-acquired by another.
const releaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// Redis is a Locker backed by a single Redis instance using SET NX PX
// leases. Suitable for serializing webhook processing across multiple
// API replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedis creates a Redis locker. ttl bounds how long a crashed holder can
// block other workers.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		prefix: prefix,
	}
}

// WithLock polls SET NX until the lease is acquired or ctx is done, runs fn,
// then releases the lease if it is still ours.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := r.prefix + ":" + key
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ErrNotAcquired
		case <-time.After(r.retry):
		}
	}

	defer func() {
		// Best-effort release on a fresh context: the caller's ctx may
		// already be cancelled, and the TTL backstops a failed DEL.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.client.Eval(releaseCtx, releaseIfMatch, []string{lockKey}, token)
	}()

	return fn(ctx)
}
