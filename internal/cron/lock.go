package cron

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/satoshishop/backend/pkg/redis"
)

// locker is the slice of the Redis client the sweep lock uses.
type locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// Lock is a best-effort distributed lock so only one worker instance runs a
// sweep at a time. The TTL bounds how long a crashed holder can block the
// next run.
type Lock struct {
	client locker
	name   string
	owner  string
	ttl    time.Duration
}

func NewLock(client locker, name string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		name:   name,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire tries to take the lock. A false return means another holder has it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.client.LockKey(l.name), l.owner, l.ttl)
}

// Release drops the lock if this instance still owns it. A lock that expired
// and was re-acquired elsewhere is left alone.
func (l *Lock) Release(ctx context.Context) error {
	key := l.client.LockKey(l.name)
	holder, err := l.client.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil
		}
		return err
	}
	if holder != l.owner {
		return nil
	}
	return l.client.Del(ctx, key)
}
