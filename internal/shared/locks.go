package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process owns the run lock.
var ErrLockHeld = Conflict("run lock held by another worker")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RunLockKey builds redis keys for scheduled critical sections.
func RunLockKey(name string) string {
	return fmt.Sprintf("treasury:run:%s:lock", name)
}

// RunLock is a redis lease that keeps overlapping scheduled runs apart.
type RunLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRunLock constructs a RunLock. A nil client yields a lock that always succeeds.
func NewRunLock(client redis.UniversalClient, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the named lease and returns its release func.
func (l *RunLock) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if l == nil || l.client == nil {
		return noop, nil
	}
	if name == "" {
		return nil, errors.New("run lock: name required")
	}
	key := RunLockKey(name)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("run lock: acquire %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
