package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const minRenewInterval = 10 * time.Millisecond

// renewInterval spaces renewals so two can fail before the lease lapses.
func renewInterval(ttl time.Duration) time.Duration {
	return max(ttl/3, minRenewInterval)
}

// ErrLockKeyRequired indicates a Locker without a key.
var ErrLockKeyRequired = errors.New("lock key is required")

// Locker takes a single named lease with SET NX PX and keeps it alive while
// held.
type Locker struct {
	client     redis.Cmdable
	key        string
	ttl        time.Duration
	renewEvery time.Duration
}

// NewLocker builds a lease on key that expires after ttl unless released.
func NewLocker(client redis.Cmdable, key string, ttl time.Duration) (*Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrLockKeyRequired
	}
	if ttl < time.Millisecond {
		return nil, fmt.Errorf("lock ttl must be at least 1ms")
	}
	return &Locker{client: client, key: key, ttl: ttl, renewEvery: renewInterval(ttl)}, nil
}

// Acquire tries to take the lease once. ok is false when another holder owns
// it. While held, the lease is extended every third of its ttl until release
// is called or the token is found replaced. release stops the renewal, gives
// the lease back and is safe to call more than once or after expiry.
func (l *Locker) Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.renew(renewCtx, token)
	}()

	var once sync.Once
	release = func(ctx context.Context) error {
		var err error
		once.Do(func() {
			stop()
			<-done
			if runErr := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); runErr != nil {
				err = fmt.Errorf("release lock %s: %w", l.key, runErr)
			}
		})
		return err
	}
	return release, true, nil
}

// renew extends the lease until ctx ends or the key no longer holds token.
// A failed call is retried on the next beat.
func (l *Locker) renew(ctx context.Context, token string) {
	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		callCtx, cancel := context.WithTimeout(ctx, l.renewEvery)
		extended, err := renewScript.Run(callCtx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err == nil && extended == 0 {
			return
		}
	}
}
