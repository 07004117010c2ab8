// Package redis provides a Locker shared by every agent pointed at the same redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/business/lock"
	"github.com/redis/go-redis/v9"
)

const prefix = "locks:"

var (
	refreshScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)

	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
)

// Locker holds locks as redis keys owning a random token. Held keys are kept alive
// until released, an abandoned key expires after ttl.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// NewLocker creates a Locker. A ttl of 0 defaults to 30 seconds.
func NewLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Locker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

// Lock implements lock.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (lock.ReleaseFunc, error) {
	key = prefix + key
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", key, err)
		}

		if ok {
			break
		}

		//backoff, capped at one second.
		wait := min(l.retry*time.Duration(attempt), time.Second)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		l.refresh(refreshCtx, key, token)
	}()

	var once sync.Once
	var releaseErr error

	release := func() error {
		once.Do(func() {
			cancel()
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				releaseErr = fmt.Errorf("release %s: %w", key, err)
			}
		})
		return releaseErr
	}

	return release, nil
}

func (l *Locker) refresh(ctx context.Context, key string, token string) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			n, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("lock refresh", "key", key, "msg", err.Error())
				continue
			}

			if n == 0 {
				l.logger.Warn("lock refresh", "key", key, "status", "lock lost")
				return
			}
		}
	}
}
