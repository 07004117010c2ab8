// Package redistest provides setup and clean up for testing redis clients.
package redistest

import (
	"context"
	"testing"
	"time"

	"github.com/hamidoujand/postgres-agent/foundation/docker/dockertest"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient starts a redis container and returns a client connected to it.
// The test is skipped when no docker daemon is reachable.
func NewRedisClient(t *testing.T, ctx context.Context, name string) *redis.Client {
	t.Helper()

	// setup
	c := dockertest.StartContainer(t, "redis:latest", name, 6379, nil)

	client := redis.NewClient(&redis.Options{
		Addr:     c.HostPort,
		Password: "",
		DB:       0,
	})

	//retries
	//slow machine
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Minute*2)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		pingErr := client.Ping(ctx).Err()
		if pingErr == nil {
			break
		}
		time.Sleep(time.Millisecond * 100 * time.Duration(attempt))
		if ctx.Err() != nil {
			t.Fatalf("expected to ping redis: %s", pingErr)
		}
	}

	//teardown
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("failed to close redis client: %s", err)
		}
	})

	return client
}
