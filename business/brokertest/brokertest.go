// Package brokertest provides setup and clean up for testing rabbitmq.
package brokertest

import (
	"context"
	"testing"
	"time"

	"github.com/hamidoujand/postgres-agent/business/broker/rabbitmq"
	"github.com/hamidoujand/postgres-agent/foundation/docker/dockertest"
)

// NewTestClient starts a rabbitmq container and returns a client connected to it.
// The test is skipped when no docker daemon is reachable.
func NewTestClient(t *testing.T, ctx context.Context, containerName string) *rabbitmq.Client {
	t.Helper()

	image := "rabbitmq:3.13.6"

	c := dockertest.StartContainer(t, image, containerName, 5672, nil)

	//slow machine
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Minute*2)
		defer cancel()
	}

	//check conn
	client, err := rabbitmq.NewClient(ctx, rabbitmq.Configs{
		Host:     c.HostPort,
		User:     "guest",
		Password: "guest",
	})
	if err != nil {
		t.Fatalf("expected to create a rabbitmq client: %s", err)
	}

	t.Cleanup(func() {
		//the queue under test may already have closed it.
		_ = client.Close()
	})
	return client
}
