package rabbitmq_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/business/brokertest"
	"github.com/hamidoujand/postgres-agent/business/queue"
	"github.com/hamidoujand/postgres-agent/business/queue/rabbitmq"
)

func TestQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*2)
	defer cancel()

	client := brokertest.NewTestClient(t, ctx, "test_rabbitmqQueue")

	q, err := rabbitmq.New(client, "dispatch_test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("expected to create the queue: %s", err)
	}

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if err := q.Put(ctx, id); err != nil {
			t.Fatalf("expected to put %s: %s", id, err)
		}
	}

	//malformed messages are skipped.
	if err := client.Publish(ctx, "dispatch_test", "text/plain", []byte("garbage")); err != nil {
		t.Fatalf("expected to publish: %s", err)
	}

	last := uuid.New()
	if err := q.Put(ctx, last); err != nil {
		t.Fatalf("expected to put %s: %s", last, err)
	}

	for _, want := range append(ids, last) {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("expected to get an id: %s", err)
		}

		if got != want {
			t.Errorf("expected id %s, but got %s", want, got)
		}
	}

	if err := q.Close(); err != nil {
		t.Fatalf("expected to close the queue: %s", err)
	}

	if _, err := q.Get(ctx); !errors.Is(err, queue.ErrClosed) {
		t.Errorf("expected error %v after close, but got %v", queue.ErrClosed, err)
	}
}
