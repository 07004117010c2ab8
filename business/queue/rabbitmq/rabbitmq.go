// Package rabbitmq provides a dispatch queue backed by a rabbitmq queue.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/business/broker/rabbitmq"
	"github.com/hamidoujand/postgres-agent/business/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

const contentType = "text/plain"

// Queue carries task ids through a rabbitmq queue. Ids outlive the process while the
// task registry does not, so the worker loop must tolerate ids it cannot find.
type Queue struct {
	client     *rabbitmq.Client
	name       string
	deliveries <-chan amqp.Delivery
	logger     *slog.Logger
}

// New declares the queue and starts consuming from it.
func New(client *rabbitmq.Client, name string, logger *slog.Logger) (*Queue, error) {
	if err := client.DeclareQueue(name); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	deliveries, err := client.Consumer(name)
	if err != nil {
		return nil, fmt.Errorf("consumer: %w", err)
	}

	return &Queue{
		client:     client,
		name:       name,
		deliveries: deliveries,
		logger:     logger,
	}, nil
}

// Put publishes the task id.
func (q *Queue) Put(ctx context.Context, taskId uuid.UUID) error {
	if err := q.client.Publish(ctx, q.name, contentType, []byte(taskId.String())); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Get waits for the next delivery, acks it and returns the task id it carries.
// Malformed messages are dropped.
func (q *Queue) Get(ctx context.Context) (uuid.UUID, error) {
	for {
		select {
		case <-ctx.Done():
			return uuid.UUID{}, ctx.Err()

		case msg, ok := <-q.deliveries:
			if !ok {
				return uuid.UUID{}, queue.ErrClosed
			}

			if err := msg.Ack(false); err != nil {
				q.logger.Error("dispatch queue", "status", "failed to ack the message", "msg", err.Error())
				continue
			}

			taskId, err := uuid.ParseBytes(msg.Body)
			if err != nil {
				q.logger.Error("dispatch queue", "status", "dropping malformed message", "body", string(msg.Body), "msg", err.Error())
				continue
			}
			return taskId, nil
		}
	}
}

// Close closes the underlying client, which ends the delivery channel.
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close client: %w", err)
	}
	return nil
}
