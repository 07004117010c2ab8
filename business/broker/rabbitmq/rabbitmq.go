// Package rabbitmq provides a small client over an AMQP connection.
package rabbitmq

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client represents a set of APIs we need to access when working against rabbitmq.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

// Configs represents all required configs for creating a rabbitmq client.
type Configs struct {
	Host     string
	User     string
	Password string
}

// NewClient creates a connection to rabbitmq server, retrying until ctx expires.
func NewClient(ctx context.Context, conf Configs) (*Client, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second*5)
		defer cancel()
	}

	u := url.URL{
		Scheme: "amqp",
		Host:   conf.Host,
		User:   url.UserPassword(conf.User, conf.Password),
	}

	var conn *amqp.Connection

	for attempt := 1; ; attempt++ {
		var dialErr error
		conn, dialErr = amqp.Dial(u.String())
		if dialErr == nil {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial: %w", dialErr)
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &Client{
		conn:    conn,
		channel: ch,
	}, nil
}

// Close will close the channel and the connection or returns possible errors.
func (c *Client) Close() error {
	if err := c.channel.Close(); err != nil {
		return fmt.Errorf("channel: %w", err)
	}

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	return nil
}

// DeclareQueue creates a durable queue to push messages into it.
func (c *Client) DeclareQueue(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.channel.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declareQueue: %w", err)
	}
	return nil
}

// Publish enqueues the message into the queue through the default exchange.
func (c *Client) Publish(ctx context.Context, queue string, contentType string, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.channel.PublishWithContext(
		ctx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Body:         msg,
		},
	); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Consumer returns <-chan amqp.Delivery to consume messages from or possible error.
func (c *Client) Consumer(queue string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	//limit the number of messages the broker delivers before requiring an ack.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return msgs, nil
}
