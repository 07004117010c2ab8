// Package queue provides the dispatch queue carrying task ids from producers to the worker loop.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned once the queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue represents a FIFO of task ids.
type Queue interface {
	Put(ctx context.Context, taskId uuid.UUID) error
	Get(ctx context.Context) (uuid.UUID, error)
	Close() error
}

// Memory is an unbounded in-memory FIFO. Put never blocks, Get suspends until an id is available.
type Memory struct {
	mu     sync.Mutex
	items  []uuid.UUID
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Put appends the id to the tail of the queue.
func (q *Memory) Put(ctx context.Context, taskId uuid.UUID) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, taskId)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Get removes and returns the id at the head of the queue, waiting for one if empty.
// Ids put before Close are still handed out; after that ErrClosed is returned.
func (q *Memory) Get(ctx context.Context) (uuid.UUID, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = uuid.UUID{}
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			//wake another waiting consumer, if any.
			if remaining > 0 {
				q.signal()
			}
			return id, nil
		}

		if q.closed {
			q.mu.Unlock()
			return uuid.UUID{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return uuid.UUID{}, ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

// Len returns the number of ids waiting in the queue.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new ids and wakes every waiting consumer.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

func (q *Memory) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
		//a wake up is already pending
	}
}
