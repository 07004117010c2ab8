// Package task provides the task record, its lifecycle and the APIs to submit and query tasks.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrDuplicateId  = errors.New("task id already exists")
)

// store represents the decoupled registry to interact with.
type store interface {
	Create(ctx context.Context, task Task) error
	Update(ctx context.Context, taskId uuid.UUID, fn func(*Task) error) (Task, error)
	GetById(ctx context.Context, taskId uuid.UUID) (Task, error)
	Query(ctx context.Context) ([]Task, error)
}

// enqueuer represents the producer side of the dispatch queue.
type enqueuer interface {
	Put(ctx context.Context, taskId uuid.UUID) error
}

// Service represents set of APIs for accessing tasks.
type Service struct {
	store store
	queue enqueuer
	now   func() time.Time
}

// NewService creates *Service and returns it.
func NewService(store store, queue enqueuer) *Service {
	return &Service{
		store: store,
		queue: queue,
		now:   time.Now,
	}
}

// Submit records a new task for the input and hands its id to the dispatch queue.
// The task is in the registry before the id is enqueued.
func (s *Service) Submit(ctx context.Context, in Input) (Task, error) {
	if in == nil {
		return Task{}, errors.New("task input is required")
	}

	tsk := NewTask(in, s.now())

	if err := s.store.Create(ctx, tsk); err != nil {
		return Task{}, fmt.Errorf("task creation: %w", err)
	}

	if err := s.queue.Put(ctx, tsk.Id); err != nil {
		return Task{}, fmt.Errorf("enqueue: %w", err)
	}

	return tsk, nil
}

// GetTaskById returns a snapshot of the task with the given id.
func (s *Service) GetTaskById(ctx context.Context, taskId uuid.UUID) (Task, error) {
	tsk, err := s.store.GetById(ctx, taskId)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("get task by id: %w", err)
	}
	return tsk, nil
}

// QueryTasks returns snapshots of the tasks passing filter, in submission order.
func (s *Service) QueryTasks(ctx context.Context, filter QueryFilter) ([]Task, error) {
	tasks, err := s.store.Query(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	results := make([]Task, 0, len(tasks))
	for _, tsk := range tasks {
		if filter.Match(tsk) {
			results = append(results, tsk)
		}
	}
	return results, nil
}

// MarkRunning moves the task to running and stamps its start time.
func (s *Service) MarkRunning(ctx context.Context, taskId uuid.UUID) (Task, error) {
	return s.transition(ctx, taskId, func(t *Task) error {
		return t.Start(s.now())
	})
}

// MarkCompleted stores the result and moves the task to completed.
func (s *Service) MarkCompleted(ctx context.Context, taskId uuid.UUID, result Result) (Task, error) {
	return s.transition(ctx, taskId, func(t *Task) error {
		return t.Complete(s.now(), result)
	})
}

// MarkFailed stores the diagnostic and moves the task to failed.
func (s *Service) MarkFailed(ctx context.Context, taskId uuid.UUID, errMessage string) (Task, error) {
	return s.transition(ctx, taskId, func(t *Task) error {
		return t.Fail(s.now(), errMessage)
	})
}

func (s *Service) transition(ctx context.Context, taskId uuid.UUID, fn func(*Task) error) (Task, error) {
	tsk, err := s.store.Update(ctx, taskId, fn)
	if err != nil {
		return Task{}, fmt.Errorf("update task %s: %w", taskId, err)
	}
	return tsk, nil
}
