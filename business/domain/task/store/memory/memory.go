// Package memory provides the in-memory task registry.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
)

// Repository represents an in-memory registry keeping tasks in insertion order.
// Records are never evicted.
type Repository struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]task.Task
	order []uuid.UUID
}

// NewRepository creates an empty registry.
func NewRepository() *Repository {
	return &Repository{
		tasks: make(map[uuid.UUID]task.Task),
	}
}

// Create is going to add a new task into repo or return error.
func (r *Repository) Create(ctx context.Context, tsk task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[tsk.Id]; exists {
		return fmt.Errorf("create %s: %w", tsk.Id, task.ErrDuplicateId)
	}

	r.tasks[tsk.Id] = tsk
	r.order = append(r.order, tsk.Id)
	return nil
}

// Update applies fn to a copy of the task and commits the copy only when fn succeeds,
// so a rejected transition leaves the stored record untouched.
func (r *Repository) Update(ctx context.Context, taskId uuid.UUID, fn func(*task.Task) error) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tsk, ok := r.tasks[taskId]
	if !ok {
		return task.Task{}, task.ErrTaskNotFound
	}

	if err := fn(&tsk); err != nil {
		return task.Task{}, err
	}

	r.tasks[taskId] = tsk
	return tsk, nil
}

// GetById is going to get a task by id or return "task.ErrTaskNotFound".
func (r *Repository) GetById(ctx context.Context, taskId uuid.UUID) (task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tsk, ok := r.tasks[taskId]
	if !ok {
		return task.Task{}, task.ErrTaskNotFound
	}
	return tsk, nil
}

// Query returns a snapshot of all tasks in insertion order.
func (r *Repository) Query(ctx context.Context) ([]task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]task.Task, 0, len(r.order))
	for _, id := range r.order {
		results = append(results, r.tasks[id])
	}
	return results, nil
}

// Len returns the number of tasks held.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
