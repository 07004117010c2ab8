// Package worker provides a bounded pool of goroutines for executing tasks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrShutdown is returned by Start once Shutdown has been called.
var ErrShutdown = errors.New("shutdown signal received")

// Executer is a function that executes the task.
type Executer func(ctx context.Context)

// Worker manages the execution of tasks.
type Worker struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	sem     *semaphore.Weighted
	timeout time.Duration
	running map[string]context.CancelFunc

	// stopping is canceled when Shutdown starts, base once it gives up waiting.
	stopping   context.Context
	stop       context.CancelFunc
	base       context.Context
	cancelBase context.CancelFunc
}

// New creates a worker with max number of goroutines that can run at any given time.
// A positive taskTimeout bounds every execution.
func New(maxRunningTasks int, taskTimeout time.Duration) (*Worker, error) {
	if maxRunningTasks <= 0 {
		return nil, errors.New("max running tasks must be greater than 0")
	}

	stopping, stop := context.WithCancel(context.Background())
	base, cancelBase := context.WithCancel(context.Background())

	w := Worker{
		sem:        semaphore.NewWeighted(int64(maxRunningTasks)),
		timeout:    taskTimeout,
		running:    make(map[string]context.CancelFunc),
		stopping:   stopping,
		stop:       stop,
		base:       base,
		cancelBase: cancelBase,
	}
	return &w, nil
}

// Running returns the number of running tasks.
func (w *Worker) Running() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.running)
}

// Labels returns the labels of the running tasks, sorted.
func (w *Worker) Labels() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	labels := make([]string, 0, len(w.running))
	for label := range w.running {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// Start waits for a free slot and launches a goroutine running executer under label.
// It blocks while the pool is full, until ctx is done or Shutdown is called. The
// executer's context is independent of ctx.
func (w *Worker) Start(ctx context.Context, label string, executer Executer) error {
	if w.stopping.Err() != nil {
		return ErrShutdown
	}

	//abort waiting for a slot once shutdown starts.
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAcquire := context.AfterFunc(w.stopping, cancel)
	defer stopAcquire()

	if err := w.sem.Acquire(acquireCtx, 1); err != nil {
		if w.stopping.Err() != nil {
			return ErrShutdown
		}
		return fmt.Errorf("acquire: %w", err)
	}

	var taskCtx context.Context
	var taskCancel context.CancelFunc
	if w.timeout > 0 {
		taskCtx, taskCancel = context.WithTimeout(w.base, w.timeout)
	} else {
		taskCtx, taskCancel = context.WithCancel(w.base)
	}

	//register it under the same lock Shutdown uses, so no task slips past the wait.
	err := func() error {
		w.mu.Lock()
		defer w.mu.Unlock()

		if w.stopping.Err() != nil {
			return ErrShutdown
		}

		if _, exists := w.running[label]; exists {
			return fmt.Errorf("task %q is already running", label)
		}

		w.running[label] = taskCancel
		w.wg.Add(1)
		return nil
	}()
	if err != nil {
		taskCancel()
		w.sem.Release(1)
		return err
	}

	go func() {
		//separate defer for this, in case of panic in other one, allows other goroutines to execute tasks
		defer w.sem.Release(1)

		//clean up
		defer func() {
			taskCancel()

			func() {
				w.mu.Lock()
				defer w.mu.Unlock()
				delete(w.running, label)
			}()

			w.wg.Done()
		}()

		executer(taskCtx)
	}()

	return nil
}

// Stop cancels the running task with the given label.
func (w *Worker) Stop(label string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	cancel, ok := w.running[label]
	if !ok {
		return fmt.Errorf("task %q not found", label)
	}

	cancel()
	return nil
}

// Shutdown stops accepting tasks and waits for the running ones to finish. When ctx
// is done first, every remaining task is canceled and an error naming them is returned.
func (w *Worker) Shutdown(ctx context.Context) error {
	func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.stop()
	}()

	done := make(chan struct{})

	// a goroutine responsible for waiting till all tasks terminate
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancelBase()
		return nil

	case <-ctx.Done():
		//not enough time for clean shutdown
		abandoned := w.Labels()
		w.cancelBase()

		if len(abandoned) == 0 {
			return nil
		}
		return fmt.Errorf("%w: abandoned %d task(s): %s", ctx.Err(), len(abandoned), strings.Join(abandoned, ", "))
	}
}
