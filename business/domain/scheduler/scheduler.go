// Package scheduler drains the dispatch queue and runs the flow of every task it receives.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/business/flow"
	"github.com/hamidoujand/postgres-agent/business/lock"
	"github.com/hamidoujand/postgres-agent/business/queue"
	"github.com/hamidoujand/postgres-agent/business/worker"
	"github.com/hamidoujand/postgres-agent/foundation/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dequeuer represents the consumer side of the dispatch queue.
type dequeuer interface {
	Get(ctx context.Context) (uuid.UUID, error)
}

// Scheduler represents the worker loop and the executor of tasks.
type Scheduler struct {
	queue       dequeuer
	taskService *task.Service
	flows       *flow.Registry
	runtime     flow.Runtime
	locker      lock.Locker
	worker      *worker.Worker
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Config represents all of required configuration to create a scheduler.
type Config struct {
	Logger          *slog.Logger
	Queue           dequeuer
	TaskService     *task.Service
	Flows           *flow.Registry
	Runtime         flow.Runtime
	Locker          lock.Locker
	MaxRunningTasks int
	TaskTimeout     time.Duration
}

// New creates a scheduler. A nil Locker defaults to an in-process one.
func New(conf Config) (*Scheduler, error) {
	if conf.Queue == nil || conf.TaskService == nil || conf.Flows == nil || conf.Runtime == nil || conf.Logger == nil {
		return nil, errors.New("logger, queue, task service, flows and runtime are required")
	}

	worker, err := worker.New(conf.MaxRunningTasks, conf.TaskTimeout)
	if err != nil {
		return nil, fmt.Errorf("new worker: %w", err)
	}

	locker := conf.Locker
	if locker == nil {
		locker = lock.NewMemory()
	}

	return &Scheduler{
		queue:       conf.Queue,
		taskService: conf.TaskService,
		flows:       conf.Flows,
		runtime:     conf.Runtime,
		locker:      locker,
		worker:      worker,
		logger:      conf.Logger,
		tracer:      otel.Tracer("scheduler"),
	}, nil
}

// Run takes ids off the queue and hands each task to the worker pool, returning
// once ctx is canceled or the queue is closed. It waits only while the pool is full,
// never for a task to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler", "status", "started")
	defer s.logger.Info("scheduler", "status", "stopped")

	for {
		taskId, err := s.queue.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}

		tsk, err := s.taskService.GetTaskById(ctx, taskId)
		if err != nil {
			if errors.Is(err, task.ErrTaskNotFound) {
				telemetry.TasksOrphaned.Inc()
				s.logger.Warn("scheduler", "status", "orphaned task id", "taskId", taskId)
				continue
			}
			s.logger.Error("scheduler", "status", "failed to get task", "taskId", taskId, "msg", err.Error())
			continue
		}

		executer := func(ctx context.Context) {
			s.execute(ctx, tsk)
		}

		if err := s.worker.Start(ctx, tsk.Id.String(), executer); err != nil {
			if errors.Is(err, worker.ErrShutdown) || ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduler", "status", "failed to start task", "taskId", tsk.Id, "msg", err.Error())
		}
	}
}

// Running returns the number of tasks being executed.
func (s *Scheduler) Running() int {
	return s.worker.Running()
}

// Shutdown stops taking tasks and waits for the running ones. Tasks still running
// when ctx is done are canceled and end up failed.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if err := s.worker.Shutdown(ctx); err != nil {
		return fmt.Errorf("worker shutdown: %w", err)
	}
	return nil
}

// execute drives one task through its lifecycle. Every flow error or panic ends in
// the task being marked failed, nothing escapes to the caller.
func (s *Scheduler) execute(ctx context.Context, tsk task.Task) {
	log := s.logger.With("taskId", tsk.Id, "taskType", tsk.Type)

	f, err := s.flows.Lookup(tsk.Type)
	if err != nil {
		telemetry.TasksUnroutable.WithLabelValues(tsk.Type.String()).Inc()
		log.Warn("execute", "status", "task left as new", "msg", err.Error())
		return
	}

	ctx, span := s.tracer.Start(ctx, "scheduler.execute", trace.WithAttributes(
		attribute.String("task.id", tsk.Id.String()),
		attribute.String("task.type", tsk.Type.String()),
		attribute.String("task.resource", f.Resource()),
	))
	defer span.End()

	//records must be written even when the task context has been canceled.
	recordCtx := context.WithoutCancel(ctx)

	running, err := s.taskService.MarkRunning(recordCtx, tsk.Id)
	if err != nil {
		span.RecordError(err)
		log.Error("execute", "status", "failed to mark task running", "msg", err.Error())
		return
	}

	typ := tsk.Type.String()
	telemetry.TasksInFlight.WithLabelValues(typ).Inc()
	defer telemetry.TasksInFlight.WithLabelValues(typ).Dec()

	log.Info("execute", "status", "running")
	start := time.Now()

	result, err := s.run(ctx, f, running)

	telemetry.TaskDurationSeconds.WithLabelValues(typ).Observe(time.Since(start).Seconds())

	if err == nil {
		if _, err = s.taskService.MarkCompleted(recordCtx, tsk.Id, result); err == nil {
			telemetry.TasksProcessed.WithLabelValues(typ, task.StatusCompleted.String()).Inc()
			log.Info("execute", "status", "completed")
			return
		}
		err = fmt.Errorf("record result: %w", err)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "task failed")

	if _, markErr := s.taskService.MarkFailed(recordCtx, tsk.Id, diagnose(err)); markErr != nil {
		log.Error("execute", "status", "failed to mark task failed", "msg", markErr.Error())
		return
	}

	telemetry.TasksProcessed.WithLabelValues(typ, task.StatusFailed.String()).Inc()
	log.Error("execute", "status", "failed", "msg", err.Error())
}

// run runs the flow while holding the lock on its resource.
func (s *Scheduler) run(ctx context.Context, f flow.Flow, tsk task.Task) (result task.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()

	release, err := s.locker.Lock(ctx, f.Resource())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", f.Resource(), err)
	}

	defer func() {
		if err := release(); err != nil {
			s.logger.Error("execute", "status", "failed to release lock", "resource", f.Resource(), "msg", err.Error())
		}
	}()

	return f.Run(ctx, flow.Context{Task: tsk, Runtime: s.runtime})
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("PANIC[%v]", p.value)
}

// diagnose renders the error stored on a failed task. Panics carry their stack.
func diagnose(err error) string {
	var p *panicError
	if errors.As(err, &p) {
		return fmt.Sprintf("PANIC[%v] STACK[%s]", p.value, p.stack)
	}
	return err.Error()
}
