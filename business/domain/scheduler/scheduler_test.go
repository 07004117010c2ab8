package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/business/domain/postgres"
	"github.com/hamidoujand/postgres-agent/business/domain/scheduler"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/business/domain/task/store/memory"
	"github.com/hamidoujand/postgres-agent/business/flow"
	"github.com/hamidoujand/postgres-agent/business/flow/flowtest"
	"github.com/hamidoujand/postgres-agent/business/queue"
	"github.com/hamidoujand/postgres-agent/foundation/logger"
)

func TestInstallCompletes(t *testing.T) {
	setups := setupTest(t, nil)

	tsk, err := setups.taskService.Submit(context.Background(), task.InstallPostgres{Version: "16", Port: 5433})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	done := waitForStatus(t, setups.taskService, tsk.Id, task.StatusCompleted, task.StatusFailed)
	if done.Status != task.StatusCompleted {
		t.Fatalf("expected status %s, but got %s: %s", task.StatusCompleted, done.Status, done.ErrMessage)
	}

	result, ok := done.Result.(task.InstallPostgresResult)
	if !ok {
		t.Fatalf("expected result %T, but got %T", task.InstallPostgresResult{}, done.Result)
	}

	if result.ContainerId == "" {
		t.Error("expected a container id in the result")
	}

	if done.ErrMessage != "" {
		t.Errorf("expected no error on a completed task, got %q", done.ErrMessage)
	}

	if setups.runtime.Status(result.ContainerId) != "running" {
		t.Errorf("expected the container to be running")
	}
}

func TestStartNotFound(t *testing.T) {
	setups := setupTest(t, nil)

	tsk, err := setups.taskService.Submit(context.Background(), task.StartPostgres{})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	done := waitForStatus(t, setups.taskService, tsk.Id, task.StatusCompleted, task.StatusFailed)
	if done.Status != task.StatusFailed {
		t.Fatalf("expected status %s, but got %s", task.StatusFailed, done.Status)
	}

	if !strings.Contains(done.ErrMessage, postgres.ErrContainerNotFound.Error()) {
		t.Errorf("expected error to report a missing container, got %q", done.ErrMessage)
	}

	if done.Result != nil {
		t.Errorf("expected no result on a failed task, got %v", done.Result)
	}
}

func TestStopMultipleFound(t *testing.T) {
	setups := setupTest(t, nil)

	first := setups.runtime.AddContainer("postgres", "running", "healthy")
	second := setups.runtime.AddContainer("postgres-old", "running", "healthy")

	tsk, err := setups.taskService.Submit(context.Background(), task.StopPostgres{})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	done := waitForStatus(t, setups.taskService, tsk.Id, task.StatusCompleted, task.StatusFailed)
	if done.Status != task.StatusFailed {
		t.Fatalf("expected status %s, but got %s", task.StatusFailed, done.Status)
	}

	for _, id := range []string{first, second} {
		if !strings.Contains(done.ErrMessage, id) {
			t.Errorf("expected error %q to name container %s", done.ErrMessage, id)
		}
	}

	if setups.runtime.Status(first) != "running" || setups.runtime.Status(second) != "running" {
		t.Error("expected no container to be stopped")
	}
}

func TestNoFlowLeavesTaskNew(t *testing.T) {
	p := postgres.NewProvisioner(postgres.Config{Password: "postgres"})
	flows := p.Flows()
	delete(flows, task.TypeStartPostgres)

	setups := setupTest(t, flows)

	stuck, err := setups.taskService.Submit(context.Background(), task.StartPostgres{})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	//a later task still gets processed.
	next, err := setups.taskService.Submit(context.Background(), task.InstallPostgres{Version: "16", Port: 5433})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	waitForStatus(t, setups.taskService, next.Id, task.StatusCompleted, task.StatusFailed)

	for range 10 {
		got, err := setups.taskService.GetTaskById(context.Background(), stuck.Id)
		if err != nil {
			t.Fatalf("should be able to find the task by id: %s", err)
		}

		if got.Status != task.StatusNew {
			t.Fatalf("expected status %s, but got %s", task.StatusNew, got.Status)
		}

		if !got.StartedAt.IsZero() || !got.FinishedAt.IsZero() {
			t.Fatalf("expected no timestamps on a task without a flow")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOrphanedIdIsSkipped(t *testing.T) {
	setups := setupTest(t, nil)

	if err := setups.queue.Put(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected to enqueue: %s", err)
	}

	tsk, err := setups.taskService.Submit(context.Background(), task.InstallPostgres{Version: "16", Port: 5433})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	done := waitForStatus(t, setups.taskService, tsk.Id, task.StatusCompleted, task.StatusFailed)
	if done.Status != task.StatusCompleted {
		t.Fatalf("expected status %s, but got %s: %s", task.StatusCompleted, done.Status, done.ErrMessage)
	}
}

func TestFinishedTasksAreConsistent(t *testing.T) {
	setups := setupTest(t, nil)

	inputs := []task.Input{
		task.InstallPostgres{Version: "16", Port: 5433},
		task.StopPostgres{},
		task.StartPostgres{},
		task.InstallPostgres{Version: "15", Port: 5434},
		task.StopPostgres{},
		task.StartPostgres{},
	}

	var ids []uuid.UUID
	for _, in := range inputs {
		tsk, err := setups.taskService.Submit(context.Background(), in)
		if err != nil {
			t.Fatalf("expected to submit the task: %s", err)
		}
		ids = append(ids, tsk.Id)
	}

	for _, id := range ids {
		waitForStatus(t, setups.taskService, id, task.StatusCompleted, task.StatusFailed)
	}

	tasks, err := setups.taskService.QueryTasks(context.Background(), task.QueryFilter{})
	if err != nil {
		t.Fatalf("expected to query tasks: %s", err)
	}

	if len(tasks) != len(inputs) {
		t.Fatalf("expected %d tasks, but got %d", len(inputs), len(tasks))
	}

	for i, tsk := range tasks {
		if tsk.Id != ids[i] {
			t.Errorf("expected task %d to be %s, but got %s", i, ids[i], tsk.Id)
		}

		if (tsk.Result != nil) == (tsk.ErrMessage != "") {
			t.Errorf("task %s: expected exactly one of result and error, got %v and %q", tsk.Id, tsk.Result, tsk.ErrMessage)
		}

		if tsk.StartedAt.Before(tsk.CreatedAt) {
			t.Errorf("task %s: startedAt before createdAt", tsk.Id)
		}

		if tsk.FinishedAt.IsZero() || tsk.FinishedAt.Before(tsk.StartedAt) {
			t.Errorf("task %s: expected finishedAt to be set and not before startedAt", tsk.Id)
		}
	}
}

func TestFlowPanicFailsTask(t *testing.T) {
	flows := map[task.Type]flow.Flow{
		task.TypeStartPostgres: flow.Func[task.StartPostgres, task.StartPostgresResult]{
			Target: "postgres",
			Fn: func(ctx context.Context, rt flow.Runtime, in task.StartPostgres) (task.StartPostgresResult, error) {
				panic("runtime handle is broken")
			},
		},
	}

	setups := setupTest(t, flows)

	tsk, err := setups.taskService.Submit(context.Background(), task.StartPostgres{})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	done := waitForStatus(t, setups.taskService, tsk.Id, task.StatusCompleted, task.StatusFailed)
	if done.Status != task.StatusFailed {
		t.Fatalf("expected status %s, but got %s", task.StatusFailed, done.Status)
	}

	if !strings.Contains(done.ErrMessage, "runtime handle is broken") {
		t.Errorf("expected the panic value in the error, got %q", done.ErrMessage)
	}

	if !strings.Contains(done.ErrMessage, "goroutine") {
		t.Errorf("expected a stack trace in the error, got %q", done.ErrMessage)
	}

	//the scheduler survives and keeps executing.
	next, err := setups.taskService.Submit(context.Background(), task.StartPostgres{})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}
	waitForStatus(t, setups.taskService, next.Id, task.StatusFailed)
}

func TestSameResourceIsSerialized(t *testing.T) {
	var inside atomic.Int32
	var peak atomic.Int32

	probe := func(ctx context.Context, rt flow.Runtime, in task.StartPostgres) (task.StartPostgresResult, error) {
		n := inside.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inside.Add(-1)
		return task.StartPostgresResult{ContainerId: "probe"}, nil
	}

	flows := map[task.Type]flow.Flow{
		task.TypeStartPostgres: flow.Func[task.StartPostgres, task.StartPostgresResult]{
			Target: "postgres",
			Fn:     probe,
		},
	}

	setups := setupTest(t, flows)

	var ids []uuid.UUID
	for range 6 {
		tsk, err := setups.taskService.Submit(context.Background(), task.StartPostgres{})
		if err != nil {
			t.Fatalf("expected to submit the task: %s", err)
		}
		ids = append(ids, tsk.Id)
	}

	for _, id := range ids {
		done := waitForStatus(t, setups.taskService, id, task.StatusCompleted, task.StatusFailed)
		if done.Status != task.StatusCompleted {
			t.Fatalf("expected status %s, but got %s: %s", task.StatusCompleted, done.Status, done.ErrMessage)
		}
	}

	if got := peak.Load(); got != 1 {
		t.Errorf("expected flows on one resource to run one at a time, got %d at once", got)
	}
}

func TestShutdownFailsAbandonedTasks(t *testing.T) {
	started := make(chan struct{})

	flows := map[task.Type]flow.Flow{
		task.TypeStopPostgres: flow.Func[task.StopPostgres, task.StopPostgresResult]{
			Target: "postgres",
			Fn: func(ctx context.Context, rt flow.Runtime, in task.StopPostgres) (task.StopPostgresResult, error) {
				close(started)
				<-ctx.Done()
				return task.StopPostgresResult{}, ctx.Err()
			},
		},
	}

	setups := setupTest(t, flows)

	tsk, err := setups.taskService.Submit(context.Background(), task.StopPostgres{})
	if err != nil {
		t.Fatalf("expected to submit the task: %s", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("expected the flow to start")
	}

	if setups.scheduler.Running() != 1 {
		t.Errorf("expected 1 running task, got %d", setups.scheduler.Running())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = setups.scheduler.Shutdown(ctx)
	if err == nil {
		t.Fatal("expected shutdown to report the abandoned task")
	}

	if !strings.Contains(err.Error(), tsk.Id.String()) {
		t.Errorf("expected error %q to name task %s", err, tsk.Id)
	}

	done := waitForStatus(t, setups.taskService, tsk.Id, task.StatusFailed)
	if !strings.Contains(done.ErrMessage, context.Canceled.Error()) {
		t.Errorf("expected a cancellation error, got %q", done.ErrMessage)
	}
}

func TestRunReturnsOnClose(t *testing.T) {
	q := queue.NewMemory()
	service := task.NewService(memory.NewRepository(), q)

	sched, err := scheduler.New(scheduler.Config{
		Logger:          newLogger(),
		Queue:           q,
		TaskService:     service,
		Flows:           flow.NewRegistry(nil),
		Runtime:         flowtest.New(),
		MaxRunningTasks: 1,
	})
	if err != nil {
		t.Fatalf("expected to create a scheduler: %s", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(context.Background())
	}()

	if err := q.Close(); err != nil {
		t.Fatalf("expected to close the queue: %s", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected run to return cleanly: %s", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected run to return once the queue is closed")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := scheduler.New(scheduler.Config{Logger: newLogger(), MaxRunningTasks: 1})
	if err == nil {
		t.Fatal("expected a config without queue and flows to be rejected")
	}

	q := queue.NewMemory()
	_, err = scheduler.New(scheduler.Config{
		Logger:      newLogger(),
		Queue:       q,
		TaskService: task.NewService(memory.NewRepository(), q),
		Flows:       flow.NewRegistry(nil),
		Runtime:     flowtest.New(),
	})
	if err == nil {
		t.Fatal("expected a pool size of 0 to be rejected")
	}
}

// =============================================================================

type setup struct {
	taskService *task.Service
	queue       *queue.Memory
	runtime     *flowtest.Runtime
	scheduler   *scheduler.Scheduler
}

func newLogger() *slog.Logger {
	return logger.NewCustomLogger(os.Stdout, slog.LevelInfo, false, slog.String("service", "scheduler-test"))
}

// setupTest runs a scheduler over the given flows, or the postgres flows when nil.
func setupTest(t *testing.T, flows map[task.Type]flow.Flow) setup {
	t.Helper()

	if flows == nil {
		p := postgres.NewProvisioner(postgres.Config{Password: "postgres"})
		flows = p.Flows()
	}

	q := queue.NewMemory()
	service := task.NewService(memory.NewRepository(), q)
	rt := flowtest.New()

	sched, err := scheduler.New(scheduler.Config{
		Logger:          newLogger(),
		Queue:           q,
		TaskService:     service,
		Flows:           flow.NewRegistry(flows),
		Runtime:         rt,
		MaxRunningTasks: 4,
	})
	if err != nil {
		t.Fatalf("expected to create a scheduler: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- sched.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("expected run to return cleanly: %s", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := sched.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected a clean shutdown: %s", err)
		}
	})

	return setup{
		taskService: service,
		queue:       q,
		runtime:     rt,
		scheduler:   sched,
	}
}

func waitForStatus(t *testing.T, service *task.Service, id uuid.UUID, want ...task.Status) task.Task {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		tsk, err := service.GetTaskById(context.Background(), id)
		if err != nil {
			t.Fatalf("should be able to find the task by id: %s", err)
		}

		if slices.Contains(want, tsk.Status) {
			return tsk
		}

		if time.Now().After(deadline) {
			t.Fatalf("task %s: expected status in %v, still %s", id, want, tsk.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
