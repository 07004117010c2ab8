package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition is returned when a status change breaks the task lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNilResult is returned when a task is completed without a result payload.
	ErrNilResult = errors.New("completed task requires a result")
)

// Task represents one unit of provisioning work and its lifecycle state.
type Task struct {
	Id         uuid.UUID
	Type       Type
	Status     Status
	Input      Input
	Result     Result
	ErrMessage string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Input is the immutable payload a task is created with, one variant per task type.
type Input interface {
	TaskType() Type
}

// Result is the payload a task produces on success, one variant per task type.
type Result interface {
	TaskType() Type
}

// InstallPostgres asks for a postgres container of the given version bound to Port on the host.
type InstallPostgres struct {
	Version string
	Port    int
}

func (InstallPostgres) TaskType() Type { return TypeInstallPostgres }

// StartPostgres asks for the existing postgres container to be started.
type StartPostgres struct{}

func (StartPostgres) TaskType() Type { return TypeStartPostgres }

// StopPostgres asks for the existing postgres container to be stopped.
type StopPostgres struct{}

func (StopPostgres) TaskType() Type { return TypeStopPostgres }

// InstallPostgresResult holds the container created by an install.
type InstallPostgresResult struct {
	ContainerId string
	Image       string
}

func (InstallPostgresResult) TaskType() Type { return TypeInstallPostgres }

// StartPostgresResult holds the container that was started.
type StartPostgresResult struct {
	ContainerId string
}

func (StartPostgresResult) TaskType() Type { return TypeStartPostgres }

// StopPostgresResult holds the container that was stopped.
type StopPostgresResult struct {
	ContainerId string
}

func (StopPostgresResult) TaskType() Type { return TypeStopPostgres }

// NewTask builds a task in status new for the given input.
func NewTask(in Input, now time.Time) Task {
	return Task{
		Id:        uuid.New(),
		Type:      in.TaskType(),
		Status:    StatusNew,
		Input:     in,
		CreatedAt: now,
	}
}

// Start moves the task from new to running.
func (t *Task) Start(now time.Time) error {
	if t.Status != StatusNew {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusRunning)
	}

	//never before creation, even if the wall clock moved backwards.
	if now.Before(t.CreatedAt) {
		now = t.CreatedAt
	}

	t.Status = StatusRunning
	t.StartedAt = now
	return nil
}

// Complete moves the task from running to completed and stores the result.
func (t *Task) Complete(now time.Time, result Result) error {
	if t.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusCompleted)
	}

	if result == nil {
		return ErrNilResult
	}

	t.Status = StatusCompleted
	t.Result = result
	t.FinishedAt = t.finishTime(now)
	return nil
}

// Fail moves the task from running to failed and stores the diagnostic.
func (t *Task) Fail(now time.Time, errMessage string) error {
	if t.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusFailed)
	}

	if errMessage == "" {
		errMessage = "unknown failure"
	}

	t.Status = StatusFailed
	t.ErrMessage = errMessage
	t.FinishedAt = t.finishTime(now)
	return nil
}

func (t *Task) finishTime(now time.Time) time.Time {
	if now.Before(t.StartedAt) {
		return t.StartedAt
	}
	return now
}
