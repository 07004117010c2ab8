package tasks

import (
	"time"

	"github.com/hamidoujand/postgres-agent/business/domain/task"
)

// Task represents a task that goes to client
type Task struct {
	Id         string     `json:"id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Data       any        `json:"data"`
	Result     any        `json:"result"`
	Error      *string    `json:"error"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// InstallData is the input of an install task.
type InstallData struct {
	Version string `json:"version"`
	Port    int    `json:"port"`
}

// ContainerResult is the result of a start or stop task.
type ContainerResult struct {
	ContainerId string `json:"container_id"`
}

// InstallResult is the result of an install task.
type InstallResult struct {
	ContainerId string `json:"container_id"`
	Image       string `json:"image"`
}

func fromDomainTask(t task.Task) Task {
	app := Task{
		Id:         t.Id.String(),
		Type:       t.Type.String(),
		Status:     t.Status.String(),
		Data:       fromDomainInput(t.Input),
		CreatedAt:  t.CreatedAt,
		StartedAt:  optionalTime(t.StartedAt),
		FinishedAt: optionalTime(t.FinishedAt),
	}

	if t.Result != nil {
		app.Result = fromDomainResult(t.Result)
	}

	if t.Status == task.StatusFailed {
		msg := t.ErrMessage
		app.Error = &msg
	}

	return app
}

func fromDomainInput(in task.Input) any {
	switch in := in.(type) {
	case task.InstallPostgres:
		return InstallData{Version: in.Version, Port: in.Port}
	default:
		return struct{}{}
	}
}

func fromDomainResult(r task.Result) any {
	switch r := r.(type) {
	case task.InstallPostgresResult:
		return InstallResult{ContainerId: r.ContainerId, Image: r.Image}
	case task.StartPostgresResult:
		return ContainerResult{ContainerId: r.ContainerId}
	case task.StopPostgresResult:
		return ContainerResult{ContainerId: r.ContainerId}
	default:
		return nil
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// NewInstall represents data required to submit an install task.
type NewInstall struct {
	Version string `json:"version" validate:"required,imageTag"`
	Port    int    `json:"port" validate:"required,min=1,max=65535"`
}
