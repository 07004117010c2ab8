// Package tasks maintains the http handlers that submit and report provisioning tasks.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/app/api/errs"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/foundation/telemetry"
	"github.com/hamidoujand/postgres-agent/foundation/web"
)

// Handler represents set of http handlers.
type Handler struct {
	Validator   *errs.AppValidator
	TaskService *task.Service
}

// InstallPostgres validates the body and submits an install task.
func (h *Handler) InstallPostgres(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var newInstall NewInstall
	if err := json.NewDecoder(r.Body).Decode(&newInstall); err != nil {
		return errs.NewAppErrorf(http.StatusBadRequest, "invalid data: %s", err.Error())
	}

	fields, ok := h.Validator.Check(newInstall)
	if !ok {
		return errs.NewAppValidationError(http.StatusBadRequest, "invalid input", fields)
	}

	return h.submit(ctx, w, task.InstallPostgres{
		Version: newInstall.Version,
		Port:    newInstall.Port,
	})
}

// StartPostgres submits a start task.
func (h *Handler) StartPostgres(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return h.submit(ctx, w, task.StartPostgres{})
}

// StopPostgres submits a stop task.
func (h *Handler) StopPostgres(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return h.submit(ctx, w, task.StopPostgres{})
}

// submit registers and enqueues the task, answering with its id before it runs.
func (h *Handler) submit(ctx context.Context, w http.ResponseWriter, in task.Input) error {
	t, err := h.TaskService.Submit(ctx, in)
	if err != nil {
		return errs.NewAppInternalErr(err)
	}

	telemetry.TasksSubmitted.WithLabelValues(t.Type.String()).Inc()

	if err := web.RespondText(ctx, w, http.StatusAccepted, t.Id.String()); err != nil {
		return errs.NewAppInternalErr(err)
	}
	return nil
}

// GetTaskById returns the task for the given id or possible errors.
func (h *Handler) GetTaskById(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	taskId := r.PathValue("id")

	taskUUID, err := uuid.Parse(taskId)
	if err != nil {
		return errs.NewAppErrorf(http.StatusBadRequest, "%q not a valid uuid", taskId)
	}

	t, err := h.TaskService.GetTaskById(ctx, taskUUID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			return errs.NewAppErrorf(http.StatusNotFound, "task with id %q not found", taskId)
		}
		//internal
		return errs.NewAppInternalErr(err)
	}

	if err := web.Respond(ctx, w, http.StatusOK, fromDomainTask(t)); err != nil {
		return errs.NewAppInternalErr(err)
	}

	return nil
}

// QueryTasks returns every task in submission order, optionally filtered by status and type.
func (h *Handler) QueryTasks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	filter, err := parseFilter(r)
	if err != nil {
		return errs.NewAppError(http.StatusBadRequest, err.Error())
	}

	domainTasks, err := h.TaskService.QueryTasks(ctx, filter)
	if err != nil {
		return errs.NewAppInternalErr(err)
	}

	appTasks := make([]Task, len(domainTasks))
	for i, t := range domainTasks {
		appTasks[i] = fromDomainTask(t)
	}

	return web.Respond(ctx, w, http.StatusOK, appTasks)
}
