package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/app/api/errs"
	"github.com/hamidoujand/postgres-agent/app/api/handlers/tasks"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/business/domain/task/store/memory"
	"github.com/hamidoujand/postgres-agent/business/queue"
)

func newHandler(t *testing.T) (*tasks.Handler, *queue.Memory) {
	t.Helper()

	v, err := errs.NewAppValidator()
	if err != nil {
		t.Fatalf("should be able to create a validator: %s", err)
	}

	q := queue.NewMemory()
	return &tasks.Handler{
		Validator:   v,
		TaskService: task.NewService(memory.NewRepository(), q),
	}, q
}

func TestInstallPostgres(t *testing.T) {
	tests := map[string]struct {
		body   string
		status int
		fields []string
	}{
		"success": {
			body:   `{"version": "16", "port": 5433}`,
			status: http.StatusAccepted,
		},
		"invalid input": {
			body:   `{"version": "16 && rm", "port": 70000}`,
			status: http.StatusBadRequest,
			fields: []string{"version", "port"},
		},
		"missing fields": {
			body:   `{}`,
			status: http.StatusBadRequest,
			fields: []string{"version", "port"},
		},
		"malformed body": {
			body:   `{"version":`,
			status: http.StatusBadRequest,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h, q := newHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/v1/install-postgres", strings.NewReader(test.body))
			w := httptest.NewRecorder()

			err := h.InstallPostgres(context.Background(), w, req)

			if test.status == http.StatusAccepted {
				if err != nil {
					t.Fatalf("should be able to submit an install with valid input: %s", err)
				}

				if w.Result().StatusCode != test.status {
					t.Fatalf("expect to get status %d but got %d", test.status, w.Result().StatusCode)
				}

				id, err := uuid.Parse(w.Body.String())
				if err != nil {
					t.Fatalf("expected the body to be a task id: %s", err)
				}

				tsk, err := h.TaskService.GetTaskById(context.Background(), id)
				if err != nil {
					t.Fatalf("expected the task to be registered: %s", err)
				}

				in, ok := tsk.Input.(task.InstallPostgres)
				if !ok || in.Version != "16" || in.Port != 5433 {
					t.Errorf("expected the input to be carried into the task, got %+v", tsk.Input)
				}

				if q.Len() != 1 {
					t.Errorf("expected one queued id, but got %d", q.Len())
				}
				return
			}

			var appErr *errs.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected the error type to be *appError, got %T", err)
			}

			if appErr.Code != test.status {
				t.Errorf("appError.Code=%d, got %d", test.status, appErr.Code)
			}

			for _, field := range test.fields {
				if _, ok := appErr.Fields[field]; !ok {
					t.Errorf("expected field %s to be invalid, got %v", field, appErr.Fields)
				}
			}

			if q.Len() != 0 {
				t.Errorf("expected nothing to be queued, but got %d", q.Len())
			}
		})
	}
}

func TestStartStopPostgres(t *testing.T) {
	h, _ := newHandler(t)

	tests := map[string]struct {
		handler func(context.Context, http.ResponseWriter, *http.Request) error
		typ     task.Type
	}{
		"start": {handler: h.StartPostgres, typ: task.TypeStartPostgres},
		"stop":  {handler: h.StopPostgres, typ: task.TypeStopPostgres},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			if err := test.handler(context.Background(), w, httptest.NewRequest(http.MethodPost, "/", nil)); err != nil {
				t.Fatalf("should be able to submit the task: %s", err)
			}

			if w.Result().StatusCode != http.StatusAccepted {
				t.Fatalf("expect to get status %d but got %d", http.StatusAccepted, w.Result().StatusCode)
			}

			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("expected a text/plain response, got %q", ct)
			}

			tsk, err := h.TaskService.GetTaskById(context.Background(), uuid.MustParse(w.Body.String()))
			if err != nil {
				t.Fatalf("expected the task to be registered: %s", err)
			}

			if tsk.Type != test.typ {
				t.Errorf("expected type %s, but got %s", test.typ, tsk.Type)
			}
		})
	}
}

func TestGetTaskById(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()

	completed, err := h.TaskService.Submit(ctx, task.InstallPostgres{Version: "16", Port: 5433})
	if err != nil {
		t.Fatalf("expected to submit a task: %s", err)
	}

	if _, err := h.TaskService.MarkRunning(ctx, completed.Id); err != nil {
		t.Fatalf("expected the task to start: %s", err)
	}

	result := task.InstallPostgresResult{ContainerId: "c0ffee", Image: "postgres:16"}
	if _, err := h.TaskService.MarkCompleted(ctx, completed.Id, result); err != nil {
		t.Fatalf("expected the task to complete: %s", err)
	}

	pending, err := h.TaskService.Submit(ctx, task.StopPostgres{})
	if err != nil {
		t.Fatalf("expected to submit a task: %s", err)
	}

	tests := map[string]struct {
		id     string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		"completed": {
			id:     completed.Id.String(),
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["status"] != "completed" || body["type"] != "install_postgres" {
					t.Errorf("expected a completed install, got %v", body)
				}

				res, _ := body["result"].(map[string]any)
				if res["container_id"] != "c0ffee" || res["image"] != "postgres:16" {
					t.Errorf("expected the result to be rendered, got %v", body["result"])
				}

				data, _ := body["data"].(map[string]any)
				if data["version"] != "16" || data["port"] != float64(5433) {
					t.Errorf("expected the input to be rendered, got %v", body["data"])
				}

				if body["error"] != nil || body["started_at"] == nil || body["finished_at"] == nil {
					t.Errorf("expected timestamps and no error, got %v", body)
				}
			},
		},
		"pending": {
			id:     pending.Id.String(),
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["status"] != "new" {
					t.Errorf("expected status new, got %v", body["status"])
				}

				for _, key := range []string{"result", "error", "started_at", "finished_at"} {
					v, ok := body[key]
					if !ok || v != nil {
						t.Errorf("expected %s to be null, got %v", key, v)
					}
				}
			},
		},
		"unknown id": {
			id:     uuid.NewString(),
			status: http.StatusNotFound,
		},
		"invalid id": {
			id:     "not-a-uuid",
			status: http.StatusBadRequest,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+test.id, nil)
			req.SetPathValue("id", test.id)
			w := httptest.NewRecorder()

			err := h.GetTaskById(ctx, w, req)

			if test.status != http.StatusOK {
				var appErr *errs.AppError
				if !errors.As(err, &appErr) {
					t.Fatalf("expected the error type to be *appError, got %T", err)
				}

				if appErr.Code != test.status {
					t.Errorf("appError.Code=%d, got %d", test.status, appErr.Code)
				}
				return
			}

			if err != nil {
				t.Fatalf("should be able to get the task: %s", err)
			}

			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("should be able to decode response body: %s", err)
			}

			test.check(t, body)
		})
	}
}

func TestQueryTasks(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()

	var ids []string
	for _, in := range []task.Input{task.StartPostgres{}, task.StopPostgres{}, task.StartPostgres{}} {
		tsk, err := h.TaskService.Submit(ctx, in)
		if err != nil {
			t.Fatalf("expected to submit a task: %s", err)
		}
		ids = append(ids, tsk.Id.String())
	}

	tests := map[string]struct {
		query  string
		want   []string
		status int
	}{
		"all":            {query: "", want: ids, status: http.StatusOK},
		"by type":        {query: "?type=start_postgres", want: []string{ids[0], ids[2]}, status: http.StatusOK},
		"by status":      {query: "?status=new&type=stop_postgres", want: []string{ids[1]}, status: http.StatusOK},
		"none running":   {query: "?status=running", want: []string{}, status: http.StatusOK},
		"unknown status": {query: "?status=paused", status: http.StatusBadRequest},
		"unknown type":   {query: "?type=drop_postgres", status: http.StatusBadRequest},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			err := h.QueryTasks(ctx, w, httptest.NewRequest(http.MethodGet, "/v1/tasks"+test.query, nil))

			if test.status != http.StatusOK {
				var appErr *errs.AppError
				if !errors.As(err, &appErr) || appErr.Code != test.status {
					t.Fatalf("expected an *AppError with code %d, got %v", test.status, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("should be able to query tasks: %s", err)
			}

			var resp []tasks.Task
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("should be able to decode response body: %s", err)
			}

			got := make([]string, len(resp))
			for i, tsk := range resp {
				got[i] = tsk.Id
			}

			if !slices.Equal(got, test.want) {
				t.Errorf("expected ids %v, but got %v", test.want, got)
			}
		})
	}
}
