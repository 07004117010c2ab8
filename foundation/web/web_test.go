package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/foundation/web"
)

func TestHandleFunc(t *testing.T) {
	var order []string

	trace := func(name string) web.Middleware {
		return func(h web.Handler) web.Handler {
			return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return h(ctx, w, r)
			}
		}
	}

	app := web.NewApp(make(chan os.Signal, 1), trace("global-1"), trace("global-2"))

	var route string
	var requestId uuid.UUID

	app.HandleFunc(http.MethodGet, "v1", "/tasks/{id}", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		order = append(order, "handler")
		route = web.GetRoute(ctx)
		requestId = web.GetRequestId(ctx)
		return web.Respond(ctx, w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
	}, trace("route"))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/abc", nil)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, but got %d", http.StatusOK, rec.Code)
	}

	want := []string{"global-1", "global-2", "route", "handler"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("expected middleware order %v, but got %v", want, order)
	}

	if route != "GET /v1/tasks/{id}" {
		t.Errorf("expected route %q, but got %q", "GET /v1/tasks/{id}", route)
	}

	if requestId == (uuid.UUID{}) {
		t.Error("expected a request id")
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("expected a json body: %s", err)
	}

	if body["id"] != "abc" {
		t.Errorf("expected id %q, but got %q", "abc", body["id"])
	}
}

func TestRespondText(t *testing.T) {
	app := web.NewApp(make(chan os.Signal, 1))

	var status int
	app.HandleFunc(http.MethodPost, "", "/echo", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		err := web.RespondText(ctx, w, http.StatusAccepted, "queued")
		status = web.GetStatusCode(ctx)
		return err
	})

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, but got %d", http.StatusAccepted, rec.Code)
	}

	if status != http.StatusAccepted {
		t.Errorf("expected recorded status %d, but got %d", http.StatusAccepted, status)
	}

	if rec.Body.String() != "queued" {
		t.Errorf("expected body %q, but got %q", "queued", rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected a text/plain content type, got %q", ct)
	}
}

func TestShutdownError(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	app := web.NewApp(shutdown)

	app.HandleFunc(http.MethodGet, "", "/broken", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.NewShutdownError("integrity lost")
	})

	app.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("expected a shutdown signal")
	}

	if !web.IsShutdown(web.NewShutdownError("x")) {
		t.Error("expected a shutdown error to be recognized")
	}
}
