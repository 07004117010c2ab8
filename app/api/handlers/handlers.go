// Package handlers binds the http handlers of the agent to their routes.
package handlers

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/hamidoujand/postgres-agent/app/api/errs"
	"github.com/hamidoujand/postgres-agent/app/api/handlers/check"
	pghandler "github.com/hamidoujand/postgres-agent/app/api/handlers/postgres"
	"github.com/hamidoujand/postgres-agent/app/api/handlers/tasks"
	"github.com/hamidoujand/postgres-agent/app/api/mid"
	"github.com/hamidoujand/postgres-agent/business/domain/postgres"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/business/flow"
	"github.com/hamidoujand/postgres-agent/foundation/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds everything the routes need.
type Config struct {
	Build       string
	Shutdown    chan os.Signal
	Logger      *slog.Logger
	Validator   *errs.AppValidator
	TaskService *task.Service
	Provisioner *postgres.Provisioner
	Runtime     flow.Runtime
	Health      check.StatusChecker
	Running     func() int
}

// RegisterRoutes builds the app with every route of the agent.
func RegisterRoutes(conf Config) *web.App {
	const version = "v1"
	app := web.NewApp(conf.Shutdown,
		mid.Logger(conf.Logger),
		mid.Metrics(),
		mid.Errors(conf.Logger),
		mid.Panics(),
	)

	checkHandler := check.Handler{
		Build:   conf.Build,
		Runtime: conf.Health,
		Running: conf.Running,
	}

	taskHandler := tasks.Handler{
		Validator:   conf.Validator,
		TaskService: conf.TaskService,
	}

	pgHandler := pghandler.Handler{
		Provisioner: conf.Provisioner,
		Runtime:     conf.Runtime,
	}

	//==============================================================================
	//health
	app.HandleFunc(http.MethodGet, "", "/health", checkHandler.Health)

	//==============================================================================
	//tasks
	app.HandleFunc(http.MethodGet, version, "/tasks", taskHandler.QueryTasks)
	app.HandleFunc(http.MethodGet, version, "/tasks/{id}", taskHandler.GetTaskById)
	app.HandleFunc(http.MethodPost, version, "/install-postgres", taskHandler.InstallPostgres)
	app.HandleFunc(http.MethodPost, version, "/start-postgres", taskHandler.StartPostgres)
	app.HandleFunc(http.MethodPost, version, "/stop-postgres", taskHandler.StopPostgres)

	//==============================================================================
	//postgres
	app.HandleFunc(http.MethodGet, version, "/postgres/status", pgHandler.Status)

	app.Handle(http.MethodGet, "/metrics", promhttp.Handler())

	return app
}
