// Package check maintains the health endpoint of the agent.
package check

import (
	"context"
	"net/http"
	"time"

	"github.com/hamidoujand/postgres-agent/app/api/errs"
	"github.com/hamidoujand/postgres-agent/foundation/web"
)

// StatusChecker reports whether a dependency is reachable.
type StatusChecker interface {
	StatusCheck(ctx context.Context) error
}

// Handler represents set of http handlers.
type Handler struct {
	Build   string
	Runtime StatusChecker
	Running func() int
}

// Health is the body of a health check.
type Health struct {
	Status  string `json:"status"`
	Build   string `json:"build"`
	Running int    `json:"running"`
}

// Health reports the agent as up when the container runtime answers.
func (h *Handler) Health(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.Runtime.StatusCheck(ctx); err != nil {
		return errs.NewAppErrorf(http.StatusServiceUnavailable, "container runtime unavailable: %s", err)
	}

	health := Health{
		Status: "up",
		Build:  h.Build,
	}

	if h.Running != nil {
		health.Running = h.Running()
	}

	return web.Respond(ctx, w, http.StatusOK, health)
}
