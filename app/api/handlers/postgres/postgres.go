// Package postgres maintains the http handler reporting the state of the postgres container.
package postgres

import (
	"context"
	"errors"
	"net/http"

	"github.com/hamidoujand/postgres-agent/app/api/errs"
	"github.com/hamidoujand/postgres-agent/business/domain/postgres"
	"github.com/hamidoujand/postgres-agent/business/flow"
	"github.com/hamidoujand/postgres-agent/foundation/web"
)

// Handler represents set of http handlers.
type Handler struct {
	Provisioner *postgres.Provisioner
	Runtime     flow.Runtime
}

// StatusResponse is the body of a status check.
type StatusResponse struct {
	Status string `json:"status"`
}

// Status runs the status check inline, without going through the queue.
func (h *Handler) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.Provisioner.CheckStatus(ctx, h.Runtime)
	if err != nil {
		var multiple *postgres.MultipleContainersError
		if errors.As(err, &multiple) {
			return errs.NewAppError(http.StatusConflict, multiple.Error())
		}
		return errs.NewAppInternalErr(err)
	}

	return web.Respond(ctx, w, http.StatusOK, StatusResponse{Status: status.String()})
}
