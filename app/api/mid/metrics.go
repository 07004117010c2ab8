package mid

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hamidoujand/postgres-agent/foundation/telemetry"
	"github.com/hamidoujand/postgres-agent/foundation/web"
)

// Metrics counts requests by method, route pattern and the status code written.
func Metrics() web.Middleware {
	m := func(h web.Handler) web.Handler {
		handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := h(ctx, w, r)

			code := web.GetStatusCode(ctx)
			if code == 0 {
				code = http.StatusOK
			}

			telemetry.HTTPRequests.WithLabelValues(r.Method, web.GetRoute(ctx), strconv.Itoa(code)).Inc()
			return err
		}
		return handler
	}
	return m
}
