package mid

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/hamidoujand/postgres-agent/app/api/errs"
	"github.com/hamidoujand/postgres-agent/foundation/web"
)

// Panics turns a panicking handler into an internal error.
func Panics() web.Middleware {
	m := func(h web.Handler) web.Handler {
		handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				//the errors middleware logs it and masks the message.
				err = errs.NewAppErrorf(http.StatusInternalServerError, "PANIC[%v] STACK[%s]", rec, debug.Stack())
			}()

			return h(ctx, w, r)
		}

		return handler
	}
	return m
}
