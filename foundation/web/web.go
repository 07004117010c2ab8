// Package web provides a small framework on top of http.ServeMux for handlers that
// return errors and share middleware.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Handler represents the signature for any handler function.
type Handler func(context.Context, http.ResponseWriter, *http.Request) error

// App is the entrypoint into the application, it wraps the mux and the global middlewares.
type App struct {
	mux      *http.ServeMux
	shutdown chan<- os.Signal
	mw       []Middleware
}

// NewApp creates an App. mw wraps every handler registered with HandleFunc.
func NewApp(shutdown chan<- os.Signal, mw ...Middleware) *App {
	return &App{
		mux:      http.NewServeMux(),
		shutdown: shutdown,
		mw:       mw,
	}
}

// SignalShutdown asks the process to shut down gracefully.
func (a *App) SignalShutdown() {
	a.shutdown <- syscall.SIGTERM
}

// HandleFunc registers handler for the method and path, prefixed by version when set.
// Route middlewares run inside the global ones.
func (a *App) HandleFunc(method string, version string, path string, handler Handler, mw ...Middleware) {
	handler = applyMiddlewares(handler, mw...)
	handler = applyMiddlewares(handler, a.mw...)

	finalPath := path
	if version != "" {
		finalPath = "/" + version + path
	}

	route := fmt.Sprintf("%s %s", method, finalPath)

	h := func(w http.ResponseWriter, r *http.Request) {
		rm := requestMetadata{
			StartedAt: time.Now(),
			RequestId: uuid.New(),
			Route:     route,
		}
		ctx := injectRequestMetadata(r.Context(), &rm)

		if err := handler(ctx, w, r); err != nil {
			//anything reaching this point escaped the error middleware.
			if IsShutdown(err) {
				a.SignalShutdown()
			}
		}
	}

	a.mux.HandleFunc(route, h)
}

// Handle registers a plain http.Handler, bypassing the middlewares.
func (a *App) Handle(method string, path string, handler http.Handler) {
	a.mux.Handle(fmt.Sprintf("%s %s", method, path), handler)
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}
