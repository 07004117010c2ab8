package web

// Middleware wraps a Handler to run code before or after it.
type Middleware func(Handler) Handler

// applyMiddlewares wraps handler so that mw[0] is the outermost layer. Nil entries are skipped.
func applyMiddlewares(handler Handler, mw ...Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] == nil {
			continue
		}
		handler = mw[i](handler)
	}
	return handler
}
