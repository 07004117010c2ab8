package web

import "errors"

// shutdownError is returned by a handler when the process must shut down.
type shutdownError struct {
	Message string
}

// NewShutdownError wraps message into an error that shuts the service down.
func NewShutdownError(message string) error {
	return &shutdownError{Message: message}
}

func (se *shutdownError) Error() string {
	return se.Message
}

// IsShutdown reports whether err asks for a shutdown.
func IsShutdown(err error) bool {
	var se *shutdownError
	return errors.As(err, &se)
}
