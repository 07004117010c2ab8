// Package errs is used for sending a unified error response back to client and
// also contains some general purposed error types.
package errs

import (
	"fmt"
	"net/http"
	"runtime"
)

// AppError represents a trusted error inside the system
type AppError struct {
	Code     int               `json:"code"`
	Message  string            `json:"message"`
	FuncName string            `json:"-"`
	FileName string            `json:"-"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (err *AppError) Error() string {
	return err.Message
}

// NewAppError creates an *AppError with a plain message.
func NewAppError(code int, message string) error {
	return newAppError(code, message, nil)
}

// NewAppErrorf creates an *AppError with formatted message.
func NewAppErrorf(code int, format string, v ...any) error {
	return newAppError(code, fmt.Sprintf(format, v...), nil)
}

// NewAppValidationError returns an error from failed fields.
func NewAppValidationError(code int, message string, fields map[string]string) error {
	return newAppError(code, message, fields)
}

// NewAppInternalErr is used to make returning Internal Server Errors easier.
func NewAppInternalErr(err error) error {
	return newAppError(http.StatusInternalServerError, err.Error(), nil)
}

func newAppError(code int, message string, fields map[string]string) error {
	//skip this frame and the exported constructor.
	pc, filename, line, _ := runtime.Caller(2)
	funcName := runtime.FuncForPC(pc).Name()

	return &AppError{
		Code:     code,
		Message:  message,
		FuncName: funcName,
		FileName: fmt.Sprintf("%s:%d", filename, line),
		Fields:   fields,
	}
}
