package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Respond writes data as JSON with the given status code.
func Respond(ctx context.Context, w http.ResponseWriter, statusCode int, data any) error {
	//if ctx is cancelled, that means client is disconnect
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("client is disconnected")
		}
	}

	setStatusCode(ctx, statusCode)

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}
	return nil
}

// RespondText writes body as plain text with the given status code.
func RespondText(ctx context.Context, w http.ResponseWriter, statusCode int, body string) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("client is disconnected")
		}
	}

	setStatusCode(ctx, statusCode)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)

	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	return nil
}
