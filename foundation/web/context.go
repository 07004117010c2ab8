package web

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type key int

const requestMetadataKey key = 1

// requestMetadata represents some additional info related to each requests that
// travels in between middlewares till reaches handlers
type requestMetadata struct {
	StartedAt  time.Time
	StatusCode int
	RequestId  uuid.UUID
	Route      string
}

func injectRequestMetadata(ctx context.Context, rm *requestMetadata) context.Context {
	return context.WithValue(ctx, requestMetadataKey, rm)
}

func getRequestMetadata(ctx context.Context) *requestMetadata {
	rm, ok := ctx.Value(requestMetadataKey).(*requestMetadata)
	if !ok {
		return &requestMetadata{}
	}
	return rm
}

func setStatusCode(ctx context.Context, status int) {
	if rm, ok := ctx.Value(requestMetadataKey).(*requestMetadata); ok {
		rm.StatusCode = status
	}
}

// GetStatusCode returns the status code written for the request.
func GetStatusCode(ctx context.Context) int {
	return getRequestMetadata(ctx).StatusCode
}

// GetStartedAt returns the time the request was received.
func GetStartedAt(ctx context.Context) time.Time {
	return getRequestMetadata(ctx).StartedAt
}

// GetRequestId returns the id assigned to the request.
func GetRequestId(ctx context.Context) uuid.UUID {
	return getRequestMetadata(ctx).RequestId
}

// GetRoute returns the pattern the request was routed by, e.g. "GET /v1/tasks/{id}".
func GetRoute(ctx context.Context) string {
	return getRequestMetadata(ctx).Route
}
