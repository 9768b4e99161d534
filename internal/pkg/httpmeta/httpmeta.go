// Package httpmeta carries request metadata (acting user, request ID,
// compensation marker) through context and propagates it on outbound HTTP
// requests between the gateway and the downstream services.
package httpmeta

import (
	"context"
	"net/http"
)

// contextKey is an unexported type for context keys in this package.
// Using a custom type prevents collisions with keys from other packages
// that might use the same underlying string value.
type contextKey string

const (
	// HeaderUserID identifies the acting principal on every internal call.
	HeaderUserID = "X-User-Id"
	// HeaderRequestID correlates a gateway request across services.
	HeaderRequestID = "X-Request-Id"

	ctxKeyUserID       contextKey = "user_id"
	ctxKeyRequestID    contextKey = "request_id"
	ctxKeyCompensation contextKey = "compensation"
)

// WithUserID stores the acting user in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserID returns the acting user, or "" when none is set.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request ID, or "" when none is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// WithCompensation marks the context as belonging to a compensating call.
// The resilient client doubles its timeout for such calls: during recovery
// eventual consistency matters more than latency.
func WithCompensation(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyCompensation, true)
}

// IsCompensation reports whether the context belongs to a compensating call.
func IsCompensation(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyCompensation).(bool)
	return v
}

// Propagate copies the user and request IDs from ctx onto an outbound request.
func Propagate(ctx context.Context, req *http.Request) {
	if id := UserID(ctx); id != "" {
		req.Header.Set(HeaderUserID, id)
	}
	if id := RequestID(ctx); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}
}

// FromRequest extracts the user and request IDs from an inbound request into
// a context, for use in the downstream services' handlers.
func FromRequest(r *http.Request) context.Context {
	ctx := r.Context()
	if id := r.Header.Get(HeaderUserID); id != "" {
		ctx = WithUserID(ctx, id)
	}
	if id := r.Header.Get(HeaderRequestID); id != "" {
		ctx = WithRequestID(ctx, id)
	}
	return ctx
}
