package logger

import "context"

// contextKey keeps our context values from colliding with other packages.
type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores the request ID on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID from the context, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
