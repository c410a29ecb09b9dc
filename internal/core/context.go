package core

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request-id"
	sessionIDKey contextKey = "upload-session"
)

// WithRequestID returns a new context carrying the client request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context, or "" if absent
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithUploadSession marks the context as belonging to a chunked upload session.
// Relay hooks use it to attribute chunk calls to their session.
func WithUploadSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetUploadSession returns the upload session ID, or "" outside an upload
func GetUploadSession(ctx context.Context) string {
	return stringValue(ctx, sessionIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
