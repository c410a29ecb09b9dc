// Package calllog records the outcome of every relay call and chunked upload.
// Entries are buffered in memory and written to the configured database in
// batches so request handling never waits on storage.
package calllog

import (
	"context"
	"time"
)

// Store defines the interface for call log storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Entry kinds
const (
	KindRelay  = "relay"
	KindUpload = "upload"
)

// OutcomeSuccess marks an entry that completed with a success envelope.
// Failed entries carry the error kind (e.g. "network_fault") as their outcome.
const OutcomeSuccess = "success"

// Entry is a single call log record.
type Entry struct {
	// ID is a unique identifier for this entry (UUID)
	ID string `json:"id" bson:"_id"`

	// RequestID links the entry to the inbound request (X-Request-ID)
	RequestID string `json:"request_id" bson:"request_id"`

	// Timestamp is when the call finished
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Kind is "relay" for one relayed call or "upload" for a whole chunked session
	Kind string `json:"kind" bson:"kind"`

	Method string `json:"method,omitempty" bson:"method,omitempty"`
	Action string `json:"action,omitempty" bson:"action,omitempty"`

	// Redirected is true when the backend answered with a redirect that was resolved
	Redirected bool `json:"redirected" bson:"redirected"`

	// Outcome is "success" or the error kind
	Outcome string `json:"outcome" bson:"outcome"`
	Message string `json:"message,omitempty" bson:"message,omitempty"`

	DurationNs int64 `json:"duration_ns" bson:"duration_ns"`

	// Upload fields, empty for relay entries
	UploadID    string `json:"upload_id,omitempty" bson:"upload_id,omitempty"`
	SessionID   string `json:"session_id,omitempty" bson:"session_id,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty" bson:"total_chunks,omitempty"`
	Digest      string `json:"digest,omitempty" bson:"digest,omitempty"`
}

// Config holds call log configuration
type Config struct {
	// Enabled controls whether call logging is active
	Enabled bool

	// BufferSize is the number of entries to buffer before dropping
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep entries (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 30,
	}
}
