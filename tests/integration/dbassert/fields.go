//go:build integration

package dbassert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ExpectedCallLog contains expected values for call log assertions.
// Zero values are not checked, allowing partial matching.
type ExpectedCallLog struct {
	Kind        string
	Method      string
	Action      string
	Outcome     string
	RequestID   string
	Redirected  bool
	TotalChunks int
}

// AssertCallLogFieldCompleteness verifies that all required fields are populated.
func AssertCallLogFieldCompleteness(t *testing.T, entry CallLogEntry) {
	t.Helper()

	assert.NotEmpty(t, entry.ID, "call log ID should not be empty")
	assert.False(t, entry.Timestamp.IsZero(), "call log timestamp should not be zero")
	assert.NotEmpty(t, entry.Kind, "call log kind should not be empty")
	assert.NotEmpty(t, entry.Outcome, "call log outcome should not be empty")
	assert.Positive(t, entry.DurationNs, "call log duration should be positive")

	if entry.Kind == "upload" && entry.Outcome == "success" {
		assert.NotEmpty(t, entry.UploadID, "upload ID should not be empty")
		assert.NotEmpty(t, entry.SessionID, "upload session ID should not be empty")
		assert.Len(t, entry.Digest, 16, "upload digest should be a hex xxhash64")
	}
}

// AssertCallLogMatches verifies that an entry matches the expected non-zero values.
func AssertCallLogMatches(t *testing.T, expected ExpectedCallLog, entry CallLogEntry) {
	t.Helper()

	if expected.Kind != "" {
		assert.Equal(t, expected.Kind, entry.Kind, "kind mismatch")
	}
	if expected.Method != "" {
		assert.Equal(t, expected.Method, entry.Method, "method mismatch")
	}
	if expected.Action != "" {
		assert.Equal(t, expected.Action, entry.Action, "action mismatch")
	}
	if expected.Outcome != "" {
		assert.Equal(t, expected.Outcome, entry.Outcome, "outcome mismatch")
	}
	if expected.RequestID != "" {
		assert.Equal(t, expected.RequestID, entry.RequestID, "request ID mismatch")
	}
	if expected.Redirected {
		assert.True(t, entry.Redirected, "expected a redirected call")
	}
	if expected.TotalChunks != 0 {
		assert.Equal(t, expected.TotalChunks, entry.TotalChunks, "total chunks mismatch")
	}
}
