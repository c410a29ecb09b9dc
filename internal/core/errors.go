// Package core provides core types and interfaces for the relay.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a relay failure
type ErrorKind string

const (
	// KindNetworkFault indicates the relay could not reach the backend (HTTP 500)
	KindNetworkFault ErrorKind = "network_fault"
	// KindBackendError indicates the backend answered with a non-success envelope
	KindBackendError ErrorKind = "backend_error"
	// KindMalformedResponse indicates the backend answered with a body that is not JSON
	KindMalformedResponse ErrorKind = "malformed_backend_response"
	// KindPayloadTooLarge indicates the input exceeded the configured bound
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	// KindSessionAborted indicates an append call failed after the session was initiated
	KindSessionAborted ErrorKind = "session_aborted_mid_upload"
	// KindInvalidRequest indicates the client request could not be interpreted
	KindInvalidRequest ErrorKind = "invalid_request"
)

// RelayError is the error type for all relay and chunk transport failures
type RelayError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *RelayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *RelayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status sent to the client.
// Only network faults surface as a non-200 status; everything else is signaled
// inside the envelope.
func (e *RelayError) HTTPStatusCode() int {
	if e.Kind == KindNetworkFault {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// Envelope renders the error as the client-facing JSON body
func (e *RelayError) Envelope() json.RawMessage {
	return ErrorEnvelope(e.Message)
}

// NewNetworkFault creates an error for an unreachable backend
func NewNetworkFault(message string, err error) *RelayError {
	return &RelayError{Kind: KindNetworkFault, Message: message, Err: err}
}

// NewBackendError creates an error for a backend-reported failure.
// The message is kept exactly as the backend sent it.
func NewBackendError(message string) *RelayError {
	return &RelayError{Kind: KindBackendError, Message: message}
}

// NewMalformedResponseError creates an error for a non-JSON backend body
func NewMalformedResponseError(raw string) *RelayError {
	return &RelayError{Kind: KindMalformedResponse, Message: raw}
}

// NewPayloadTooLargeError creates an error for oversized input
func NewPayloadTooLargeError(size, limit int64) *RelayError {
	return &RelayError{
		Kind:    KindPayloadTooLarge,
		Message: fmt.Sprintf("payload too large: %d bytes exceeds limit of %d bytes", size, limit),
	}
}

// NewSessionAbortedError creates an error for an upload that failed after init
func NewSessionAbortedError(chunkIndex int, message string, err error) *RelayError {
	return &RelayError{
		Kind:    KindSessionAborted,
		Message: fmt.Sprintf("upload aborted at chunk %d: %s", chunkIndex, message),
		Err:     err,
	}
}

// NewInvalidRequestError creates an error for a request the relay cannot interpret
func NewInvalidRequestError(message string, err error) *RelayError {
	return &RelayError{Kind: KindInvalidRequest, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a RelayError
func KindOf(err error) ErrorKind {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return ""
}

// IsKind reports whether err is a RelayError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
