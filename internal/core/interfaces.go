package core

import (
	"context"
)

// Relayer forwards one call to the backend and returns its normalized answer.
// A non-nil error means the call never produced an envelope (network fault or
// oversized input); backend-reported failures come back as a response.
type Relayer interface {
	Relay(ctx context.Context, req *RelayRequest) (*RelayResponse, error)
}
