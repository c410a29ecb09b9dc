package relay

import (
	"context"
	"time"
)

// RequestInfo describes a relay call as it starts
type RequestInfo struct {
	Method string
	Action string
}

// ResponseInfo describes a finished relay call
type ResponseInfo struct {
	RequestInfo
	Duration   time.Duration
	Redirected bool
	Malformed  bool
	// Status is the envelope status, empty when Err is set
	Status string
	// Message is the envelope message, if any
	Message string
	Err     error
}

// Hooks observe relay calls. Either func may be nil.
type Hooks struct {
	// OnRequestStart may return a derived context that is passed to OnRequestEnd
	OnRequestStart func(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd   func(ctx context.Context, info ResponseInfo)
}

// Chain combines hooks so each runs in order
func Chain(hooks ...Hooks) Hooks {
	return Hooks{
		OnRequestStart: func(ctx context.Context, info RequestInfo) context.Context {
			for _, h := range hooks {
				if h.OnRequestStart != nil {
					ctx = h.OnRequestStart(ctx, info)
				}
			}
			return ctx
		},
		OnRequestEnd: func(ctx context.Context, info ResponseInfo) {
			for _, h := range hooks {
				if h.OnRequestEnd != nil {
					h.OnRequestEnd(ctx, info)
				}
			}
		},
	}
}
