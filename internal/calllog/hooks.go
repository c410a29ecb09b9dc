package calllog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"classrelay/internal/chunk"
	"classrelay/internal/core"
	"classrelay/internal/relay"
)

// RelayHooks returns relay hooks that write one entry per relayed call.
// Chunk calls made on behalf of an upload are skipped; the upload entry
// covers them.
func RelayHooks(l LoggerInterface) relay.Hooks {
	return relay.Hooks{
		OnRequestEnd: func(ctx context.Context, info relay.ResponseInfo) {
			if core.GetUploadSession(ctx) != "" {
				return
			}
			entry := &Entry{
				ID:         uuid.NewString(),
				RequestID:  core.GetRequestID(ctx),
				Timestamp:  time.Now().UTC(),
				Kind:       KindRelay,
				Method:     info.Method,
				Action:     info.Action,
				Redirected: info.Redirected,
				DurationNs: info.Duration.Nanoseconds(),
			}
			switch {
			case info.Err != nil:
				entry.Outcome = outcomeOf(info.Err)
				entry.Message = info.Err.Error()
			case info.Malformed:
				entry.Outcome = string(core.KindMalformedResponse)
				entry.Message = info.Message
			case info.Status == core.StatusSuccess:
				entry.Outcome = OutcomeSuccess
			default:
				entry.Outcome = string(core.KindBackendError)
				entry.Message = info.Message
			}
			l.Write(entry)
		},
	}
}

// UploadHook returns an upload observer that writes one entry per upload.
func UploadHook(l LoggerInterface) func(ctx context.Context, info chunk.UploadInfo) {
	return func(ctx context.Context, info chunk.UploadInfo) {
		entry := &Entry{
			ID:          uuid.NewString(),
			RequestID:   core.GetRequestID(ctx),
			Timestamp:   time.Now().UTC(),
			Kind:        KindUpload,
			Method:      "GET",
			Action:      chunk.ActionUploadChunk,
			Outcome:     OutcomeSuccess,
			DurationNs:  info.Duration.Nanoseconds(),
			UploadID:    info.UploadID,
			SessionID:   info.SessionID,
			TotalChunks: info.TotalChunks,
			Digest:      info.Digest,
		}
		if info.Err != nil {
			entry.Outcome = outcomeOf(info.Err)
			entry.Message = info.Err.Error()
		}
		l.Write(entry)
	}
}

func outcomeOf(err error) string {
	if kind := core.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
