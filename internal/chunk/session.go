package chunk

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"classrelay/internal/core"
)

// Backend protocol for chunked uploads
const (
	ActionUploadChunk = "uploadChunk"

	ParamMimeType    = "mimeType"
	ParamFileName    = "fileName"
	ParamTotalChunks = "totalChunks"
	ParamChunkIndex  = "chunkIndex"
	ParamData        = "data"
	ParamSessionID   = "sessionId"
)

// State is a session's position in its lifecycle as seen by the client
type State int32

const (
	StateNotStarted State = iota
	StateInitiating
	StateAppending
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInitiating:
		return "initiating"
	case StateAppending:
		return "appending"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrSessionFailed is returned when delivering a session that already failed mid-upload.
// Such a session cannot be resumed; prepare a fresh one.
var ErrSessionFailed = errors.New("upload session failed; start a new session")

// task is one queued chunk call
type task struct {
	index int
	data  string
}

// Session delivers one Plan. The backend appends chunks to a single buffer in
// arrival order, so the session keeps its chunks in an explicit FIFO queue and
// holds deliverMu for the whole delivery: concurrent Deliver calls on the same
// session run one after another and never interleave chunk calls.
type Session struct {
	plan *Plan

	deliverMu sync.Mutex
	queue     []task
	token     string
	next      int // index of the next chunk to append once initiated

	state atomic.Int32
}

// NewSession queues every segment of plan in index order
func NewSession(plan *Plan) *Session {
	queue := make([]task, len(plan.Segments))
	for i, seg := range plan.Segments {
		queue[i] = task{index: i, data: seg}
	}
	return &Session{plan: plan, queue: queue}
}

// State returns the current lifecycle state without waiting for a delivery
func (s *Session) State() State {
	return State(s.state.Load())
}

// Plan returns the payload plan being delivered
func (s *Session) Plan() *Plan {
	return s.plan
}

// Deliver sends the session's chunks through r and returns the backend token.
//
// A failed init returns the session to NotStarted so Deliver may be called
// again. A failed append marks the session Failed for good. Deliver on a
// Complete session returns its token without sending anything.
func (s *Session) Deliver(ctx context.Context, r core.Relayer) (Locator, error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	switch s.State() {
	case StateComplete:
		return Locator(s.token), nil
	case StateFailed:
		return "", ErrSessionFailed
	}

	ctx = core.WithUploadSession(ctx, s.plan.ID)

	if err := s.initiate(ctx, r); err != nil {
		s.setState(StateNotStarted)
		return "", err
	}

	for len(s.queue) > 0 {
		t := s.queue[0]
		if err := s.appendChunk(ctx, r, t); err != nil {
			s.setState(StateFailed)
			slog.Warn("upload session aborted",
				"upload_id", s.plan.ID,
				"session_id", s.token,
				"chunk_index", t.index,
				"total_chunks", s.plan.TotalChunks(),
				"error", err,
			)
			return "", err
		}
		s.queue = s.queue[1:]
		s.next++
	}

	s.setState(StateComplete)
	return Locator(s.token), nil
}

func (s *Session) initiate(ctx context.Context, r core.Relayer) error {
	s.setState(StateInitiating)
	first := s.queue[0]

	params := url.Values{}
	params.Set(ParamMimeType, s.plan.MimeType)
	params.Set(ParamFileName, s.plan.FileName)
	params.Set(ParamTotalChunks, strconv.Itoa(s.plan.TotalChunks()))
	params.Set(ParamChunkIndex, strconv.Itoa(first.index))
	params.Set(ParamData, first.data)

	resp, err := r.Relay(ctx, core.NewGetRequest(ActionUploadChunk, params))
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	token := resp.Get(ParamSessionID).String()
	if token == "" {
		return core.NewMalformedResponseError("init response carries no " + ParamSessionID)
	}

	s.token = token
	s.queue = s.queue[1:]
	s.next = 1
	s.setState(StateAppending)
	return nil
}

func (s *Session) appendChunk(ctx context.Context, r core.Relayer, t task) error {
	if t.index != s.next {
		// queue is built in order and only popped from the front
		return core.NewSessionAbortedError(t.index, "chunk out of order, expected "+strconv.Itoa(s.next), nil)
	}

	params := url.Values{}
	params.Set(ParamSessionID, s.token)
	params.Set(ParamChunkIndex, strconv.Itoa(t.index))
	params.Set(ParamData, t.data)

	resp, err := r.Relay(ctx, core.NewGetRequest(ActionUploadChunk, params))
	if err != nil {
		return core.NewSessionAbortedError(t.index, err.Error(), err)
	}
	if err := resp.Err(); err != nil {
		return core.NewSessionAbortedError(t.index, resp.Message(), err)
	}
	return nil
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}
