package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"classrelay/internal/core"
)

// UploadInfo describes a finished upload attempt
type UploadInfo struct {
	UploadID      string
	SessionID     string
	FileName      string
	MimeType      string
	TotalChunks   int
	EncodedLength int
	Digest        string
	Duration      time.Duration
	State         State
	Err           error
}

// Config holds uploader configuration
type Config struct {
	// MaxChunkLength bounds each text fragment (default: DefaultMaxChunkLength)
	MaxChunkLength int

	// Concurrency bounds how many independent sessions UploadAll runs at once
	// (default: 4)
	Concurrency int

	// OnUploadEnd observes every upload attempt (optional)
	OnUploadEnd func(ctx context.Context, info UploadInfo)
}

// Uploader drives the chunked upload protocol over a relay.
// The relay is unaware it is carrying chunks.
type Uploader struct {
	relayer     core.Relayer
	maxChunk    int
	concurrency int
	onEnd       func(ctx context.Context, info UploadInfo)
}

// NewUploader creates an uploader that sends its calls through r
func NewUploader(r core.Relayer, cfg Config) (*Uploader, error) {
	if r == nil {
		return nil, fmt.Errorf("relayer is required")
	}
	if cfg.MaxChunkLength == 0 {
		cfg.MaxChunkLength = DefaultMaxChunkLength
	}
	if cfg.MaxChunkLength < MinChunkLength {
		return nil, fmt.Errorf("max chunk length %d is below minimum %d", cfg.MaxChunkLength, MinChunkLength)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Uploader{
		relayer:     r,
		maxChunk:    cfg.MaxChunkLength,
		concurrency: cfg.Concurrency,
		onEnd:       cfg.OnUploadEnd,
	}, nil
}

// MaxChunkLength returns the fragment bound in use
func (u *Uploader) MaxChunkLength() int {
	return u.maxChunk
}

// Prepare encodes and segments payload into a fresh session
func (u *Uploader) Prepare(payload []byte, mimeType, fileName string) (*Session, error) {
	plan, err := NewPlan(payload, mimeType, fileName, u.maxChunk)
	if err != nil {
		return nil, core.NewInvalidRequestError(err.Error(), err)
	}
	return NewSession(plan), nil
}

// Upload sends payload as a new session and returns its locator.
// Every call starts a fresh session; a failed upload is never resumed.
func (u *Uploader) Upload(ctx context.Context, payload []byte, mimeType, fileName string) (Locator, error) {
	session, err := u.Prepare(payload, mimeType, fileName)
	if err != nil {
		return "", err
	}
	return u.Deliver(ctx, session)
}

// Deliver runs session to completion and reports the outcome to the hook
func (u *Uploader) Deliver(ctx context.Context, session *Session) (Locator, error) {
	start := time.Now()
	plan := session.Plan()

	slog.Debug("upload started",
		"upload_id", plan.ID,
		"file_name", plan.FileName,
		"total_chunks", plan.TotalChunks(),
		"encoded_length", plan.EncodedLength,
		"request_id", core.GetRequestID(ctx),
	)

	loc, err := session.Deliver(ctx, u.relayer)

	info := UploadInfo{
		UploadID:      plan.ID,
		SessionID:     loc.Token(),
		FileName:      plan.FileName,
		MimeType:      plan.MimeType,
		TotalChunks:   plan.TotalChunks(),
		EncodedLength: plan.EncodedLength,
		Digest:        plan.Digest,
		Duration:      time.Since(start),
		State:         session.State(),
		Err:           err,
	}
	if u.onEnd != nil {
		u.onEnd(ctx, info)
	}
	if err != nil {
		return "", err
	}

	slog.Info("upload complete",
		"upload_id", plan.ID,
		"session_id", loc.Token(),
		"total_chunks", plan.TotalChunks(),
		"digest", plan.Digest,
		"duration", info.Duration,
	)
	return loc, nil
}

// File is one payload for UploadAll
type File struct {
	Data     []byte
	MimeType string
	FileName string
}

// UploadAll uploads independent files concurrently, each as its own session.
// Chunks within a session stay strictly ordered. The first failure cancels the
// remaining uploads; locators are returned in input order.
func (u *Uploader) UploadAll(ctx context.Context, files []File) ([]Locator, error) {
	locators := make([]Locator, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, f := range files {
		g.Go(func() error {
			loc, err := u.Upload(gctx, f.Data, f.MimeType, f.FileName)
			if err != nil {
				return fmt.Errorf("upload %q: %w", f.FileName, err)
			}
			locators[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locators, nil
}
