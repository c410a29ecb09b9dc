package calllog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// LoggerInterface is implemented by Logger and NoopLogger
type LoggerInterface interface {
	Write(entry *Entry)
	Config() Config
	Close() error
}

// Logger buffers entries in a channel and writes them to the store in
// batches, either when BatchFlushThreshold entries are pending or on every
// FlushInterval tick.
type Logger struct {
	store         Store
	config        Config
	buffer        chan *Entry
	done          chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex // held for reading by Write, for writing by Close
	flushInterval time.Duration
	closed        bool
	dropped       atomic.Int64
}

// NewLogger creates a Logger and starts its flush goroutine.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:         store,
		config:        cfg,
		buffer:        make(chan *Entry, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues an entry without blocking. When the buffer is full or the
// logger is closed the entry is dropped.
func (l *Logger) Write(entry *Entry) {
	if entry == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		l.dropped.Add(1)
		slog.Warn("call log buffer full, dropping entry",
			"request_id", entry.RequestID,
			"kind", entry.Kind,
			"action", entry.Action,
		)
	}
}

// Dropped returns how many entries were discarded because the buffer was full
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close stops the logger, flushes what is buffered and closes the store.
// Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()

	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, BatchFlushThreshold)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, BatchFlushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, BatchFlushThreshold)
			}

		case <-l.done:
			// closed is already set, so no Write can send anymore
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush call log store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write call log batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards every entry (used when call logging is disabled)
type NoopLogger struct{}

// Write does nothing
func (l *NoopLogger) Write(_ *Entry) {}

// Config returns an empty config
func (l *NoopLogger) Config() Config {
	return Config{Enabled: false}
}

// Close does nothing
func (l *NoopLogger) Close() error {
	return nil
}
