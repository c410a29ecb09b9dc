package calllog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockStore implements Store for testing
type mockStore struct {
	entries []*Entry
	mu      sync.Mutex
	closed  bool
}

func (m *mockStore) WriteBatch(_ context.Context, entries []*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockStore) Flush(_ context.Context) error {
	return nil
}

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockStore) getEntries() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Entry, len(m.entries))
	copy(result, m.entries)
	return result
}

func (m *mockStore) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestLogger(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    100,
		FlushInterval: 50 * time.Millisecond,
	})

	for i := 0; i < 5; i++ {
		logger.Write(&Entry{
			ID:        fmt.Sprintf("test-%d", i),
			RequestID: fmt.Sprintf("req-%d", i),
			Kind:      KindRelay,
			Action:    "getClasses",
			Outcome:   OutcomeSuccess,
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(store.getEntries()) < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if got := len(store.getEntries()); got != 5 {
		t.Errorf("expected 5 entries, got %d", got)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}
	if !store.isClosed() {
		t.Error("store should be closed")
	}
}

func TestLoggerCloseFlushesPending(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 10; i++ {
		logger.Write(&Entry{ID: fmt.Sprintf("test-%d", i)})
	}

	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}
	if got := len(store.getEntries()); got != 10 {
		t.Errorf("expected 10 entries after close, got %d", got)
	}
}

func TestLoggerCloseIdempotent(t *testing.T) {
	logger := NewLogger(&mockStore{}, Config{FlushInterval: time.Hour})

	if err := logger.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	// Writes after close are ignored
	logger.Write(&Entry{ID: "late"})
}

func TestLoggerConcurrentWriteAndClose(t *testing.T) {
	const writers, perWriter = 8, 200

	for round := 0; round < 20; round++ {
		store := &mockStore{}
		logger := NewLogger(store, Config{
			BufferSize:    writers*perWriter + 1,
			FlushInterval: time.Hour,
		})
		logger.Write(&Entry{ID: "before-close"})

		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				for i := 0; i < perWriter; i++ {
					logger.Write(&Entry{ID: fmt.Sprintf("w%d-%d", w, i)})
				}
			}(w)
		}

		close(start)
		if err := logger.Close(); err != nil {
			t.Fatalf("round %d: close: %v", round, err)
		}
		wg.Wait()

		entries := store.getEntries()
		if len(entries) == 0 || entries[0].ID != "before-close" {
			t.Fatalf("round %d: entry written before close was lost", round)
		}
		if len(entries) > writers*perWriter+1 {
			t.Fatalf("round %d: got %d entries, more than were written", round, len(entries))
		}
		if got := logger.Dropped(); got != 0 {
			t.Fatalf("round %d: expected no dropped entries, got %d", round, got)
		}
	}
}

func TestLoggerBatchThreshold(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		BufferSize:    BatchFlushThreshold * 2,
		FlushInterval: time.Hour,
	})
	defer logger.Close()

	for i := 0; i < BatchFlushThreshold; i++ {
		logger.Write(&Entry{ID: fmt.Sprintf("test-%d", i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(store.getEntries()) < BatchFlushThreshold && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(store.getEntries()); got != BatchFlushThreshold {
		t.Errorf("expected threshold flush of %d entries, got %d", BatchFlushThreshold, got)
	}
}

func TestLoggerBufferFull(t *testing.T) {
	// no flush loop, so nothing drains the buffer
	store := &mockStore{}
	logger := &Logger{
		store:  store,
		buffer: make(chan *Entry, 2),
		done:   make(chan struct{}),
	}

	for i := 0; i < 10; i++ {
		logger.Write(&Entry{ID: fmt.Sprintf("test-%d", i)})
	}

	if got := logger.Dropped(); got != 8 {
		t.Errorf("expected 8 dropped entries, got %d", got)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}
}

func TestNoopLogger(t *testing.T) {
	logger := &NoopLogger{}

	logger.Write(&Entry{ID: "test"})

	if logger.Config().Enabled {
		t.Error("NoopLogger should report disabled")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NoopLogger close error: %v", err)
	}
}
