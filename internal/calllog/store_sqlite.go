package calllog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite binds at most 999 parameters per statement
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 14
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry // 71 entries
)

// sqliteTimeLayout is fixed width so stored timestamps sort and compare as text
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteTime formats t for the timestamp column
func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

const entryColumns = `id, request_id, timestamp, kind, method, action, redirected, outcome,
	message, duration_ns, upload_id, session_id, total_chunks, digest`

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the call_log table if needed and starts the
// retention cleanup loop when retentionDays is positive.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL,
			kind TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			redirected INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			duration_ns INTEGER NOT NULL DEFAULT 0,
			upload_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			total_chunks INTEGER NOT NULL DEFAULT 0,
			digest TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", tableName, err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_call_log_timestamp ON call_log(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_call_log_request_id ON call_log(request_id)",
		"CREATE INDEX IF NOT EXISTS idx_call_log_action ON call_log(action)",
		"CREATE INDEX IF NOT EXISTS idx_call_log_outcome ON call_log(outcome)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch inserts entries, split into statements that fit SQLite's
// parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := min(i+maxEntriesPerBatch, len(entries))
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*columnsPerEntry)

		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			values = append(values,
				e.ID,
				e.RequestID,
				sqliteTime(e.Timestamp),
				e.Kind,
				e.Method,
				e.Action,
				e.Redirected,
				e.Outcome,
				e.Message,
				e.DurationNs,
				e.UploadID,
				e.SessionID,
				e.TotalChunks,
				e.Digest,
			)
		}

		query := `INSERT OR IGNORE INTO ` + tableName + ` (` + entryColumns + `) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert call log batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}

	return nil
}

// Flush is a no-op; writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. The database itself belongs to the
// storage layer.
func (s *SQLiteStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := sqliteTime(time.Now().AddDate(0, 0, -s.retentionDays))

	result, err := s.db.Exec("DELETE FROM "+tableName+" WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to clean up old call log entries", "error", err)
		return
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		slog.Info("cleaned up old call log entries", "deleted", n)
	}
}
