package calllog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the call_log table if needed and starts the
// retention cleanup loop when retentionDays is positive.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			redirected BOOLEAN NOT NULL DEFAULT FALSE,
			outcome TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			duration_ns BIGINT NOT NULL DEFAULT 0,
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
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch inserts entries in one transaction using a pgx batch.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO `+tableName+` (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.RequestID, e.Timestamp, e.Kind, e.Method, e.Action, e.Redirected,
			e.Outcome, e.Message, e.DurationNs, e.UploadID, e.SessionID, e.TotalChunks, e.Digest)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert %d call log entries: %w", len(entries), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Flush is a no-op; writes are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. The pool belongs to the storage layer.
func (s *PostgreSQLStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

func (s *PostgreSQLStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	result, err := s.pool.Exec(ctx, "DELETE FROM "+tableName+" WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to clean up old call log entries", "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		slog.Info("cleaned up old call log entries", "deleted", result.RowsAffected())
	}
}
