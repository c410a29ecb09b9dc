package calllog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteReader implements Reader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite call log reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

func sqliteWhere(params QueryParams) (string, []any) {
	var conds []string
	var args []any
	if !params.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, sqliteTime(params.Since))
	}
	if params.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, params.Kind)
	}
	if params.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, params.Action)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *SQLiteReader) GetSummary(ctx context.Context, params QueryParams) (*Summary, error) {
	where, args := sqliteWhere(params)
	query := `SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN kind = 'upload' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome != 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN redirected THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ns), 0) / 1e6,
			COALESCE(SUM(total_chunks), 0)
		FROM ` + tableName + where

	summary := &Summary{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalCalls, &summary.Uploads, &summary.Failures,
		&summary.Redirected, &summary.AvgDurationMs, &summary.TotalChunksSent,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query call log summary: %w", err)
	}
	return summary, nil
}

func (r *SQLiteReader) GetOutcomes(ctx context.Context, params QueryParams) ([]OutcomeCount, error) {
	where, args := sqliteWhere(params)
	query := `SELECT outcome, COUNT(*) AS n FROM ` + tableName + where +
		` GROUP BY outcome ORDER BY n DESC, outcome`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call log outcomes: %w", err)
	}
	defer rows.Close()

	result := make([]OutcomeCount, 0)
	for rows.Next() {
		var oc OutcomeCount
		if err := rows.Scan(&oc.Outcome, &oc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		result = append(result, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteReader) GetRecent(ctx context.Context, params QueryParams) ([]Entry, error) {
	where, args := sqliteWhere(params)
	query := `SELECT ` + entryColumns + ` FROM ` + tableName + where +
		` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, recentLimit(params.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent calls: %w", err)
	}
	defer rows.Close()

	result := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(
			&e.ID, &e.RequestID, &ts, &e.Kind, &e.Method, &e.Action, &e.Redirected,
			&e.Outcome, &e.Message, &e.DurationNs, &e.UploadID, &e.SessionID, &e.TotalChunks, &e.Digest,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call log row: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call log rows: %w", err)
	}
	return result, nil
}
