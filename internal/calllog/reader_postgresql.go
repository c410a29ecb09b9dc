package calllog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLReader implements Reader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL call log reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

func pgWhere(params QueryParams) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+" $"+strconv.Itoa(len(args)))
	}
	if !params.Since.IsZero() {
		add("timestamp >=", params.Since.UTC())
	}
	if params.Kind != "" {
		add("kind =", params.Kind)
	}
	if params.Action != "" {
		add("action =", params.Action)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PostgreSQLReader) GetSummary(ctx context.Context, params QueryParams) (*Summary, error) {
	where, args := pgWhere(params)
	query := `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'upload'),
			COUNT(*) FILTER (WHERE outcome <> 'success'),
			COUNT(*) FILTER (WHERE redirected),
			COALESCE(AVG(duration_ns), 0)::float8 / 1e6,
			COALESCE(SUM(total_chunks), 0)
		FROM ` + tableName + where

	summary := &Summary{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalCalls, &summary.Uploads, &summary.Failures,
		&summary.Redirected, &summary.AvgDurationMs, &summary.TotalChunksSent,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query call log summary: %w", err)
	}
	return summary, nil
}

func (r *PostgreSQLReader) GetOutcomes(ctx context.Context, params QueryParams) ([]OutcomeCount, error) {
	where, args := pgWhere(params)
	query := `SELECT outcome, COUNT(*) AS n FROM ` + tableName + where +
		` GROUP BY outcome ORDER BY n DESC, outcome`

	rows, err := r.pool.Query(ctx, query, args...)
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

func (r *PostgreSQLReader) GetRecent(ctx context.Context, params QueryParams) ([]Entry, error) {
	where, args := pgWhere(params)
	args = append(args, recentLimit(params.Limit))
	query := `SELECT id::text, request_id, timestamp, kind, method, action, redirected, outcome,
			message, duration_ns, upload_id, session_id, total_chunks, digest
		FROM ` + tableName + where + ` ORDER BY timestamp DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent calls: %w", err)
	}
	defer rows.Close()

	result := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Timestamp, &e.Kind, &e.Method, &e.Action, &e.Redirected,
			&e.Outcome, &e.Message, &e.DurationNs, &e.UploadID, &e.SessionID, &e.TotalChunks, &e.Digest,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call log row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call log rows: %w", err)
	}
	return result, nil
}
