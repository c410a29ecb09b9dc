//go:build integration

// Package dbassert provides helpers that read call log rows straight from
// the database for integration test assertions.
package dbassert

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CallLogEntry mirrors calllog.Entry for test assertions.
type CallLogEntry struct {
	ID          string    `bson:"_id"`
	RequestID   string    `bson:"request_id"`
	Timestamp   time.Time `bson:"timestamp"`
	Kind        string    `bson:"kind"`
	Method      string    `bson:"method"`
	Action      string    `bson:"action"`
	Redirected  bool      `bson:"redirected"`
	Outcome     string    `bson:"outcome"`
	Message     string    `bson:"message"`
	DurationNs  int64     `bson:"duration_ns"`
	UploadID    string    `bson:"upload_id"`
	SessionID   string    `bson:"session_id"`
	TotalChunks int       `bson:"total_chunks"`
	Digest      string    `bson:"digest"`
}

// QueryCallLogByRequestID queries call log entries by request ID from PostgreSQL.
func QueryCallLogByRequestID(t *testing.T, pool *pgxpool.Pool, requestID string) []CallLogEntry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id::text, request_id, timestamp, kind, method, action, redirected,
		       outcome, message, duration_ns, upload_id, session_id, total_chunks, digest
		FROM call_log
		WHERE request_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := pool.Query(ctx, query, requestID)
	require.NoError(t, err, "failed to query call log entries")
	defer rows.Close()

	var entries []CallLogEntry
	for rows.Next() {
		var entry CallLogEntry
		err := rows.Scan(
			&entry.ID, &entry.RequestID, &entry.Timestamp, &entry.Kind, &entry.Method,
			&entry.Action, &entry.Redirected, &entry.Outcome, &entry.Message, &entry.DurationNs,
			&entry.UploadID, &entry.SessionID, &entry.TotalChunks, &entry.Digest,
		)
		require.NoError(t, err, "failed to scan call log row")
		entries = append(entries, entry)
	}
	require.NoError(t, rows.Err(), "error iterating call log rows")

	return entries
}

// QueryCallLogByRequestIDMongo queries call log entries by request ID from MongoDB.
func QueryCallLogByRequestIDMongo(t *testing.T, db *mongo.Database, requestID string) []CallLogEntry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := db.Collection("call_log")
	cursor, err := collection.Find(ctx, bson.M{"request_id": requestID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	require.NoError(t, err, "failed to query call log entries from MongoDB")
	defer func() { _ = cursor.Close(ctx) }()

	var entries []CallLogEntry
	require.NoError(t, cursor.All(ctx, &entries), "failed to decode call log entries")
	return entries
}
