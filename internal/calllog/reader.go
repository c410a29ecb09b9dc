package calllog

import (
	"context"
	"fmt"
	"time"

	"classrelay/internal/storage"
)

// DefaultRecentLimit bounds GetRecent when no limit is given.
const DefaultRecentLimit = 50

// MaxRecentLimit is the largest page GetRecent returns.
const MaxRecentLimit = 500

// QueryParams filters call log reads. Zero values mean no filter.
type QueryParams struct {
	// Since is the inclusive lower bound on Timestamp
	Since  time.Time
	Kind   string
	Action string
	// Limit applies to GetRecent only
	Limit int
}

// Summary holds aggregated call statistics over a time window.
type Summary struct {
	TotalCalls      int64   `json:"total_calls"`
	Uploads         int64   `json:"uploads"`
	Failures        int64   `json:"failures"`
	Redirected      int64   `json:"redirected"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	TotalChunksSent int64   `json:"total_chunks_sent"`
}

// OutcomeCount is the number of calls that ended with one outcome.
type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// Reader provides read access to the call log for the admin API.
type Reader interface {
	// GetSummary returns aggregated statistics for calls matching params.
	GetSummary(ctx context.Context, params QueryParams) (*Summary, error)

	// GetOutcomes returns call counts grouped by outcome, most frequent first.
	GetOutcomes(ctx context.Context, params QueryParams) ([]OutcomeCount, error)

	// GetRecent returns the newest entries matching params.
	GetRecent(ctx context.Context, params QueryParams) ([]Entry, error)
}

// NewReader creates a Reader for the given storage backend.
func NewReader(store storage.Storage) (Reader, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteReader(store.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLReader(store.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBReader(store.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func recentLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
