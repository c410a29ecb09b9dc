package calllog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBReader implements Reader for MongoDB.
type MongoDBReader struct {
	collection *mongo.Collection
}

// NewMongoDBReader creates a new MongoDB call log reader.
func NewMongoDBReader(database *mongo.Database) (*MongoDBReader, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBReader{collection: database.Collection(tableName)}, nil
}

func mongoFilter(params QueryParams) bson.D {
	filter := bson.D{}
	if !params.Since.IsZero() {
		filter = append(filter, bson.E{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: params.Since.UTC()}}})
	}
	if params.Kind != "" {
		filter = append(filter, bson.E{Key: "kind", Value: params.Kind})
	}
	if params.Action != "" {
		filter = append(filter, bson.E{Key: "action", Value: params.Action})
	}
	return filter
}

func (r *MongoDBReader) GetSummary(ctx context.Context, params QueryParams) (*Summary, error) {
	countIf := func(cond any) bson.D {
		return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{cond, 1, 0}}}}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mongoFilter(params)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total_calls", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "uploads", Value: countIf(bson.D{{Key: "$eq", Value: bson.A{"$kind", KindUpload}}})},
			{Key: "failures", Value: countIf(bson.D{{Key: "$ne", Value: bson.A{"$outcome", OutcomeSuccess}}})},
			{Key: "redirected", Value: countIf("$redirected")},
			{Key: "avg_duration_ns", Value: bson.D{{Key: "$avg", Value: "$duration_ns"}}},
			{Key: "total_chunks", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$total_chunks", 0}}}}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate call log summary: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var rows []struct {
		TotalCalls    int64   `bson:"total_calls"`
		Uploads       int64   `bson:"uploads"`
		Failures      int64   `bson:"failures"`
		Redirected    int64   `bson:"redirected"`
		AvgDurationNs float64 `bson:"avg_duration_ns"`
		TotalChunks   int64   `bson:"total_chunks"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode call log summary: %w", err)
	}

	summary := &Summary{}
	if len(rows) > 0 {
		row := rows[0]
		summary.TotalCalls = row.TotalCalls
		summary.Uploads = row.Uploads
		summary.Failures = row.Failures
		summary.Redirected = row.Redirected
		summary.AvgDurationMs = row.AvgDurationNs / 1e6
		summary.TotalChunksSent = row.TotalChunks
	}
	return summary, nil
}

func (r *MongoDBReader) GetOutcomes(ctx context.Context, params QueryParams) ([]OutcomeCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mongoFilter(params)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$outcome"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate call log outcomes: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var rows []struct {
		Outcome string `bson:"_id"`
		Count   int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode call log outcomes: %w", err)
	}

	result := make([]OutcomeCount, 0, len(rows))
	for _, row := range rows {
		result = append(result, OutcomeCount{Outcome: row.Outcome, Count: row.Count})
	}
	return result, nil
}

func (r *MongoDBReader) GetRecent(ctx context.Context, params QueryParams) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(recentLimit(params.Limit)))

	cursor, err := r.collection.Find(ctx, mongoFilter(params), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent calls: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	result := make([]Entry, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode call log entries: %w", err)
	}
	return result, nil
}
