package obs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds MongoDB connection configuration for the trace archive.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "api_universe",
		Collection: "run_traces",
	}
}

// MongoArchive stores the full trace document of each run. The Postgres sink
// keeps the flat metrics; the archive keeps the audit trail.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ BackendSink = (*MongoArchive)(nil)

type mongoRun struct {
	ID             string      `bson:"_id"`
	Timestamp      time.Time   `bson:"timestamp"`
	Query          string      `bson:"query"`
	QueryType      string      `bson:"query_type"`
	LatencyMS      int64       `bson:"latency_ms"`
	GroundingScore float64     `bson:"grounding_score"`
	Retries        int         `bson:"retries"`
	Trace          interface{} `bson:"trace,omitempty"`
}

// NewMongoArchive connects and prepares the trace collection.
func NewMongoArchive(cfg *MongoConfig) (*MongoArchive, error) {
	if cfg == nil {
		cfg = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	archive := &MongoArchive{client: client, collection: collection}

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	}
	if _, err := collection.Indexes().CreateOne(context.Background(), indexModel); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return archive, nil
}

// Write archives one run with its full trace.
func (a *MongoArchive) Write(ctx context.Context, rec *RunRecord) error {
	if rec == nil {
		return fmt.Errorf("run record cannot be nil")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var trace interface{}
	if len(rec.Trace) > 0 {
		if err := json.Unmarshal(rec.Trace, &trace); err != nil {
			trace = string(rec.Trace)
		}
	}

	doc := mongoRun{
		ID:             fmt.Sprintf("run:%d", time.Now().UnixNano()),
		Timestamp:      ts,
		Query:          rec.Query,
		QueryType:      rec.QueryType,
		LatencyMS:      rec.LatencyMS,
		GroundingScore: rec.GroundingScore,
		Retries:        rec.Retries,
		Trace:          trace,
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}
	return nil
}

// Count returns the number of archived runs.
func (a *MongoArchive) Count(ctx context.Context) (int64, error) {
	count, err := a.collection.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived runs: %w", err)
	}
	return count, nil
}

// Ping checks if the MongoDB connection is alive.
func (a *MongoArchive) Ping(ctx context.Context) error {
	return a.client.Ping(ctx, nil)
}

// Close disconnects the MongoDB client.
func (a *MongoArchive) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.client.Disconnect(ctx)
}
