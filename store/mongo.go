package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/types"
)

// MongoConfig holds the Mongo archive settings.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
}

// MongoArchive persists run records in a Mongo collection, keyed by run_id.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoArchive connects to Mongo and verifies the connection with a ping.
func NewMongoArchive(cfg MongoConfig, logger *zap.Logger) (*MongoArchive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Database == "" {
		cfg.Database = "augur"
	}
	if cfg.Collection == "" {
		cfg.Collection = "runs"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "archive: mongo connect failed").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, types.NewError(types.ErrProviderUnavailable, "archive: mongo ping failed").WithCause(err)
	}

	a := &MongoArchive{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.With(zap.String("component", "mongo_archive")),
	}
	a.logger.Info("mongo archive connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return a, nil
}

// Save upserts the record by run_id.
func (a *MongoArchive) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.RunID == "" {
		return types.NewError(types.ErrInvalidRequest, "archive: record needs a run id")
	}
	filter := bson.M{"run_id": rec.RunID}
	_, err := a.collection.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return types.NewError(types.ErrUpstreamError, "archive: mongo save failed").WithRetryable(true).WithCause(err)
	}
	return nil
}

// Get loads the record for a run.
func (a *MongoArchive) Get(ctx context.Context, runID string) (*Record, error) {
	var rec Record
	err := a.collection.FindOne(ctx, bson.M{"run_id": runID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewError(types.ErrRunNotFound, "archive: no record for run "+runID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "archive: mongo lookup failed").WithRetryable(true).WithCause(err)
	}
	return &rec, nil
}

// Close disconnects the underlying client.
func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
