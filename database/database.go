package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database struct {
	client       *mongo.Client
	databaseName string
	logger       *slog.Logger
}

type DatabaseOpts struct {
	URI          string
	DatabaseName string
	Logger       *slog.Logger
}

const defaultTimeout = 10 * time.Second

func NewDatabase(opts DatabaseOpts) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnecting(10).
		SetServerSelectionTimeout(5 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{
		client:       client,
		databaseName: opts.DatabaseName,
		logger:       opts.Logger,
	}, nil
}

// CreateIndexes creates the unique indexes that enforce the one
// withdrawal per event and one finalization per withdrawal invariants.
// Concurrent duplicate writes resolve against these indexes rather
// than any external locking.
func (db *Database) CreateIndexes(ctx context.Context) error {
	// Events collection indexes
	eventsColl := db.client.Database(db.databaseName).Collection("events")
	_, err := eventsColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "l2_block_number", Value: 1},
				{Key: "tx_number_in_block", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "to_address", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create events indexes: %w", err)
	}

	// Withdrawals collection indexes
	withdrawalsColl := db.client.Database(db.databaseName).Collection("withdrawals")
	_, err = withdrawalsColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "l2_block_number", Value: 1},
				{Key: "tx_number_in_block", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "tx_hash", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create withdrawals indexes: %w", err)
	}

	// Finalization data indexes
	finalizationColl := db.client.Database(db.databaseName).Collection("finalization_data")
	_, err = finalizationColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "withdrawal_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "l1_batch_number", Value: 1},
				{Key: "l2_tx_number_in_block", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "sender", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create finalization_data indexes: %w", err)
	}

	return nil
}
