package database

import (
	"context"
	"fmt"

	"github.com/arclight-network/al-withdrawals-api/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func eventKeyFilter(key models.EventKey) bson.D {
	return bson.D{
		{Key: "l2_block_number", Value: key.L2BlockNumber},
		{Key: "tx_number_in_block", Value: key.TxNumberInBlock},
	}
}

// CreateEvent appends one withdrawal-initiation event. Redelivery of
// an identical event is a no-op; the same position with a different
// payload is ErrDuplicateEventKey.
func (db *Database) CreateEvent(ctx context.Context, event models.Event) error {
	collection := db.client.Database(db.databaseName).Collection("events")

	_, err := collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, ferr := db.EventByKey(ctx, event.Key())
			if ferr != nil {
				return fmt.Errorf("failed to look up event after duplicate key: %w", ferr)
			}
			if existing != event {
				return fmt.Errorf("event at block %d index %d: %w",
					event.L2BlockNumber, event.TxNumberInBlock, ErrDuplicateEventKey)
			}
			return nil
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// BatchCreateEvents appends multiple events in one write. Duplicate
// positions already in the log are skipped, matching retried ingestion
// batches that partially overlap previous ones.
func (db *Database) BatchCreateEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	collection := db.client.Database(db.databaseName).Collection("events")
	documents := make([]interface{}, len(events))
	for i, event := range events {
		documents[i] = event
	}

	_, err := collection.InsertMany(ctx, documents, options.InsertMany().SetOrdered(false))
	if err != nil {
		// Check if the error is due to duplicate keys
		if writeErr, ok := err.(mongo.BulkWriteException); ok {
			successfulInserts := len(events) - len(writeErr.WriteErrors)
			if successfulInserts > 0 {
				db.logger.Info("partially inserted events",
					"successful", successfulInserts,
					"failed", len(writeErr.WriteErrors))
			}
			// If all errors are duplicate key errors, don't return an error
			allDuplicates := true
			for _, writeErr := range writeErr.WriteErrors {
				if writeErr.Code != 11000 { // 11000 is MongoDB's duplicate key error code
					allDuplicates = false
					break
				}
			}
			if allDuplicates {
				return nil
			}
		}
		return fmt.Errorf("failed to insert events: %w", err)
	}

	return nil
}

// EventByKey gets an event by its composite position.
func (db *Database) EventByKey(ctx context.Context, key models.EventKey) (models.Event, error) {
	collection := db.client.Database(db.databaseName).Collection("events")

	var event models.Event
	if err := collection.FindOne(ctx, eventKeyFilter(key)).Decode(&event); err != nil {
		return models.Event{}, fmt.Errorf("failed to get event by key: %w", err)
	}

	return event, nil
}
