package database

import (
	"context"
	"fmt"

	"github.com/arclight-network/al-withdrawals-api/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RegisterWithdrawal creates the withdrawal row for an event known to
// be a withdrawal and returns its id. If a row already exists for the
// event's position the existing id is returned, so concurrent retries
// for the same event all resolve to the same withdrawal. A repeated
// position with a different non-empty tx hash is ErrDuplicateEventKey.
func (db *Database) RegisterWithdrawal(ctx context.Context, key models.EventKey, txHash string) (string, error) {
	collection := db.client.Database(db.databaseName).Collection("withdrawals")

	// The filter's equality clauses carry the composite position into
	// the inserted document.
	filter := eventKeyFilter(key)
	update := bson.D{{
		Key: "$setOnInsert",
		Value: bson.D{
			{Key: "tx_hash", Value: txHash},
		},
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var withdrawal models.Withdrawal
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&withdrawal)
	if err != nil {
		// A concurrent upsert for the same position can race the unique
		// index; the row exists now, so resolve to a plain lookup.
		if mongo.IsDuplicateKeyError(err) {
			if err := collection.FindOne(ctx, filter).Decode(&withdrawal); err != nil {
				return "", fmt.Errorf("failed to look up withdrawal after duplicate key: %w", err)
			}
		} else {
			return "", fmt.Errorf("failed to register withdrawal: %w", err)
		}
	}

	if withdrawal.TxHash != "" && txHash != "" && withdrawal.TxHash != txHash {
		return "", fmt.Errorf("withdrawal at block %d index %d has tx hash %s, got %s: %w",
			key.L2BlockNumber, key.TxNumberInBlock, withdrawal.TxHash, txHash, ErrDuplicateEventKey)
	}

	// Attach the tx hash if it was not known when the row was created.
	if withdrawal.TxHash == "" && txHash != "" {
		guard := append(eventKeyFilter(key), bson.E{Key: "tx_hash", Value: ""})
		result, err := collection.UpdateOne(ctx, guard,
			bson.D{{Key: "$set", Value: bson.D{{Key: "tx_hash", Value: txHash}}}})
		if err != nil {
			return "", fmt.Errorf("failed to attach withdrawal tx hash: %w", err)
		}
		// A concurrent caller may have attached a hash first; the row
		// is only consistent if it attached the same one.
		if result.MatchedCount == 0 {
			current, err := db.WithdrawalByEventKey(ctx, key)
			if err != nil {
				return "", fmt.Errorf("failed to re-read withdrawal after attach miss: %w", err)
			}
			if current.TxHash != txHash {
				return "", fmt.Errorf("withdrawal at block %d index %d has tx hash %s, got %s: %w",
					key.L2BlockNumber, key.TxNumberInBlock, current.TxHash, txHash, ErrDuplicateEventKey)
			}
		}
	}

	return withdrawal.ID.Hex(), nil
}

// WithdrawalByEventKey gets a withdrawal by its originating event's
// composite position.
func (db *Database) WithdrawalByEventKey(ctx context.Context, key models.EventKey) (models.Withdrawal, error) {
	collection := db.client.Database(db.databaseName).Collection("withdrawals")

	var withdrawal models.Withdrawal
	if err := collection.FindOne(ctx, eventKeyFilter(key)).Decode(&withdrawal); err != nil {
		return models.Withdrawal{}, fmt.Errorf("failed to get withdrawal by event key: %w", err)
	}

	return withdrawal, nil
}

// WithdrawalByID gets a withdrawal by its surrogate id.
func (db *Database) WithdrawalByID(ctx context.Context, id string) (models.Withdrawal, error) {
	collection := db.client.Database(db.databaseName).Collection("withdrawals")

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Withdrawal{}, fmt.Errorf("invalid withdrawal id %q: %w", id, err)
	}

	var withdrawal models.Withdrawal
	if err := collection.FindOne(ctx, bson.D{{Key: "_id", Value: objectID}}).Decode(&withdrawal); err != nil {
		return models.Withdrawal{}, fmt.Errorf("failed to get withdrawal by id: %w", err)
	}

	return withdrawal, nil
}
