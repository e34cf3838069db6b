package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/arclight-network/al-withdrawals-api/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordFinalizationAttempt creates the pending finalization row for a
// withdrawal if none exists. The row is created with a null
// finalization_tx; re-recording an attempt for the same withdrawal is
// a no-op.
func (db *Database) RecordFinalizationAttempt(ctx context.Context, withdrawalID string, sender string, key models.EventKey) error {
	collection := db.client.Database(db.databaseName).Collection("finalization_data")

	// The filter's equality clause carries withdrawal_id into the
	// inserted document.
	filter := bson.D{{Key: "withdrawal_id", Value: withdrawalID}}
	update := bson.D{{
		Key: "$setOnInsert",
		Value: bson.D{
			{Key: "l1_batch_number", Value: key.L2BlockNumber},
			{Key: "l2_tx_number_in_block", Value: key.TxNumberInBlock},
			{Key: "sender", Value: sender},
			{Key: "finalization_tx", Value: nil},
		},
	}}

	_, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// Two attempts racing the upsert both land on the unique
		// withdrawal_id index; the loser is a no-op.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to record finalization attempt: %w", err)
	}

	return nil
}

// ConfirmFinalization sets the finalizing transaction for a
// withdrawal's pending finalization row. The update is guarded so the
// transition is monotonic: confirming with the same hash again is a
// no-op, a different hash on an already finalized row is
// ErrFinalizationConflict, and a confirmation with no pending row is
// ErrUnknownWithdrawal.
func (db *Database) ConfirmFinalization(ctx context.Context, withdrawalID string, txHash string) error {
	collection := db.client.Database(db.databaseName).Collection("finalization_data")

	filter := bson.D{
		{Key: "withdrawal_id", Value: withdrawalID},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "finalization_tx", Value: nil}},
			bson.D{{Key: "finalization_tx", Value: txHash}},
		}},
	}
	update := bson.D{{
		Key:   "$set",
		Value: bson.D{{Key: "finalization_tx", Value: txHash}},
	}}

	// A pending row can land between a guarded miss and the follow-up
	// read; one more pass over the guard settles it.
	for attempt := 0; attempt < 2; attempt++ {
		result, err := collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to confirm finalization: %w", err)
		}
		if result.MatchedCount > 0 {
			return nil
		}

		existing, err := db.FinalizationByWithdrawalID(ctx, withdrawalID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return fmt.Errorf("withdrawal %s: %w", withdrawalID, ErrUnknownWithdrawal)
			}
			return fmt.Errorf("failed to look up finalization after guarded update: %w", err)
		}
		switch {
		case existing.FinalizationTx == nil:
			continue
		case *existing.FinalizationTx == txHash:
			return nil
		default:
			return fmt.Errorf("withdrawal %s finalized by %s, got %s: %w",
				withdrawalID, *existing.FinalizationTx, txHash, ErrFinalizationConflict)
		}
	}

	return fmt.Errorf("failed to confirm finalization for withdrawal %s after retry", withdrawalID)
}

// FinalizationByWithdrawalID gets a finalization record by the id of
// the withdrawal it belongs to.
func (db *Database) FinalizationByWithdrawalID(ctx context.Context, withdrawalID string) (models.FinalizationData, error) {
	collection := db.client.Database(db.databaseName).Collection("finalization_data")

	filter := bson.D{{Key: "withdrawal_id", Value: withdrawalID}}

	var finalization models.FinalizationData
	if err := collection.FindOne(ctx, filter).Decode(&finalization); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.FinalizationData{}, err
		}
		return models.FinalizationData{}, fmt.Errorf("failed to get finalization by withdrawal id: %w", err)
	}

	return finalization, nil
}
