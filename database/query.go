package database

import (
	"context"
	"fmt"

	"github.com/arclight-network/al-withdrawals-api/database/models"
	"github.com/arclight-network/al-withdrawals-api/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// withdrawalRow is one decoded result of the three-way join: the
// withdrawal with its originating event and, when one exists, its
// finalization record.
type withdrawalRow struct {
	TxHash       string                   `bson:"tx_hash"`
	Event        models.Event             `bson:"event"`
	Finalization *models.FinalizationData `bson:"finalization"`
}

// lookupEventStages joins the originating event onto each withdrawal
// by the composite position. The plain $unwind makes the join inner:
// a withdrawal only resolves through its event, and an event with no
// withdrawal row never surfaces.
func lookupEventStages() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "events"},
			{Key: "let", Value: bson.D{
				{Key: "block", Value: "$l2_block_number"},
				{Key: "index", Value: "$tx_number_in_block"},
			}},
			{Key: "pipeline", Value: mongo.Pipeline{
				{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$l2_block_number", "$$block"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$tx_number_in_block", "$$index"}}},
				}}}}}}},
			}},
			{Key: "as", Value: "event"},
		}}},
		{{Key: "$unwind", Value: bson.D{{Key: "path", Value: "$event"}}}},
	}
}

// lookupFinalizationStages left-joins finalization data onto each
// withdrawal. The join matches both the composite position and the
// withdrawal id, and preserveNullAndEmptyArrays keeps withdrawals with
// no finalization row in the result: a still-pending withdrawal is
// never hidden.
func lookupFinalizationStages() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "finalization_data"},
			{Key: "let", Value: bson.D{
				{Key: "block", Value: "$l2_block_number"},
				{Key: "index", Value: "$tx_number_in_block"},
				{Key: "withdrawalId", Value: bson.D{{Key: "$toString", Value: "$_id"}}},
			}},
			{Key: "pipeline", Value: mongo.Pipeline{
				{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$l1_batch_number", "$$block"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$l2_tx_number_in_block", "$$index"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$withdrawal_id", "$$withdrawalId"}}},
				}}}}}}},
			}},
			{Key: "as", Value: "finalization"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$finalization"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

// withdrawalsForAddressPipeline builds the address query: an address
// matches either the event's destination or the finalization's sender,
// and results come back strictly newest first.
func withdrawalsForAddressPipeline(address string, limit int64) mongo.Pipeline {
	pipeline := lookupEventStages()
	pipeline = append(pipeline, lookupFinalizationStages()...)
	pipeline = append(pipeline, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "event.to_address", Value: address}},
			bson.D{{Key: "finalization.sender", Value: address}},
		}}}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "l2_block_number", Value: -1},
			{Key: "tx_number_in_block", Value: -1},
		}}},
		{{Key: "$limit", Value: limit}},
	}...)
	return pipeline
}

// unfinalizedWithdrawalsPipeline builds the pending scan: withdrawals
// whose finalization row is absent or still unconfirmed, oldest first,
// for the submission side to pick up.
func unfinalizedWithdrawalsPipeline(limit int64) mongo.Pipeline {
	pipeline := lookupFinalizationStages()
	pipeline = append(pipeline, mongo.Pipeline{
		// A missing finalization row and a null finalization_tx both
		// match a null path.
		{{Key: "$match", Value: bson.D{{Key: "finalization.finalization_tx", Value: nil}}}},
	}...)
	pipeline = append(pipeline, lookupEventStages()...)
	pipeline = append(pipeline, mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{
			{Key: "l2_block_number", Value: 1},
			{Key: "tx_number_in_block", Value: 1},
		}}},
		{{Key: "$limit", Value: limit}},
	}...)
	return pipeline
}

func finalizationStatusOf(finalization *models.FinalizationData) types.FinalizationStatus {
	switch {
	case finalization == nil:
		return types.NoAttempt
	case finalization.FinalizationTx == nil:
		return types.Pending
	default:
		return types.Finalized
	}
}

func viewFromRow(row withdrawalRow) models.WithdrawalView {
	view := models.WithdrawalView{
		L2BlockNumber:      row.Event.L2BlockNumber,
		TxNumberInBlock:    row.Event.TxNumberInBlock,
		ToAddress:          row.Event.ToAddress,
		L1TokenAddr:        row.Event.L1TokenAddr,
		Amount:             row.Event.Amount,
		TxHash:             row.TxHash,
		FinalizationStatus: finalizationStatusOf(row.Finalization),
	}
	if row.Finalization != nil {
		view.FinalizationTx = row.Finalization.FinalizationTx
	}
	return view
}

// WithdrawalsForAddress returns the withdrawals relevant to an
// address, newest first. An address is relevant when it is the
// original recipient on L1 or the sender of the finalizing
// transaction. limit is required; the engine never scans unbounded.
func (db *Database) WithdrawalsForAddress(ctx context.Context, address string, limit int64) ([]models.WithdrawalView, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	return db.aggregateWithdrawals(ctx, withdrawalsForAddressPipeline(address, limit))
}

// UnfinalizedWithdrawals returns up to limit withdrawals whose
// finalization has not been confirmed yet, oldest first.
func (db *Database) UnfinalizedWithdrawals(ctx context.Context, limit int64) ([]models.WithdrawalView, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	return db.aggregateWithdrawals(ctx, unfinalizedWithdrawalsPipeline(limit))
}

func (db *Database) aggregateWithdrawals(ctx context.Context, pipeline mongo.Pipeline) ([]models.WithdrawalView, error) {
	collection := db.client.Database(db.databaseName).Collection("withdrawals")

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to execute withdrawals aggregation: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []withdrawalRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode withdrawals: %w", err)
	}

	views := make([]models.WithdrawalView, len(rows))
	for i, row := range rows {
		views[i] = viewFromRow(row)
	}

	return views, nil
}
