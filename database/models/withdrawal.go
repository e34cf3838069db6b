package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Withdrawal is one row per event classified as a withdrawal. The
// surrogate _id is the id finalization_data rows reference; the
// (l2_block_number, tx_number_in_block) pair is the back-reference to
// the originating event and carries a unique index, so there is at
// most one withdrawal per event.
type Withdrawal struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TxHash          string             `json:"tx_hash" bson:"tx_hash"`
	L2BlockNumber   uint64             `json:"l2_block_number" bson:"l2_block_number"`
	TxNumberInBlock uint64             `json:"tx_number_in_block" bson:"tx_number_in_block"`
}

// Key returns the originating event's composite position.
func (w Withdrawal) Key() EventKey {
	return EventKey{
		L2BlockNumber:   w.L2BlockNumber,
		TxNumberInBlock: w.TxNumberInBlock,
	}
}
