package models

// EventKey is the composite position of an event on L2. It identifies
// an event uniquely across the chain and is the join key between the
// events, withdrawals and finalization_data collections.
type EventKey struct {
	L2BlockNumber   uint64 `json:"l2_block_number" bson:"l2_block_number"`
	TxNumberInBlock uint64 `json:"tx_number_in_block" bson:"tx_number_in_block"`
}

// Event is one L2 to L1 withdrawal-initiation event. Events are
// append-only: once ingested they are never mutated or deleted.
//
// Amount is kept as a decimal string end to end. Token amounts carry
// up to 18 decimal places and must round-trip digit for digit, so the
// value never passes through a float.
type Event struct {
	L2BlockNumber   uint64 `json:"l2_block_number" bson:"l2_block_number"`
	TxNumberInBlock uint64 `json:"tx_number_in_block" bson:"tx_number_in_block"`
	ToAddress       string `json:"to_address" bson:"to_address"`
	L1TokenAddr     string `json:"l1_token_addr" bson:"l1_token_addr"`
	Amount          string `json:"amount" bson:"amount"`
}

// Key returns the event's composite position.
func (e Event) Key() EventKey {
	return EventKey{
		L2BlockNumber:   e.L2BlockNumber,
		TxNumberInBlock: e.TxNumberInBlock,
	}
}
