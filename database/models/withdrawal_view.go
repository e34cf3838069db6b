package models

import "github.com/arclight-network/al-withdrawals-api/types"

// WithdrawalView is one row of an address query result: the
// originating event joined with its withdrawal and, when present, its
// finalization data. FinalizationTx is nil while the withdrawal is
// not finalized; FinalizationStatus carries the explicit tri-state so
// callers never have to infer it from field presence.
type WithdrawalView struct {
	L2BlockNumber      uint64                   `json:"l2_block_number" bson:"l2_block_number"`
	TxNumberInBlock    uint64                   `json:"tx_number_in_block" bson:"tx_number_in_block"`
	ToAddress          string                   `json:"to_address" bson:"to_address"`
	L1TokenAddr        string                   `json:"l1_token_addr" bson:"l1_token_addr"`
	Amount             string                   `json:"amount" bson:"amount"`
	TxHash             string                   `json:"tx_hash" bson:"tx_hash"`
	FinalizationTx     *string                  `json:"finalization_tx" bson:"finalization_tx,omitempty"`
	FinalizationStatus types.FinalizationStatus `json:"finalization_status" bson:"finalization_status,omitempty"`
}
