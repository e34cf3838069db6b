package models

// FinalizationData links a withdrawal to the L1 transaction that
// releases its funds. It is stored in a separate collection as the
// finalization attempt may be observed before or long after the
// withdrawal itself.
//
// (L1BatchNumber, L2TxNumberInBlock) must equal the originating
// event's (l2_block_number, tx_number_in_block) for the join to
// resolve. FinalizationTx is nil while the finalizing transaction has
// not been confirmed; it is set at most once and never changes after
// that.
type FinalizationData struct {
	L1BatchNumber     uint64  `json:"l1_batch_number" bson:"l1_batch_number"`
	L2TxNumberInBlock uint64  `json:"l2_tx_number_in_block" bson:"l2_tx_number_in_block"`
	WithdrawalID      string  `json:"withdrawal_id" bson:"withdrawal_id"`
	Sender            string  `json:"sender" bson:"sender"`
	FinalizationTx    *string `json:"finalization_tx" bson:"finalization_tx"`
}
