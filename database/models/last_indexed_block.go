package models

// LastIndexedBlock represents the last indexed block for a given chain.
// It is used to track the last block processed for a given chain so the
// correlator resumes instead of reprocessing when it is restarted.
type LastIndexedBlock struct {
	Chain       string `json:"chain" bson:"chain"`
	BlockNumber uint64 `json:"block_number" bson:"block_number"`
}
