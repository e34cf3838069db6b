package types

// FinalizationStatus represents the different states a withdrawal's
// finalization can be in on L1
type FinalizationStatus string

const (
	// NoAttempt - No finalization attempt has been observed for this withdrawal yet
	NoAttempt FinalizationStatus = "NO_ATTEMPT"

	// Pending - A finalization attempt is in flight and the finalizing
	// transaction has not been confirmed on L1 yet
	Pending FinalizationStatus = "PENDING"

	// Finalized - The finalizing transaction is confirmed and funds are released on L1
	Finalized FinalizationStatus = "FINALIZED"
)
