package database

import "errors"

var (
	// ErrDuplicateEventKey is returned when an event or withdrawal is
	// written twice under the same (l2_block_number, tx_number_in_block)
	// position with an inconsistent payload. Plain redelivery of an
	// identical record is not an error.
	ErrDuplicateEventKey = errors.New("duplicate event key with conflicting payload")

	// ErrFinalizationConflict is returned when a second, different
	// finalizing transaction is confirmed for an already finalized
	// withdrawal. The stored hash is never overwritten.
	ErrFinalizationConflict = errors.New("withdrawal already finalized by a different transaction")

	// ErrUnknownWithdrawal is returned when a finalization confirmation
	// arrives for a withdrawal with no pending finalization record.
	ErrUnknownWithdrawal = errors.New("no finalization record for withdrawal")

	// ErrInvalidLimit is returned by queries when the required limit is
	// missing or not positive. Queries never run unbounded.
	ErrInvalidLimit = errors.New("limit must be a positive integer")

	// ErrMissingAddress is returned by address queries when no address
	// is given.
	ErrMissingAddress = errors.New("address is required")
)
