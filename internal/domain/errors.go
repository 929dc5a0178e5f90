package domain

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrItemNotFound         = errors.New("item not found")
)

// ErrInvalidAmount means the bid amount is not positive or carries more
// fractional digits than the ledger stores.
var ErrInvalidAmount = errors.New("invalid bid amount")

// Concurrency errors
var (
	// ErrPriceConflict means the conditional price update lost against a
	// concurrent writer.
	ErrPriceConflict = errors.New("auction price changed concurrently")
	// ErrPriceContention is returned when bid admission kept losing the
	// conditional update for every allowed attempt.
	ErrPriceContention = errors.New("auction price contention, retry later")
	// ErrAlreadyFinalized means the state compare-and-set found the auction
	// no longer active.
	ErrAlreadyFinalized = errors.New("auction already finalized")
)
