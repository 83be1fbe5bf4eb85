package market

import "errors"

var (
	// ErrInvalidInput is returned when a required value is missing or malformed,
	// e.g. an absent spot or rate before a solve, or a pair mismatch.
	ErrInvalidInput = errors.New("invalid input")

	// ErrZeroOrNegativeWindow is returned when a year fraction is <= 0
	// (settlement on or before spot date, expiry on or before value date).
	ErrZeroOrNegativeWindow = errors.New("zero or negative window")

	// ErrSpreadInversion is returned when a reconstructed two-way ends with bid > ask.
	ErrSpreadInversion = errors.New("spread inversion")

	// ErrInconsistentSnapshot signals a broken internal invariant. It is a
	// programming error and is never expected in normal operation.
	ErrInconsistentSnapshot = errors.New("inconsistent snapshot")
)
