package valuation

import "errors"

var (
	// ErrInvalidOperation is returned for an operation that cannot be recorded.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrOversell is returned when a sell exceeds the quantity held at its date.
	ErrOversell = errors.New("sell exceeds held quantity")
	// ErrInvalidGoal is returned for a goal that cannot be evaluated.
	ErrInvalidGoal = errors.New("invalid goal")
	// ErrUnknownAsset is returned when an asset id is not in the repository.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)
