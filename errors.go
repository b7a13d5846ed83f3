package awaitable

import "errors"

var (
	// ErrUninitialized is returned by operations on a cell that has
	// not been armed by a reset yet.
	ErrUninitialized = errors.New("awaitable: cell is not initialized yet")

	// ErrAlreadyConsumed is returned by operations on a cell whose
	// output has already been taken.
	ErrAlreadyConsumed = errors.New("awaitable: output was already consumed")

	// ErrAlreadyComplete is returned by [Cell.Complete] when the
	// current operation has already completed.
	ErrAlreadyComplete = errors.New("awaitable: cell was already completed")
)
