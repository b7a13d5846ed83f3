package awaitable

import "sync"

type state uint8

const (
	stateUninitialized state = iota
	stateOngoing
	stateComplete
	stateConsumed
)

// A Cell coordinates a single asynchronous operation between a
// producer and a consumer. It holds at most one input and one output
// value at a time, plus at most one [Waker] per operation, all
// guarded by a single mutex. Completing an operation wakes the
// consumer exactly once; the output is retrieved exactly once; a
// reset recycles the cell for the next operation.
//
// The zero value is a valid, uninitialized cell. A Cell must not be
// copied after first use.
type Cell[I, O any] struct {
	_ noCopy

	mu       sync.Mutex
	state    state
	input    I
	hasInput bool
	output   O
	waker    Waker
}

// New returns a new, uninitialized cell. It is equivalent to
// new(Cell[I, O]).
func New[I, O any]() *Cell[I, O] {
	return new(Cell[I, O])
}

// NewArmed returns a new cell already armed with input, as though by
// a call to [Cell.Reset].
func NewArmed[I, O any](input I) *Cell[I, O] {
	c := new(Cell[I, O])
	c.Reset(input)
	return c
}

// Reset arms the cell with the input of a new operation. It succeeds
// from every state, discarding any input, output, or waker still
// stored from the previous operation. A discarded waker is never
// invoked.
func (c *Cell[I, O]) Reset(input I) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drop()
	c.input, c.hasInput = input, true
	c.state = stateOngoing
}

// ResetEmpty arms the cell like [Cell.Reset] but stores no input.
func (c *Cell[I, O]) ResetEmpty() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drop()
	c.state = stateOngoing
}

// InstallWaker stores w to be invoked when the current operation
// completes, replacing any waker stored earlier in the same
// operation. A nil w clears the stored waker.
//
// If the operation has already completed, w is not stored and will
// never be invoked: InstallWaker reports done == true, and the caller
// should collect the output with [Cell.TakeOutput] instead of
// suspending. Checking for a completion that raced ahead and
// registering the waker are a single atomic step, so a wake cannot
// slip between them.
func (c *Cell[I, O]) InstallWaker(w Waker) (done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateUninitialized:
		return false, ErrUninitialized
	case stateConsumed:
		return false, ErrAlreadyConsumed
	case stateComplete:
		return true, nil
	}

	c.waker = w
	return false, nil
}

// TakeInput removes and returns the input stored by the arming reset.
// It returns ok == false if the input was already taken, the cell was
// armed without one, or the operation has completed, which discards
// the input; the input then reads as absent on every call until the
// next reset.
func (c *Cell[I, O]) TakeInput() (input I, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateUninitialized:
		return input, false, ErrUninitialized
	case stateConsumed:
		return input, false, ErrAlreadyConsumed
	case stateComplete:
		return input, false, nil
	}

	if !c.hasInput {
		return input, false, nil
	}
	input = c.input
	var zero I
	c.input, c.hasInput = zero, false
	return input, true, nil
}

// Complete stores output, marks the operation as completed, and
// invokes the waker registered by [Cell.InstallWaker], if any. Untaken
// input is discarded. Completing twice returns [ErrAlreadyComplete]
// and leaves the output from the first call in place.
//
// The waker is invoked after the cell's lock has been released, so it
// may call straight back into the cell without deadlocking.
func (c *Cell[I, O]) Complete(output O) error {
	waker, err := c.complete(output)
	if err != nil {
		return err
	}
	if waker != nil {
		waker.Wake()
	}
	return nil
}

// complete applies the transition to the completed state and returns
// the stored waker for the caller to invoke once c.mu is no longer
// held.
func (c *Cell[I, O]) complete(output O) (Waker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateUninitialized:
		return nil, ErrUninitialized
	case stateConsumed:
		return nil, ErrAlreadyConsumed
	case stateComplete:
		return nil, ErrAlreadyComplete
	}

	waker := c.waker
	c.drop()
	c.output = output
	c.state = stateComplete
	return waker, nil
}

// TakeOutput removes and returns the output delivered by
// [Cell.Complete] and moves the cell to the consumed state. The move
// is unconditional: ok reports whether there was output to take, and
// any payloads still stored are discarded either way.
func (c *Cell[I, O]) TakeOutput() (output O, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateComplete {
		output, ok = c.output, true
	}
	c.drop()
	c.state = stateConsumed
	return output, ok
}

// IsComplete reports whether output has been delivered and not yet
// taken.
func (c *Cell[I, O]) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateComplete
}

// IsConsumed reports whether the output of the most recent operation
// has already been taken.
func (c *Cell[I, O]) IsConsumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateConsumed
}

// drop discards all stored payloads, releasing anything they
// reference. The caller must hold c.mu.
func (c *Cell[I, O]) drop() {
	var zeroI I
	var zeroO O
	c.input, c.hasInput = zeroI, false
	c.output = zeroO
	c.waker = nil
}
