// Package awaitable provides a reusable completion cell, a small
// synchronization primitive for handing the result of a single
// asynchronous operation from a producer to a consumer.
//
// A [Cell] cycles through four states. [Cell.Reset] arms it with the
// input of a new operation. The producer claims the input with
// [Cell.TakeInput], does the work, and delivers the result with
// [Cell.Complete]. The consumer registers a [Waker] with
// [Cell.InstallWaker], suspends however it likes, and collects the
// result with [Cell.TakeOutput] once woken. After that the cell can
// be reset and used again without reallocation.
//
// The cell schedules nothing and never blocks: completion invokes the
// stored waker exactly once, after the cell's internal lock has been
// released, so a waker may immediately re-enter the cell. How the
// consumer actually waits is up to the caller; [ChanWaker] covers the
// common case of a goroutine parked on a select.
package awaitable

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
