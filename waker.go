package awaitable

// A Waker is the hook through which [Cell.Complete] notifies the
// consumer that output is ready. Wake runs on the completing
// goroutine, so implementations should return quickly and must not
// block.
type Waker interface {
	Wake()
}

// WakeFunc adapts an ordinary function to the [Waker] interface.
type WakeFunc func()

// Wake calls f.
func (f WakeFunc) Wake() { f() }

// ChanWaker returns a [Waker] that performs a non-blocking send of an
// empty struct on ch. With a buffered channel of capacity one the
// wake is never lost, and the completing goroutine is never blocked
// either way.
func ChanWaker(ch chan<- struct{}) Waker {
	return chanWaker(ch)
}

type chanWaker chan<- struct{}

func (c chanWaker) Wake() {
	select {
	case c <- struct{}{}:
	default:
	}
}
