package awaitable

// MustInstallWaker is like [Cell.InstallWaker] but panics with the
// error instead of returning it. The Must variants suit programs that
// treat cell misuse as a bug to fail loudly on rather than a
// condition to handle; a caller should pick one surface, plain or
// strict, and use it consistently.
func (c *Cell[I, O]) MustInstallWaker(w Waker) (done bool) {
	done, err := c.InstallWaker(w)
	if err != nil {
		panic(err)
	}
	return done
}

// MustTakeInput is like [Cell.TakeInput] but panics with the error
// instead of returning it.
func (c *Cell[I, O]) MustTakeInput() (input I, ok bool) {
	input, ok, err := c.TakeInput()
	if err != nil {
		panic(err)
	}
	return input, ok
}

// MustComplete is like [Cell.Complete] but panics with the error
// instead of returning it.
func (c *Cell[I, O]) MustComplete(output O) {
	if err := c.Complete(output); err != nil {
		panic(err)
	}
}
