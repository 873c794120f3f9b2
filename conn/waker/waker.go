// Package waker provides the single synchronization primitive the
// connection driver and its collaborators (handler, muxer, upgrade) use to
// signal "something may have changed, poll me again" without busy-looping.
//
// A Waker is a buffered channel of capacity 1: Wake is a non-blocking send,
// so any number of wakers firing between two polls collapses into a single
// pending notification, exactly like std::task::Waker::wake in the source
// this package's contract is modeled on.
package waker

// Waker is shared by the driver (which selects on it when nothing else is
// ready) and its collaborators (which hold onto it and call Wake once they
// have something new to report).
type Waker chan struct{}

// New returns a fresh, empty Waker.
func New() Waker {
	return make(Waker, 1)
}

// Wake schedules a wakeup. Safe to call from any goroutine, any number of
// times; excess wakeups are coalesced.
func (w Waker) Wake() {
	select {
	case w <- struct{}{}:
	default:
	}
}

// C exposes the underlying channel for use in a select statement.
func (w Waker) C() <-chan struct{} {
	return w
}
