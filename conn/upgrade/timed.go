package upgrade

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Timed is the per-substream timed upgrade future described in spec.md
// §4.3: it polls its timeout first, then the underlying negotiation; once
// resolved it must never be polled again.
//
// It owns stream for as long as negotiation is in flight: on timeout or
// negotiation failure it closes stream itself, which both releases the
// muxer-side resource and unblocks the background goroutine's blocked
// Read/Write (the same close-to-cancel idiom net.Conn callers rely on).
// On success, ownership of the Output passes to whoever receives the
// FullyNegotiated event; Timed does not close it.
type Timed[Tag any, Output any] struct {
	tag      Tag
	timer    *clock.Timer
	stream   Stream
	result   chan timedResult[Output]
	resolved bool
}

type timedResult[Output any] struct {
	info   Info
	output Output
	err    error
}

// NewOutboundTimed starts negotiating up's protocols on stream as an
// outbound upgrade, applying version, with a timeout that starts ticking
// now (not when this is first polled — the clock is armed at construction).
func NewOutboundTimed[Tag any, Output any](clk clock.Clock, tag Tag, timeout time.Duration, stream Stream, up OutboundUpgrade[Output], version Version) *Timed[Tag, Output] {
	return newOutboundTimed(clk.Timer(timeout), tag, stream, up, version)
}

// NewOutboundTimedFromTimer is NewOutboundTimed for a request whose timeout
// clock is already running (a Requested future extracted after allocation):
// it reuses timer instead of arming a fresh one, so the timeout spans both
// the wait for a muxer-granted substream and the negotiation that follows,
// exactly as spec.md §4.1 step 2 requires.
func NewOutboundTimedFromTimer[Tag any, Output any](timer *clock.Timer, tag Tag, stream Stream, up OutboundUpgrade[Output], version Version) *Timed[Tag, Output] {
	return newOutboundTimed(timer, tag, stream, up, version)
}

func newOutboundTimed[Tag any, Output any](timer *clock.Timer, tag Tag, stream Stream, up OutboundUpgrade[Output], version Version) *Timed[Tag, Output] {
	t := &Timed[Tag, Output]{
		tag:    tag,
		timer:  timer,
		stream: stream,
		result: make(chan timedResult[Output], 1),
	}
	go func() {
		info, out, err := NegotiateOutbound(context.Background(), stream, up, version)
		t.result <- timedResult[Output]{info: info, output: out, err: err}
	}()
	return t
}

// NewInboundTimed starts negotiating up's protocols on stream as an inbound
// upgrade, with a timeout that starts ticking now.
func NewInboundTimed[Tag any, Output any](clk clock.Clock, tag Tag, timeout time.Duration, stream Stream, up InboundUpgrade[Output]) *Timed[Tag, Output] {
	t := &Timed[Tag, Output]{
		tag:    tag,
		timer:  clk.Timer(timeout),
		stream: stream,
		result: make(chan timedResult[Output], 1),
	}
	go func() {
		info, out, err := NegotiateInbound(context.Background(), stream, up)
		t.result <- timedResult[Output]{info: info, output: out, err: err}
	}()
	return t
}

// Poll reports whether the upgrade has resolved. On the first Ready result
// it stops the timer (best-effort; an already-fired timer is harmless to
// stop again) and returns the tag exactly once — Poll must not be called
// again after ok==true. On timeout or negotiation failure it also closes
// the substream; on success the substream (or whatever Output wraps it)
// passes to the caller unclosed.
func (t *Timed[Tag, Output]) Poll() (tag Tag, info Info, output Output, upgErr *Error, ok bool) {
	if t.resolved {
		panic("upgrade.Timed: polled again after resolving")
	}

	var zero Output

	select {
	case <-t.timer.C:
		t.resolved = true
		t.stream.Close()
		e := TimeoutErr()
		return t.tag, nil, zero, &e, true
	default:
	}

	select {
	case res := <-t.result:
		t.timer.Stop()
		t.resolved = true
		if res.err != nil {
			t.stream.Close()
			e := Failed(res.err)
			return t.tag, nil, zero, &e, true
		}
		return t.tag, res.info, res.output, nil, true
	default:
		return tag, nil, zero, nil, false
	}
}
