package conn

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

// requestedState is the two-state machine from spec.md §4.4: Waiting holds
// the still-live upgrade request, Done means it has been extracted (or its
// timeout has fired) and the future only exists to be drained from the set
// on the next poll.
type requestedState uint8

const (
	requestedWaiting requestedState = iota
	requestedDone
)

// requestedPoll is the result of polling a requested substream future.
type requestedPoll[OutTag any] struct {
	Pending  bool
	TimedOut bool
	Tag      OutTag
}

// requested is the Requested future from spec.md §4.4: an outbound
// substream request whose timeout clock is already running, waiting for
// the muxer to grant a substream.
type requested[OutU any, OutTag any] struct {
	tag     OutTag
	upgrade OutU
	timer   *clock.Timer

	state          requestedState
	extractedWaker waker.Waker
}

// newRequested starts a request's timeout clock immediately — per spec.md
// §4.1 step 2, "its timeout clock already running" — covering both muxer
// allocation and the negotiation that follows.
func newRequested[OutU any, OutTag any](clk clock.Clock, timeout time.Duration, tag OutTag, upg OutU) *requested[OutU, OutTag] {
	return &requested[OutU, OutTag]{
		tag:     tag,
		upgrade: upg,
		timer:   clk.Timer(timeout),
		state:   requestedWaiting,
	}
}

// poll advances the future one step. Once it reports TimedOut or !Pending
// (i.e. resolved Ok), the caller must remove it from the RequestedSubstreams
// set — it must not be polled again.
func (r *requested[OutU, OutTag]) poll(w waker.Waker) requestedPoll[OutTag] {
	if r.state == requestedDone {
		return requestedPoll[OutTag]{Pending: false}
	}

	select {
	case <-r.timer.C:
		r.state = requestedDone
		return requestedPoll[OutTag]{Pending: false, TimedOut: true, Tag: r.tag}
	default:
	}

	r.extractedWaker = w
	return requestedPoll[OutTag]{Pending: true}
}

// extract atomically transitions Waiting -> Done and returns the request's
// payload. The caller (Connection.Poll, step 8) splices the request out of
// RequestedSubstreams in the same step, so the stashed waker is woken only
// as a safety net for any caller that doesn't.
//
// Calling extract twice is a programmer error, exactly as in spec.md §4.4.
func (r *requested[OutU, OutTag]) extract() (OutTag, *clock.Timer, OutU) {
	if r.state == requestedDone {
		panic("conn: requested substream extracted twice")
	}
	r.state = requestedDone
	if r.extractedWaker != nil {
		r.extractedWaker.Wake()
	}
	return r.tag, r.timer, r.upgrade
}
