// Package muxer defines the stream-multiplexer capability the connection
// driver polls: opening and accepting byte-stream substreams over one
// transport connection, plus address-change notification.
//
// The interface is poll-based rather than blocking because the driver's
// priority ladder (spec.md §4.1) and its tests (spec.md §8) depend on exact
// single-call semantics: "ask the muxer for one outbound substream" must be
// something the driver can do once per Poll and walk away from with
// Pending, not a call it blocks inside of. See spec.md §9's design note on
// modeling this as an explicit poll method.
package muxer

import (
	"io"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

// Substream is one logical bidirectional byte stream allocated by the
// muxer.
type Substream interface {
	io.Reader
	io.Writer
	io.Closer
}

// StreamMuxer is the capability set the driver needs from the underlying
// transport connection: poll-inbound, poll-outbound, poll-address-events,
// close.
type StreamMuxer interface {
	// PollOutbound asks for a freshly opened outbound substream. Returns
	// ok=false if none is available yet; w is woken once one is.
	PollOutbound(w waker.Waker) (s Substream, err error, ok bool)

	// PollInbound reports a freshly accepted inbound substream. Returns
	// ok=false if none is available yet; w is woken once one is.
	PollInbound(w waker.Waker) (s Substream, err error, ok bool)

	// PollAddressChange reports an address change event, if one occurred.
	// Returns ok=false otherwise; w is woken on the next event. A non-nil
	// err is a connection-terminal muxer I/O error.
	PollAddressChange(w waker.Waker) (addr ma.Multiaddr, err error, ok bool)

	// Close tears down the muxer and every substream it has allocated.
	Close() error
}
