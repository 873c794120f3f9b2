// Package handler defines the contract between a Connection driver and the
// per-connection application logic that drives it.
//
// A ConnectionHandler is the only collaborator the driver calls into that is
// expected to carry application state. Everything the handler needs to know
// about the wire arrives through OnConnectionEvent; everything it wants to
// push onto the wire leaves through the return value of Poll.
package handler

import (
	"time"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/upgrade"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

// KeepAlive expresses whether a handler still needs its connection.
type KeepAlive struct {
	kind  keepAliveKind
	until time.Time
}

type keepAliveKind uint8

const (
	keepAliveYes keepAliveKind = iota
	keepAliveNo
	keepAliveUntil
)

// KeepAliveYes keeps the connection (and handler) alive indefinitely.
func KeepAliveYes() KeepAlive { return KeepAlive{kind: keepAliveYes} }

// KeepAliveNo requests the connection be shut down as soon as it is idle.
func KeepAliveNo() KeepAlive { return KeepAlive{kind: keepAliveNo} }

// KeepAliveUntil keeps the connection alive until the given instant.
func KeepAliveUntil(t time.Time) KeepAlive { return KeepAlive{kind: keepAliveUntil, until: t} }

// IsYes reports whether the handler wants to stay up indefinitely.
func (k KeepAlive) IsYes() bool { return k.kind == keepAliveYes }

// IsNo reports whether the handler wants to shut down as soon as possible.
func (k KeepAlive) IsNo() bool { return k.kind == keepAliveNo }

// Until returns the deadline and true if this is a KeepAliveUntil value.
func (k KeepAlive) Until() (time.Time, bool) {
	return k.until, k.kind == keepAliveUntil
}

// SubstreamProtocol bundles the Upgrade a handler wants applied to a
// substream (inbound or outbound) — which also carries the protocol names
// it's willing to negotiate, via Upgrade.ProtocolInfo() — with a user tag
// it will get back once the substream resolves, and the timeout the
// negotiation must complete within.
type SubstreamProtocol[Tag any, Output any] struct {
	Upgrade upgrade.Upgrade[Output]
	Tag     Tag
	Timeout time.Duration
}

// NewSubstreamProtocol builds a SubstreamProtocol with a default timeout.
// Use WithTimeout to override it.
func NewSubstreamProtocol[Tag any, Output any](u upgrade.Upgrade[Output], tag Tag) SubstreamProtocol[Tag, Output] {
	return SubstreamProtocol[Tag, Output]{Upgrade: u, Tag: tag, Timeout: 10 * time.Second}
}

// WithTimeout returns a copy of p with its timeout replaced.
func (p SubstreamProtocol[Tag, Output]) WithTimeout(d time.Duration) SubstreamProtocol[Tag, Output] {
	p.Timeout = d
	return p
}

// EventKind discriminates the variants of Event.
type EventKind uint8

const (
	// EventOutboundSubstreamRequest asks the driver to obtain a new outbound
	// substream from the muxer and negotiate it.
	EventOutboundSubstreamRequest EventKind = iota
	// EventCustom carries an opaque handler-defined event up to the caller.
	EventCustom
	// EventClose tells the driver the connection must terminate; Err is the
	// terminal handler error surfaced to the caller as ConnectionError.
	EventClose
)

// Event is the sum type returned by ConnectionHandler.Poll.
//
// Exactly one of {OutboundRequest, Custom, Err} is meaningful, selected by
// Kind. This mirrors ConnectionHandlerEvent in spec.md §4.2.
type Event[OutTag any, Output any, Custom any, Err any] struct {
	Kind            EventKind
	OutboundRequest SubstreamProtocol[OutTag, Output]
	Custom          Custom
	Err             Err
}

// OutboundSubstreamRequest builds an EventOutboundSubstreamRequest event.
func OutboundSubstreamRequest[OutTag any, Output any, Custom any, Err any](p SubstreamProtocol[OutTag, Output]) Event[OutTag, Output, Custom, Err] {
	return Event[OutTag, Output, Custom, Err]{Kind: EventOutboundSubstreamRequest, OutboundRequest: p}
}

// CustomEvent builds an EventCustom event.
func CustomEvent[OutTag any, Output any, Custom any, Err any](c Custom) Event[OutTag, Output, Custom, Err] {
	return Event[OutTag, Output, Custom, Err]{Kind: EventCustom, Custom: c}
}

// CloseEvent builds an EventClose event.
func CloseEvent[OutTag any, Output any, Custom any, Err any](err Err) Event[OutTag, Output, Custom, Err] {
	return Event[OutTag, Output, Custom, Err]{Kind: EventClose, Err: err}
}

// ConnectionHandler is the per-connection application state machine. The
// driver owns exactly one instance per Connection and is the only caller
// that ever touches it.
//
// InTag/OutTag are the user tags threaded back to the handler on
// negotiation outcomes; Output is what a successfully negotiated substream
// becomes (see upgrade.Upgrade) before the handler receives it; Custom is
// the handler's opaque event type; Err is its terminal error type.
type ConnectionHandler[InTag any, OutTag any, Output any, Custom any, Err any] interface {
	// Poll must be non-blocking: it inspects and mutates handler-internal
	// state and returns immediately, reporting Pending via ok=false. w is
	// the driver's waker; a handler with its own async sources should stash
	// it and call w.Wake() once it has something new to report.
	Poll(w waker.Waker) (ev Event[OutTag, Output, Custom, Err], ok bool)

	// OnBehaviourEvent delivers an event from the layer above the driver.
	// Synchronous: the handler observes it before the next Poll call.
	OnBehaviourEvent(event any)

	// OnConnectionEvent delivers a driver-observed outcome (negotiation
	// result, address change, protocol-set change) to the handler.
	OnConnectionEvent(event ConnectionEvent[InTag, OutTag, Output])

	// ListenProtocol returns the handler's current inbound upgrade, user
	// tag and timeout. May change between calls; the driver detects
	// protocol-set changes by diffing Upgrade.ProtocolInfo().
	ListenProtocol() SubstreamProtocol[InTag, Output]

	// ConnectionKeepAlive reports whether the handler still needs the
	// connection. Read after every Poll call.
	ConnectionKeepAlive() KeepAlive
}
