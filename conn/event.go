package conn

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// EventKind discriminates the variants of Event.
type EventKind uint8

const (
	// EventHandler carries an opaque event the handler asked to surface.
	EventHandler EventKind = iota
	// EventAddressChange reports the remote address changed.
	EventAddressChange
)

// Event is returned by Connection.Poll on progress the caller (the
// surrounding pool) needs to observe.
type Event[T any] struct {
	Kind       EventKind
	Handler    T
	NewAddress ma.Multiaddr
}

// HandlerEvent builds an EventHandler Event.
func HandlerEvent[T any](v T) Event[T] {
	return Event[T]{Kind: EventHandler, Handler: v}
}

// AddressChangeEvent builds an EventAddressChange Event.
func AddressChangeEvent[T any](addr ma.Multiaddr) Event[T] {
	return Event[T]{Kind: EventAddressChange, NewAddress: addr}
}

// ConnectionErrorKind discriminates the variants of ConnectionError.
type ConnectionErrorKind uint8

const (
	// ErrKindHandler means the handler itself asked to close, carrying its
	// terminal error.
	ErrKindHandler ConnectionErrorKind = iota
	// ErrKindKeepAliveTimeout means the driver's shutdown plan fired while
	// idle.
	ErrKindKeepAliveTimeout
	// ErrKindIO means the muxer reported a connection-terminal I/O error.
	ErrKindIO
)

// ConnectionError is the terminal error a Connection.Poll call can return.
// Once returned, the Connection must not be polled again.
type ConnectionError[E any] struct {
	Kind    ConnectionErrorKind
	Handler E
	IO      error
}

func (e ConnectionError[E]) Error() string {
	switch e.Kind {
	case ErrKindHandler:
		return fmt.Sprintf("handler closed the connection: %v", e.Handler)
	case ErrKindKeepAliveTimeout:
		return "connection closed: keep-alive timeout"
	case ErrKindIO:
		return fmt.Sprintf("connection closed: i/o error: %v", e.IO)
	default:
		return "connection closed"
	}
}

// HandlerError builds the ErrKindHandler variant of ConnectionError.
func HandlerError[E any](err E) ConnectionError[E] {
	return ConnectionError[E]{Kind: ErrKindHandler, Handler: err}
}

// KeepAliveTimeoutError builds the ErrKindKeepAliveTimeout variant of
// ConnectionError.
func KeepAliveTimeoutError[E any]() ConnectionError[E] {
	return ConnectionError[E]{Kind: ErrKindKeepAliveTimeout}
}

// IOError builds the ErrKindIO variant of ConnectionError.
func IOError[E any](err error) ConnectionError[E] {
	return ConnectionError[E]{Kind: ErrKindIO, IO: err}
}

// PendingConnectionErrorKind discriminates the variants of
// PendingConnectionError. Defined here, as in the source, for completeness
// even though only the surrounding pool (out of scope) produces these.
type PendingConnectionErrorKind uint8

const (
	// ErrTransport means every dial attempt to every address failed.
	ErrTransport PendingConnectionErrorKind = iota
	// ErrAborted means the dial was aborted locally (e.g. the pool shut
	// down) before it could complete.
	ErrAborted
	// ErrIdentityMismatch means the remote's actual peer ID did not match
	// the one the pool expected.
	ErrIdentityMismatch
	// ErrLocalPeerID means the remote's peer ID equals ours.
	ErrLocalPeerID
)

// PendingConnectionError is the error surfaced for a connection attempt
// that never reached the Connected state.
type PendingConnectionError struct {
	Kind PendingConnectionErrorKind

	// Addrs is populated for ErrTransport: the address and per-address
	// error for every attempt that was made.
	Addrs []AddrDialError

	// Expected/Found are populated for ErrIdentityMismatch.
	Expected PeerID
	Found    PeerID
}

// AddrDialError pairs one dialed address with why dialing it failed.
type AddrDialError struct {
	Addr ma.Multiaddr
	Err  error
}

func (e *PendingConnectionError) Error() string {
	switch e.Kind {
	case ErrTransport:
		return fmt.Sprintf("transport error on %d address(es)", len(e.Addrs))
	case ErrAborted:
		return "dial aborted"
	case ErrIdentityMismatch:
		return fmt.Sprintf("peer id mismatch: expected %s, found %s", e.Expected, e.Found)
	case ErrLocalPeerID:
		return "dialed our own peer id"
	default:
		return "pending connection error"
	}
}

// PendingInboundConnectionError specializes PendingConnectionError for a
// not-yet-accepted inbound connection, which by construction has exactly
// one candidate address rather than a list.
type PendingInboundConnectionError struct {
	Addr ma.Multiaddr
	Err  error
}

func (e *PendingInboundConnectionError) Error() string {
	return fmt.Sprintf("inbound connection from %s failed: %v", e.Addr, e.Err)
}

// PendingOutboundConnectionError specializes PendingConnectionError for an
// outbound dial, which aggregates failures across every address tried.
type PendingOutboundConnectionError struct {
	Errors []AddrDialError
}

func (e *PendingOutboundConnectionError) Error() string {
	return fmt.Sprintf("outbound dial failed on %d address(es)", len(e.Errors))
}
