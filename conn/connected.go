package conn

import ma "github.com/multiformats/go-multiaddr"

// PeerID is an opaque, comparable peer identifier.
//
// The full identity/crypto machinery that produces a verified peer ID is
// explicitly out of scope for this driver (spec.md §1: "the identity/peer
// layer ... are consumers of this driver"); this type only needs to fill
// Connected.PeerID and be usable as a map key.
type PeerID string

// Endpoint indicates which side of a connection initiated it.
type Endpoint uint8

const (
	// Dialer means this side initiated the connection.
	Dialer Endpoint = iota
	// Listener means this side accepted the connection.
	Listener
)

// ConnectedPoint describes the established endpoint of a connection.
type ConnectedPoint struct {
	endpoint Endpoint

	// RoleOverride is meaningful only when Endpoint() == Dialer.
	RoleOverride Endpoint

	// LocalAddr and SendBackAddr are meaningful only when Endpoint() ==
	// Listener.
	LocalAddr    ma.Multiaddr
	SendBackAddr ma.Multiaddr
}

// Endpoint reports which variant this ConnectedPoint holds.
func (c ConnectedPoint) Endpoint() Endpoint { return c.endpoint }

// NewDialerPoint builds the Dialer variant of ConnectedPoint.
func NewDialerPoint(roleOverride Endpoint) ConnectedPoint {
	return ConnectedPoint{endpoint: Dialer, RoleOverride: roleOverride}
}

// NewListenerPoint builds the Listener variant of ConnectedPoint.
func NewListenerPoint(localAddr, sendBackAddr ma.Multiaddr) ConnectedPoint {
	return ConnectedPoint{endpoint: Listener, LocalAddr: localAddr, SendBackAddr: sendBackAddr}
}

// Connected is an immutable record of a successfully established
// connection.
type Connected struct {
	PeerID   PeerID
	Endpoint ConnectedPoint
}

// PendingPoint mirrors ConnectedPoint for a connection that is not yet
// fully established: the Dialer variant carries no address because
// parallel dial attempts may still be racing.
type PendingPoint struct {
	endpoint Endpoint

	RoleOverride Endpoint
	LocalAddr    ma.Multiaddr
	SendBackAddr ma.Multiaddr
}

// Endpoint reports which variant this PendingPoint holds.
func (p PendingPoint) Endpoint() Endpoint { return p.endpoint }

// NewPendingDialerPoint builds the Dialer variant of PendingPoint.
func NewPendingDialerPoint(roleOverride Endpoint) PendingPoint {
	return PendingPoint{endpoint: Dialer, RoleOverride: roleOverride}
}

// FromConnectedPoint converts a fully-established ConnectedPoint into the
// corresponding PendingPoint, dropping the Dialer-side address (there is
// none, by construction, once a connection is Connected; this exists for
// symmetry with the Rust source's `From<ConnectedPoint> for PendingPoint`).
func FromConnectedPoint(c ConnectedPoint) PendingPoint {
	switch c.endpoint {
	case Dialer:
		return PendingPoint{endpoint: Dialer, RoleOverride: c.RoleOverride}
	default:
		return PendingPoint{endpoint: Listener, LocalAddr: c.LocalAddr, SendBackAddr: c.SendBackAddr}
	}
}

// IncomingInfo is a borrowed view of a not-yet-accepted inbound connection.
type IncomingInfo struct {
	LocalAddr    ma.Multiaddr
	SendBackAddr ma.Multiaddr
}

// ConnectedPoint converts this incoming info into the Listener variant of
// ConnectedPoint once the connection is accepted.
func (i IncomingInfo) ConnectedPoint() ConnectedPoint {
	return NewListenerPoint(i.LocalAddr, i.SendBackAddr)
}
