package handler

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/upgrade"
)

// ConnectionEventKind discriminates the variants of ConnectionEvent.
type ConnectionEventKind uint8

const (
	EventFullyNegotiatedInbound ConnectionEventKind = iota
	EventFullyNegotiatedOutbound
	EventAddressChange
	EventDialUpgradeError
	EventListenUpgradeError
	EventProtocolsChange
)

// FullyNegotiatedInbound reports a successfully negotiated inbound
// substream: Protocol is the negotiated protocol name, Stream is the
// upgrade's Output (the substream itself, or whatever was built on top of
// it — see upgrade.Upgrade), and Info the tag the handler attached via
// ListenProtocol.
type FullyNegotiatedInbound[InTag any, Output any] struct {
	Protocol upgrade.Info
	Stream   Output
	Info     InTag
}

// FullyNegotiatedOutbound reports a successfully negotiated outbound
// substream: Protocol is the negotiated protocol name, Stream is the
// upgrade's Output, and Info the tag the handler attached to its
// OutboundSubstreamRequest.
type FullyNegotiatedOutbound[OutTag any, Output any] struct {
	Protocol upgrade.Info
	Stream   Output
	Info     OutTag
}

// AddressChange reports the muxer observed the remote address change.
type AddressChange struct {
	NewAddress ma.Multiaddr
}

// DialUpgradeError reports an outbound substream failed to negotiate
// (timeout or upgrade error); Info is the tag from the original request.
type DialUpgradeError[OutTag any] struct {
	Info  OutTag
	Error upgrade.Error
}

// ListenUpgradeError reports an inbound substream failed to negotiate;
// Info is the tag the handler attached via ListenProtocol.
type ListenUpgradeError[InTag any] struct {
	Info  InTag
	Error upgrade.Error
}

// ProtocolsChange reports the sorted, UTF-8-filtered set of protocol names
// the handler's ListenProtocol() now advertises differs from what was last
// reported.
type ProtocolsChange struct {
	Protocols []string
}

// ConnectionEvent is the sum type a driver delivers to
// ConnectionHandler.OnConnectionEvent. Exactly one field is meaningful,
// selected by Kind.
type ConnectionEvent[InTag any, OutTag any, Output any] struct {
	Kind ConnectionEventKind

	FullyNegotiatedInbound  FullyNegotiatedInbound[InTag, Output]
	FullyNegotiatedOutbound FullyNegotiatedOutbound[OutTag, Output]
	AddressChange           AddressChange
	DialUpgradeError        DialUpgradeError[OutTag]
	ListenUpgradeError      ListenUpgradeError[InTag]
	ProtocolsChange         ProtocolsChange
}
