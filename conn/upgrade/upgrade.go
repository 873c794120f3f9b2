// Package upgrade defines the protocol-negotiation contract applied to a
// raw substream before it is handed to a ConnectionHandler, and the timed
// future the driver polls while that negotiation is in flight.
//
// The negotiation itself rides on multiformats/go-multistream, the same
// multistream-select wire format the rest of the libp2p ecosystem uses;
// this package does not reimplement protocol selection, only the
// timeout/cancellation envelope the connection driver needs around it.
package upgrade

import (
	"context"
	"fmt"
	"io"

	logging "github.com/ipfs/go-log/v2"
	ms "github.com/multiformats/go-multistream"
)

var log = logging.Logger("conn/upgrade")

// Version selects which multistream-select handshake variant an outbound
// upgrade uses. Mirrors rust-libp2p's upgrade::Version.
type Version int

const (
	// V1 performs the standard multistream-select round trip.
	V1 Version = iota
	// V1Lazy optimistically writes the proposed protocol before waiting for
	// the listener's multistream header, saving a round trip when the
	// proposal is expected to succeed.
	V1Lazy
)

// DefaultVersion is the version used when no override is configured.
const DefaultVersion = V1

// Stream is the minimal capability an upgrade needs from a substream.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Info identifies one protocol a side is willing to speak, as the raw bytes
// carried over the wire (multistream protocol names are length-prefixed
// byte strings, not guaranteed-UTF-8 until decoded).
type Info []byte

// Upgrade turns a raw substream, once a protocol has been agreed on it,
// into whatever Output a ConnectionHandler actually wants to use (the
// substream itself, unchanged, in the common case — see IdentityUpgrade —
// or something built on top of it: a framed codec, a secured channel,
// etc.). ctx governs cancellation of work Upgrade itself does beyond the
// raw stream I/O; negotiation timeout is enforced by the caller (Timed)
// closing stream, which unblocks any blocked Read/Write inside Upgrade.
type Upgrade[Output any] interface {
	// ProtocolInfo lists the protocol names this upgrade is willing to
	// negotiate.
	ProtocolInfo() []Info

	// Upgrade applies the upgrade to stream, which has already completed
	// multistream-select for one of ProtocolInfo()'s names.
	Upgrade(ctx context.Context, stream Stream) (Output, error)
}

// InboundUpgrade and OutboundUpgrade are both the Upgrade shape: applying
// an upgrade to a negotiated substream doesn't depend on which side opened
// it, only on the protocol list and the Upgrade function itself.
type (
	InboundUpgrade[Output any]  = Upgrade[Output]
	OutboundUpgrade[Output any] = Upgrade[Output]
)

// IdentityUpgrade is the default Upgrade: it hands the negotiated
// substream back unchanged. Most ConnectionHandlers want exactly this —
// ping, identify, and most other application protocols read and write the
// substream directly once a protocol name is agreed.
type IdentityUpgrade struct {
	Protocols []Info
}

func (u IdentityUpgrade) ProtocolInfo() []Info { return u.Protocols }

func (u IdentityUpgrade) Upgrade(_ context.Context, stream Stream) (Stream, error) {
	return stream, nil
}

var (
	_ InboundUpgrade[Stream]  = IdentityUpgrade{}
	_ OutboundUpgrade[Stream] = IdentityUpgrade{}
)

// Error is the per-stream negotiation failure reported to a
// ConnectionHandler as DialUpgradeError/ListenUpgradeError. Exactly one of
// the two constructors applies; Timeout is mutually exclusive with a
// wrapped upgrade error.
type Error struct {
	timeout bool
	err     error
}

// TimeoutErr builds the timeout variant of Error.
func TimeoutErr() Error { return Error{timeout: true} }

// Failed builds the upgrade-failed variant of Error.
func Failed(err error) Error { return Error{err: err} }

// IsTimeout reports whether this is the timeout variant.
func (e Error) IsTimeout() bool { return e.timeout }

// Unwrap returns the wrapped upgrade error. Only meaningful if !IsTimeout().
func (e Error) Unwrap() error { return e.err }

func (e Error) Error() string {
	if e.timeout {
		return "upgrade timed out"
	}
	return fmt.Sprintf("upgrade failed: %v", e.err)
}

// NegotiateOutbound runs outbound multistream-select — propose up's
// protocols in order over stream — then applies up.Upgrade to whichever
// protocol the remote accepted, returning both the negotiated name and the
// upgrade's Output.
//
// version selects V1 vs V1Lazy framing.
func NegotiateOutbound[Output any](ctx context.Context, stream Stream, up OutboundUpgrade[Output], version Version) (Info, Output, error) {
	var zero Output
	protocols := up.ProtocolInfo()
	names := make([]string, len(protocols))
	for i, p := range protocols {
		names[i] = string(p)
	}

	// V1Lazy only changes framing on the wire for single-protocol proposals;
	// go-multistream's SelectOneOf already picks the cheapest round trip it
	// can for that case, so both versions drive the same call here.
	_ = version

	selected, err := ms.SelectOneOf(names, stream)
	if err != nil {
		log.Debugw("outbound upgrade negotiation failed", "error", err)
		return nil, zero, err
	}
	out, err := up.Upgrade(ctx, stream)
	if err != nil {
		return Info(selected), zero, err
	}
	return Info(selected), out, nil
}

// NegotiateInbound runs inbound multistream-select against up's accepted
// protocols, then applies up.Upgrade to whichever one the remote selected.
func NegotiateInbound[Output any](ctx context.Context, stream Stream, up InboundUpgrade[Output]) (Info, Output, error) {
	var zero Output
	mux := ms.NewMultistreamMuxer[string]()
	for _, p := range up.ProtocolInfo() {
		mux.AddHandler(string(p), nil)
	}

	selected, _, err := mux.Negotiate(stream)
	if err != nil {
		log.Debugw("inbound upgrade negotiation failed", "error", err)
		return nil, zero, err
	}
	out, err := up.Upgrade(ctx, stream)
	if err != nil {
		return Info(selected), zero, err
	}
	return Info(selected), out, nil
}
