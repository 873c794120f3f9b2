package conn

import (
	"github.com/benbjohnson/clock"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/upgrade"
)

// Option configures a Connection at construction time.
type Option[InTag any, OutTag any, Output any, Custom any, Err any] func(*Connection[InTag, OutTag, Output, Custom, Err])

// WithSubstreamUpgradeProtocolOverride applies v to every outbound upgrade
// instead of upgrade.DefaultVersion.
func WithSubstreamUpgradeProtocolOverride[InTag any, OutTag any, Output any, Custom any, Err any](v upgrade.Version) Option[InTag, OutTag, Output, Custom, Err] {
	return func(c *Connection[InTag, OutTag, Output, Custom, Err]) {
		vv := v
		c.substreamUpgradeProtocolOverride = &vv
	}
}

// WithMaxNegotiatingInboundStreams caps the number of inbound substreams
// concurrently negotiating on this connection. The default is 128.
func WithMaxNegotiatingInboundStreams[InTag any, OutTag any, Output any, Custom any, Err any](n int) Option[InTag, OutTag, Output, Custom, Err] {
	return func(c *Connection[InTag, OutTag, Output, Custom, Err]) {
		c.maxNegotiatingInboundStreams = n
	}
}

// WithClock overrides the clock used for every timeout and keep-alive
// deadline. Intended for tests; production callers should leave this at
// its clock.New() default.
func WithClock[InTag any, OutTag any, Output any, Custom any, Err any](clk clock.Clock) Option[InTag, OutTag, Output, Custom, Err] {
	return func(c *Connection[InTag, OutTag, Output, Custom, Err]) {
		c.clk = clk
	}
}
