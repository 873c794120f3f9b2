// Package handlertest provides handler.ConnectionHandler test doubles used
// by connection driver tests, modeled on the MockConnectionHandler and
// ConfigurableProtocolConnectionHandler fixtures from the rust-libp2p
// connection test suite.
package handlertest

import (
	"sort"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/handler"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/upgrade"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

// AlwaysAlive never requests a substream, never closes, and keeps the
// connection alive indefinitely. The Go analogue of rust-libp2p's
// keep_alive::ConnectionHandler used wherever a test only cares about the
// driver's substream bookkeeping.
type AlwaysAlive struct{}

func (AlwaysAlive) Poll(waker.Waker) (handler.Event[struct{}, upgrade.Stream, struct{}, struct{}], bool) {
	return handler.Event[struct{}, upgrade.Stream, struct{}, struct{}]{}, false
}
func (AlwaysAlive) OnBehaviourEvent(any) {}
func (AlwaysAlive) OnConnectionEvent(handler.ConnectionEvent[struct{}, struct{}, upgrade.Stream]) {}
func (AlwaysAlive) ListenProtocol() handler.SubstreamProtocol[struct{}, upgrade.Stream] {
	return handler.NewSubstreamProtocol[struct{}, upgrade.Stream](upgrade.IdentityUpgrade{}, struct{}{})
}
func (AlwaysAlive) ConnectionKeepAlive() handler.KeepAlive { return handler.KeepAliveYes() }

// Mock is a scriptable handler: OpenNewOutbound arms a single pending
// OutboundSubstreamRequest that the next Poll call emits, the upgrade
// timeout is configurable so tests can exercise NegotiatingOut timeouts,
// and KeepAlive (default KeepAliveYes) lets a test drive the shutdown
// state machine. LastDialError and LastAddressChange record the most
// recent events of those kinds the driver reported.
type Mock struct {
	UpgradeTimeout time.Duration
	KeepAlive      handler.KeepAlive

	outboundRequested bool
	LastDialError     *upgrade.Error
	LastAddressChange ma.Multiaddr
}

// OpenNewOutbound arms the next Poll call to emit an outbound substream
// request for an empty (always-denied) protocol set.
func (m *Mock) OpenNewOutbound() {
	m.outboundRequested = true
}

func (m *Mock) Poll(waker.Waker) (handler.Event[struct{}, upgrade.Stream, struct{}, struct{}], bool) {
	if m.outboundRequested {
		m.outboundRequested = false
		p := handler.NewSubstreamProtocol[struct{}, upgrade.Stream](upgrade.IdentityUpgrade{}, struct{}{}).WithTimeout(m.UpgradeTimeout)
		return handler.OutboundSubstreamRequest[struct{}, upgrade.Stream, struct{}, struct{}](p), true
	}
	return handler.Event[struct{}, upgrade.Stream, struct{}, struct{}]{}, false
}

func (m *Mock) OnBehaviourEvent(any) {}

func (m *Mock) OnConnectionEvent(event handler.ConnectionEvent[struct{}, struct{}, upgrade.Stream]) {
	switch event.Kind {
	case handler.EventDialUpgradeError:
		err := event.DialUpgradeError.Error
		m.LastDialError = &err
	case handler.EventAddressChange:
		m.LastAddressChange = event.AddressChange.NewAddress
	}
}

func (m *Mock) ListenProtocol() handler.SubstreamProtocol[struct{}, upgrade.Stream] {
	return handler.NewSubstreamProtocol[struct{}, upgrade.Stream](upgrade.IdentityUpgrade{}, struct{}{}).WithTimeout(m.UpgradeTimeout)
}

// ConnectionKeepAlive reports m.KeepAlive. Its zero value is KeepAliveYes,
// since that is keepAliveKind's zero value too, so tests that don't care
// about keep-alive can leave the field unset.
func (m *Mock) ConnectionKeepAlive() handler.KeepAlive { return m.KeepAlive }

// ConfigurableProtocol lets a test change ListenProtocol's advertised
// protocol set between Poll calls and observe what the driver reports back
// through EventProtocolsChange.
type ConfigurableProtocol struct {
	ActiveProtocols   []string
	ReportedProtocols []string
}

func (c *ConfigurableProtocol) Poll(waker.Waker) (handler.Event[struct{}, upgrade.Stream, struct{}, struct{}], bool) {
	return handler.Event[struct{}, upgrade.Stream, struct{}, struct{}]{}, false
}

func (c *ConfigurableProtocol) OnBehaviourEvent(any) {}

func (c *ConfigurableProtocol) OnConnectionEvent(event handler.ConnectionEvent[struct{}, struct{}, upgrade.Stream]) {
	if event.Kind == handler.EventProtocolsChange {
		c.ReportedProtocols = append([]string(nil), event.ProtocolsChange.Protocols...)
		sort.Strings(c.ReportedProtocols)
	}
}

func (c *ConfigurableProtocol) ListenProtocol() handler.SubstreamProtocol[struct{}, upgrade.Stream] {
	protocols := make([]upgrade.Info, len(c.ActiveProtocols))
	for i, p := range c.ActiveProtocols {
		protocols[i] = upgrade.Info(p)
	}
	return handler.NewSubstreamProtocol[struct{}, upgrade.Stream](upgrade.IdentityUpgrade{Protocols: protocols}, struct{}{})
}

func (c *ConfigurableProtocol) ConnectionKeepAlive() handler.KeepAlive { return handler.KeepAliveYes() }

var (
	_ handler.ConnectionHandler[struct{}, struct{}, upgrade.Stream, struct{}, struct{}] = AlwaysAlive{}
	_ handler.ConnectionHandler[struct{}, struct{}, upgrade.Stream, struct{}, struct{}] = (*Mock)(nil)
	_ handler.ConnectionHandler[struct{}, struct{}, upgrade.Stream, struct{}, struct{}] = (*ConfigurableProtocol)(nil)
)
