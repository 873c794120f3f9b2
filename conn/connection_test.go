package conn

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/handler"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/internal/handlertest"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/internal/muxertest"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/upgrade"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestMaxNegotiatingInboundStreams mirrors the rust-libp2p
// max_negotiating_inbound_streams property: a muxer that always has an
// inbound substream ready must never let more than the configured maximum
// sit in NegotiatingIn at once.
func TestMaxNegotiatingInboundStreams(t *testing.T) {
	for _, max := range []int{0, 1, 2, 5, 37} {
		counter := 0
		mux := &muxertest.Dummy{Counter: &counter}
		t.Cleanup(func() { mux.CloseAll() })
		c := New[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](mux, handlertest.AlwaysAlive{},
			WithMaxNegotiatingInboundStreams[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](max))

		outcome := c.Poll(waker.New())

		assert.Equal(t, PollPending, outcome.Kind)
		assert.Equal(t, max, counter, "expected no more than the configured maximum number of substreams")
		assert.Len(t, c.negotiatingIn, max)
	}
}

// TestOutboundStreamTimeoutStartsOnRequest mirrors
// outbound_stream_timeout_starts_on_request: a muxer that never grants an
// outbound substream must still let the request's own timeout fire.
func TestOutboundStreamTimeoutStartsOnRequest(t *testing.T) {
	clk := clock.NewMock()
	upgradeTimeout := time.Second

	h := &handlertest.Mock{UpgradeTimeout: upgradeTimeout}
	c := New[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](muxertest.Pending{}, h,
		WithClock[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](clk))

	h.OpenNewOutbound()
	outcome := c.Poll(waker.New())
	require.Equal(t, PollPending, outcome.Kind)
	require.Nil(t, h.LastDialError)

	clk.Add(upgradeTimeout + time.Second)

	outcome = c.Poll(waker.New())
	require.Equal(t, PollPending, outcome.Kind)
	require.NotNil(t, h.LastDialError)
	assert.True(t, h.LastDialError.IsTimeout())
}

// TestPropagatesChangesToSupportedInboundProtocols mirrors
// propagates_changes_to_supported_inbound_protocols: the driver must diff
// ListenProtocol's advertised set against what it last reported and notify
// the handler only when it changes, sorted.
func TestPropagatesChangesToSupportedInboundProtocols(t *testing.T) {
	h := &handlertest.ConfigurableProtocol{ActiveProtocols: []string{"/foo"}}
	mux := &muxertest.Dummy{}
	t.Cleanup(func() { mux.CloseAll() })
	c := New[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](mux, h,
		WithMaxNegotiatingInboundStreams[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](2))

	c.Poll(waker.New())
	assert.Equal(t, []string{"/foo"}, h.ReportedProtocols)

	h.ActiveProtocols = []string{"/foo", "/bar"}
	c.negotiatingIn = nil // force the driver to ask the muxer for another substream

	c.Poll(waker.New())
	assert.Equal(t, []string{"/bar", "/foo"}, h.ReportedProtocols)
}

// TestKeepAliveNoShutsDownWhenIdle exercises the shutdown state machine:
// once every negotiating set is empty and the handler reports KeepAliveNo,
// the next Poll must report a keep-alive timeout.
func TestKeepAliveNoShutsDownWhenIdle(t *testing.T) {
	h := &handlertest.Mock{UpgradeTimeout: time.Second, KeepAlive: handler.KeepAliveNo()}

	c := New[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](muxertest.Pending{}, h)
	outcome := c.Poll(waker.New())

	require.Equal(t, PollError, outcome.Kind)
	assert.Equal(t, ErrKindKeepAliveTimeout, outcome.Err.Kind)
}

// TestKeepAliveNoPostponedByInFlightUpgrade mirrors spec.md §8 scenario S5:
// a handler reporting KeepAliveNo must not shut the connection down while
// an inbound substream is still negotiating — the shutdown check (step 6)
// only runs once all three negotiating/requested collections are empty.
func TestKeepAliveNoPostponedByInFlightUpgrade(t *testing.T) {
	mux := &muxertest.Dummy{Limit: 1}
	t.Cleanup(func() { mux.CloseAll() })

	h := &handlertest.Mock{UpgradeTimeout: time.Second, KeepAlive: handler.KeepAliveNo()}
	c := New[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](mux, h)

	outcome := c.Poll(waker.New())

	require.Equal(t, PollPending, outcome.Kind,
		"keep-alive shutdown must wait for the in-flight inbound upgrade to finish")
	assert.Len(t, c.negotiatingIn, 1)
}

// TestAddressChangeNotifiesHandlerAndCaller mirrors spec.md §8 scenario S6:
// a muxer-reported address change must fan out to both the handler (via
// OnConnectionEvent) and the caller (via Poll's return value) within the
// same Poll call.
func TestAddressChangeNotifiesHandlerAndCaller(t *testing.T) {
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	require.NoError(t, err)

	h := &handlertest.Mock{UpgradeTimeout: time.Second}
	mux := &muxertest.Dummy{AddressChange: addr}
	t.Cleanup(func() { mux.CloseAll() })
	c := New[struct{}, struct{}, upgrade.Stream, struct{}, struct{}](mux, h)

	outcome := c.Poll(waker.New())

	require.Equal(t, PollEvent, outcome.Kind)
	assert.Equal(t, EventAddressChange, outcome.Event.Kind)
	assert.True(t, addr.Equal(outcome.Event.NewAddress))
	require.NotNil(t, h.LastAddressChange)
	assert.True(t, addr.Equal(h.LastAddressChange))
}
