package conn

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/handler"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/muxer"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/upgrade"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

var log = logging.Logger("conn")

// Connection is the per-connection driver described in spec.md. It is
// single-owner: exactly one goroutine must call Poll/Run at a time.
//
// Output is what a successfully negotiated substream becomes before the
// handler sees it (see upgrade.Upgrade); the common case is
// upgrade.Stream, meaning the handler gets the raw substream back
// unchanged once a protocol name is agreed.
type Connection[InTag any, OutTag any, Output any, Custom any, Err any] struct {
	id      ID
	muxing  muxer.StreamMuxer
	handler handler.ConnectionHandler[InTag, OutTag, Output, Custom, Err]
	clk     clock.Clock

	negotiatingIn  []*upgrade.Timed[InTag, Output]
	negotiatingOut []*upgrade.Timed[OutTag, Output]

	requestedSubstreams []*requested[upgrade.OutboundUpgrade[Output], OutTag]

	shutdown shutdown

	substreamUpgradeProtocolOverride *upgrade.Version
	maxNegotiatingInboundStreams     int
	supportedProtocols               []string

	closed bool
}

// New builds a Connection from the given muxer and handler. The initial
// shutdown plan is None: the connection stays up until the handler asks
// otherwise.
func New[InTag any, OutTag any, Output any, Custom any, Err any](
	mux muxer.StreamMuxer,
	h handler.ConnectionHandler[InTag, OutTag, Output, Custom, Err],
	opts ...Option[InTag, OutTag, Output, Custom, Err],
) *Connection[InTag, OutTag, Output, Custom, Err] {
	c := &Connection[InTag, OutTag, Output, Custom, Err]{
		id:                           NextID(),
		muxing:                       mux,
		handler:                      h,
		clk:                          clock.New(),
		maxNegotiatingInboundStreams: 128,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns this connection's process-wide unique identifier.
func (c *Connection[InTag, OutTag, Output, Custom, Err]) ID() ID { return c.id }

// OnBehaviourEvent notifies the handler of an event from the layer above
// the driver. Synchronous pass-through: no queuing.
func (c *Connection[InTag, OutTag, Output, Custom, Err]) OnBehaviourEvent(event any) {
	c.handler.OnBehaviourEvent(event)
}

// Close consumes the driver, returning the handler (so the caller can
// observe its terminal state) and the muxer's close function. The caller
// is responsible for running it to completion.
func (c *Connection[InTag, OutTag, Output, Custom, Err]) Close() (handler.ConnectionHandler[InTag, OutTag, Output, Custom, Err], func() error) {
	c.closed = true
	return c.handler, c.muxing.Close
}

// PollOutcomeKind discriminates the result of a Poll call.
type PollOutcomeKind uint8

const (
	PollPending PollOutcomeKind = iota
	PollEvent
	PollError
)

// PollOutcome is returned by Poll: exactly one of Event/Err is meaningful,
// selected by Kind.
type PollOutcome[Custom any, Err any] struct {
	Kind  PollOutcomeKind
	Event Event[Custom]
	Err   ConnectionError[Err]
}

// Poll advances every subsystem it can make progress on, in the priority
// order from spec.md §4.1, until none can, then returns PollPending.
//
// Must not be called again once it has returned a PollError outcome.
func (c *Connection[InTag, OutTag, Output, Custom, Err]) Poll(w waker.Waker) PollOutcome[Custom, Err] {
	if c.closed {
		panic("conn: Connection polled after Close")
	}
	for {
		// 1. RequestedSubstreams.
		if idx, res, resolved := c.pollRequestedSubstreams(w); resolved {
			c.requestedSubstreams = append(c.requestedSubstreams[:idx], c.requestedSubstreams[idx+1:]...)
			if res.TimedOut {
				c.handler.OnConnectionEvent(handler.ConnectionEvent[InTag, OutTag, Output]{
					Kind: handler.EventDialUpgradeError,
					DialUpgradeError: handler.DialUpgradeError[OutTag]{
						Info:  res.Tag,
						Error: upgrade.TimeoutErr(),
					},
				})
			}
			continue
		}

		// 2. Handler.
		if ev, ok := c.handler.Poll(w); ok {
			switch ev.Kind {
			case handler.EventOutboundSubstreamRequest:
				req := newRequested[upgrade.OutboundUpgrade[Output], OutTag](c.clk, ev.OutboundRequest.Timeout, ev.OutboundRequest.Tag, ev.OutboundRequest.Upgrade)
				c.requestedSubstreams = append(c.requestedSubstreams, req)
				continue
			case handler.EventCustom:
				return PollOutcome[Custom, Err]{Kind: PollEvent, Event: HandlerEvent(ev.Custom)}
			case handler.EventClose:
				return PollOutcome[Custom, Err]{Kind: PollError, Err: HandlerError[Err](ev.Err)}
			}
		}

		// 3. NegotiatingOut.
		if idx, tag, info, output, uerr, resolved := pollTimedSet(c.negotiatingOut, w); resolved {
			c.negotiatingOut = append(c.negotiatingOut[:idx], c.negotiatingOut[idx+1:]...)
			if uerr != nil {
				c.handler.OnConnectionEvent(handler.ConnectionEvent[InTag, OutTag, Output]{
					Kind:             handler.EventDialUpgradeError,
					DialUpgradeError: handler.DialUpgradeError[OutTag]{Info: tag, Error: *uerr},
				})
			} else {
				c.handler.OnConnectionEvent(handler.ConnectionEvent[InTag, OutTag, Output]{
					Kind: handler.EventFullyNegotiatedOutbound,
					FullyNegotiatedOutbound: handler.FullyNegotiatedOutbound[OutTag, Output]{
						Protocol: info,
						Stream:   output,
						Info:     tag,
					},
				})
			}
			continue
		}

		// 4. NegotiatingIn.
		if idx, tag, info, output, uerr, resolved := pollTimedSet(c.negotiatingIn, w); resolved {
			c.negotiatingIn = append(c.negotiatingIn[:idx], c.negotiatingIn[idx+1:]...)
			if uerr != nil {
				c.handler.OnConnectionEvent(handler.ConnectionEvent[InTag, OutTag, Output]{
					Kind:               handler.EventListenUpgradeError,
					ListenUpgradeError: handler.ListenUpgradeError[InTag]{Info: tag, Error: *uerr},
				})
			} else {
				c.handler.OnConnectionEvent(handler.ConnectionEvent[InTag, OutTag, Output]{
					Kind: handler.EventFullyNegotiatedInbound,
					FullyNegotiatedInbound: handler.FullyNegotiatedInbound[InTag, Output]{
						Protocol: info,
						Stream:   output,
						Info:     tag,
					},
				})
			}
			continue
		}

		// 5. KeepAlive evaluation.
		c.shutdown.evaluate(c.clk, c.handler.ConnectionKeepAlive(), c.clk.Now())

		// 6. Shutdown check.
		if len(c.negotiatingIn) == 0 && len(c.negotiatingOut) == 0 && len(c.requestedSubstreams) == 0 {
			if c.shutdown.checkReady() {
				return PollOutcome[Custom, Err]{Kind: PollError, Err: KeepAliveTimeoutError[Err]()}
			}
		}

		// 7. Muxer address events.
		if addr, err, ok := c.muxing.PollAddressChange(w); err != nil {
			return PollOutcome[Custom, Err]{Kind: PollError, Err: IOError[Err](err)}
		} else if ok {
			c.handler.OnConnectionEvent(handler.ConnectionEvent[InTag, OutTag, Output]{
				Kind:          handler.EventAddressChange,
				AddressChange: handler.AddressChange{NewAddress: addr},
			})
			return PollOutcome[Custom, Err]{Kind: PollEvent, Event: AddressChangeEvent[Custom](addr)}
		}

		// 8. Outbound stream allocation.
		if len(c.requestedSubstreams) > 0 {
			s, err, ok := c.muxing.PollOutbound(w)
			if err != nil {
				return PollOutcome[Custom, Err]{Kind: PollError, Err: IOError[Err](err)}
			}
			if ok {
				// Open question in spec.md §9: which queued request claims
				// the substream is unspecified upstream. We pick FIFO, the
				// deterministic choice the spec recommends.
				req := c.requestedSubstreams[0]
				c.requestedSubstreams = c.requestedSubstreams[1:]
				tag, timer, up := req.extract()
				version := upgrade.DefaultVersion
				if c.substreamUpgradeProtocolOverride != nil && *c.substreamUpgradeProtocolOverride != upgrade.DefaultVersion {
					version = *c.substreamUpgradeProtocolOverride
					log.Debugw("substream upgrade protocol override", "default", upgrade.DefaultVersion, "override", version)
				}
				c.negotiatingOut = append(c.negotiatingOut, upgrade.NewOutboundTimedFromTimer(timer, tag, s, up, version))
				continue
			}
		}

		// 9. Inbound stream acceptance.
		if len(c.negotiatingIn) < c.maxNegotiatingInboundStreams {
			s, err, ok := c.muxing.PollInbound(w)
			if err != nil {
				return PollOutcome[Custom, Err]{Kind: PollError, Err: IOError[Err](err)}
			}
			if ok {
				listen := c.handler.ListenProtocol()

				protocols := listen.Upgrade.ProtocolInfo()
				newProtocols := make([]string, 0, len(protocols))
				for _, p := range protocols {
					if utf8.Valid(p) {
						newProtocols = append(newProtocols, string(p))
					}
				}
				sort.Strings(newProtocols)

				if !equalStrings(c.supportedProtocols, newProtocols) {
					c.handler.OnConnectionEvent(handler.ConnectionEvent[InTag, OutTag, Output]{
						Kind:            handler.EventProtocolsChange,
						ProtocolsChange: handler.ProtocolsChange{Protocols: newProtocols},
					})
					c.supportedProtocols = newProtocols
				}

				c.negotiatingIn = append(c.negotiatingIn, upgrade.NewInboundTimed(c.clk, listen.Tag, listen.Timeout, s, listen.Upgrade))
				continue
			}
		}

		return PollOutcome[Custom, Err]{Kind: PollPending}
	}
}

// Run drives Poll to completion, blocking on the waker (and ctx
// cancellation) whenever Poll reports Pending. This is the one goroutine
// that owns the Connection for its lifetime.
func (c *Connection[InTag, OutTag, Output, Custom, Err]) Run(ctx context.Context, events chan<- Event[Custom], errs chan<- ConnectionError[Err]) {
	w := waker.New()
	for {
		outcome := c.Poll(w)
		switch outcome.Kind {
		case PollEvent:
			select {
			case events <- outcome.Event:
			case <-ctx.Done():
				return
			}
		case PollError:
			select {
			case errs <- outcome.Err:
			case <-ctx.Done():
			}
			return
		case PollPending:
			select {
			case <-w.C():
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Connection[InTag, OutTag, Output, Custom, Err]) pollRequestedSubstreams(w waker.Waker) (idx int, res requestedPoll[OutTag], resolved bool) {
	for i, r := range c.requestedSubstreams {
		p := r.poll(w)
		if !p.Pending {
			return i, p, true
		}
	}
	return 0, requestedPoll[OutTag]{}, false
}

// pollTimedSet polls every element of set in turn and reports the first one
// that has resolved, removing it from the caller's responsibility (the
// caller splices it out of the backing slice). Traversal order is arbitrary,
// as spec.md §3 allows.
func pollTimedSet[Tag any, Output any](set []*upgrade.Timed[Tag, Output], w waker.Waker) (idx int, tag Tag, info upgrade.Info, output Output, uerr *upgrade.Error, resolved bool) {
	for i, t := range set {
		if tag, info, output, uerr, ok := t.Poll(); ok {
			return i, tag, info, output, uerr, true
		}
	}
	var zeroTag Tag
	var zeroOutput Output
	return 0, zeroTag, nil, zeroOutput, nil, false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
