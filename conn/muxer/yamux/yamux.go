// Package yamux adapts a yamux.Session to the conn/muxer.StreamMuxer poll
// contract, bridging yamux's blocking OpenStream/AcceptStream API to the
// driver's single-call, non-blocking Poll* methods via background
// goroutines and buffered result channels.
package yamux

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/libp2p/go-yamux/v5"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/muxer"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

var log = logging.Logger("conn/muxer/yamux")

type outboundResult struct {
	stream *yamux.Stream
	err    error
}

// Muxer wraps a yamux.Session so it satisfies muxer.StreamMuxer. Named by
// type conversion over yamux.Session the way the rest of the ecosystem
// wraps it, rather than by embedding, so it carries no state of its own
// beyond the background plumbing below.
type Muxer struct {
	session *yamux.Session

	acceptCh chan muxer.Substream
	closeCh  chan struct{}

	outboundReq   chan struct{}
	outboundResCh chan outboundResult
	outboundW     waker.Waker
	inboundW      waker.Waker
}

// New starts the accept loop over session and returns a muxer.StreamMuxer.
// The muxer never reports an address change: yamux runs over an already
// established byte stream, which has no mid-connection address to change.
func New(session *yamux.Session) *Muxer {
	m := &Muxer{
		session:       session,
		acceptCh:      make(chan muxer.Substream, 1),
		closeCh:       make(chan struct{}),
		outboundReq:   make(chan struct{}, 1),
		outboundResCh: make(chan outboundResult, 1),
	}
	go m.acceptLoop()
	go m.outboundLoop()
	return m
}

func (m *Muxer) acceptLoop() {
	for {
		s, err := m.session.AcceptStream()
		if err != nil {
			log.Debugw("yamux accept loop stopped", "error", err)
			return
		}
		select {
		case m.acceptCh <- s:
			if w := m.inboundW; w != nil {
				w.Wake()
			}
		case <-m.closeCh:
			s.Close()
			return
		}
	}
}

func (m *Muxer) outboundLoop() {
	for {
		select {
		case <-m.outboundReq:
			s, err := m.session.OpenStream(context.Background())
			if err != nil {
				log.Debugw("yamux outbound stream open failed", "error", err)
			}
			select {
			case m.outboundResCh <- outboundResult{stream: s, err: err}:
				if w := m.outboundW; w != nil {
					w.Wake()
				}
			case <-m.closeCh:
				if s != nil {
					s.Close()
				}
				return
			}
		case <-m.closeCh:
			return
		}
	}
}

// PollOutbound asks the session for a new outbound stream. The first call
// after the last one resolved kicks off an open request in the background;
// callers must keep polling until ok is true or err is non-nil.
func (m *Muxer) PollOutbound(w waker.Waker) (muxer.Substream, error, bool) {
	m.outboundW = w
	select {
	case res := <-m.outboundResCh:
		if res.err != nil {
			return nil, translateErr(res.err), false
		}
		return res.stream, nil, true
	default:
	}

	select {
	case m.outboundReq <- struct{}{}:
	default:
	}
	return nil, nil, false
}

// PollInbound reports a stream the remote opened, if the accept loop has
// buffered one.
func (m *Muxer) PollInbound(w waker.Waker) (muxer.Substream, error, bool) {
	m.inboundW = w
	select {
	case s := <-m.acceptCh:
		return s, nil, true
	default:
		if m.session.IsClosed() {
			log.Debugw("yamux session closed while polling for inbound streams")
			return nil, errors.New("yamux: session closed"), false
		}
		return nil, nil, false
	}
}

// PollAddressChange never fires: a yamux session has no address to change.
func (m *Muxer) PollAddressChange(waker.Waker) (ma.Multiaddr, error, bool) {
	return nil, nil, false
}

// Close tears down the session and stops the background loops.
func (m *Muxer) Close() error {
	close(m.closeCh)
	return m.session.Close()
}

func translateErr(err error) error {
	se := &yamux.StreamError{}
	if errors.As(err, &se) {
		return fmt.Errorf("yamux stream error: %w", err)
	}
	ge := &yamux.GoAwayError{}
	if errors.As(err, &ge) {
		return fmt.Errorf("yamux session closed by remote: %w", err)
	}
	return err
}

var _ muxer.StreamMuxer = (*Muxer)(nil)
