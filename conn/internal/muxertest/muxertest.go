// Package muxertest provides muxer.StreamMuxer test doubles used by
// connection driver tests, modeled on the DummyStreamMuxer/PendingStreamMuxer
// fixtures from the rust-libp2p connection test suite.
package muxertest

import (
	"io"
	"sync"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/muxer"
	"github.com/TheNoobiCat/go-libp2p-swarm/conn/waker"
)

// PendingSubstream never makes progress: Read/Write block until Close,
// which returns them with io.EOF.
type PendingSubstream struct {
	done chan struct{}
}

// NewPendingSubstream builds a PendingSubstream.
func NewPendingSubstream() *PendingSubstream {
	return &PendingSubstream{done: make(chan struct{})}
}

func (s *PendingSubstream) Read(_ []byte) (int, error) {
	<-s.done
	return 0, io.EOF
}

func (s *PendingSubstream) Write(_ []byte) (int, error) {
	<-s.done
	return 0, io.EOF
}

func (s *PendingSubstream) Close() error {
	close(s.done)
	return nil
}

// Dummy yields an inbound substream on every poll (up to Limit, if
// non-zero) and never yields an outbound one. Counter, if non-nil, is
// incremented once per substream handed out and decremented when that
// substream is closed, letting tests assert on the number of substreams
// alive at once (e.g. to verify max-negotiating-inbound-streams is
// honored). Every substream handed out is tracked so CloseAll can unblock
// any negotiation still reading from one when a test ends.
//
// If AddressChange is non-nil, the first PollAddressChange call reports it
// and every call after reports none: a one-shot address-change event.
type Dummy struct {
	Counter       *int
	Limit         int
	AddressChange ma.Multiaddr

	mu               sync.Mutex
	handed           []*countingSubstream
	yielded          int
	addressDelivered bool
}

func (m *Dummy) PollInbound(waker.Waker) (muxer.Substream, error, bool) {
	m.mu.Lock()
	if m.Limit > 0 && m.yielded >= m.Limit {
		m.mu.Unlock()
		return nil, nil, false
	}
	m.yielded++
	m.mu.Unlock()

	if m.Counter != nil {
		*m.Counter++
	}
	s := &countingSubstream{PendingSubstream: NewPendingSubstream(), counter: m.Counter}
	m.mu.Lock()
	m.handed = append(m.handed, s)
	m.mu.Unlock()
	return s, nil, true
}

func (m *Dummy) PollOutbound(waker.Waker) (muxer.Substream, error, bool) {
	return nil, nil, false
}

func (m *Dummy) PollAddressChange(waker.Waker) (ma.Multiaddr, error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddressChange != nil && !m.addressDelivered {
		m.addressDelivered = true
		return m.AddressChange, nil, true
	}
	return nil, nil, false
}

func (m *Dummy) Close() error {
	return m.CloseAll()
}

// CloseAll closes every substream handed out so far, unblocking any
// negotiation goroutine still reading from one. Intended for test cleanup.
func (m *Dummy) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.handed {
		s.Close()
	}
	m.handed = nil
	return nil
}

type countingSubstream struct {
	*PendingSubstream
	counter *int
}

func (s *countingSubstream) Close() error {
	if s.counter != nil {
		*s.counter--
	}
	return s.PendingSubstream.Close()
}

// Pending never yields a substream in either direction and never reports an
// address change; every Poll* call reports Pending.
type Pending struct{}

func (Pending) PollInbound(waker.Waker) (muxer.Substream, error, bool)  { return nil, nil, false }
func (Pending) PollOutbound(waker.Waker) (muxer.Substream, error, bool) { return nil, nil, false }
func (Pending) PollAddressChange(waker.Waker) (ma.Multiaddr, error, bool) {
	return nil, nil, false
}
func (Pending) Close() error { return nil }

var (
	_ muxer.StreamMuxer = (*Dummy)(nil)
	_ muxer.StreamMuxer = Pending{}
)
