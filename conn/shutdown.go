package conn

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TheNoobiCat/go-libp2p-swarm/conn/handler"
)

// shutdownKind discriminates the planned-shutdown variants.
type shutdownKind uint8

const (
	shutdownNone shutdownKind = iota
	shutdownAsap
	shutdownLater
)

// shutdown is the connection & handler's planned shutdown, reshaped after
// every handler poll from the handler's keep-alive intent (spec.md §4.1
// "KeepAlive evaluation").
type shutdown struct {
	kind     shutdownKind
	timer    *clock.Timer
	deadline time.Time
}

// evaluate applies the (current shutdown, keep-alive) transition table from
// spec.md §4.1 in place, stopping any timer it replaces so timers never
// leak.
func (s *shutdown) evaluate(clk clock.Clock, ka handler.KeepAlive, now time.Time) {
	if until, isUntil := ka.Until(); isUntil {
		if s.kind == shutdownLater && s.deadline.Equal(until) {
			// Unchanged: same deadline, leave the running timer alone.
			return
		}
		s.stopTimer()
		if d := until.Sub(now); d > 0 {
			s.kind = shutdownLater
			s.deadline = until
			s.timer = clk.Timer(d)
		} else {
			// Deadline already passed: equivalent to Asap, the next
			// shutdown check fires immediately once idle.
			s.kind = shutdownAsap
		}
		return
	}

	if ka.IsNo() {
		s.stopTimer()
		s.kind = shutdownAsap
		return
	}

	// KeepAlive::Yes
	s.stopTimer()
	s.kind = shutdownNone
}

func (s *shutdown) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// checkReady reports whether the shutdown plan fires right now. Must only
// be called when all three stream collections are empty (spec.md §4.1
// "Shutdown check").
func (s *shutdown) checkReady() bool {
	switch s.kind {
	case shutdownAsap:
		return true
	case shutdownLater:
		select {
		case <-s.timer.C:
			return true
		default:
			return false
		}
	default:
		return false
	}
}
