package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yllada/wa-desktop/common"
)

// Phase represents the lifecycle phase of a Session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseAwaitingScan
	PhaseAwaitingPairing
	PhaseOpen
	PhaseClosed
	// PhaseHalted is only reported by the Supervisor after a terminal closure.
	PhaseHalted
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseAwaitingScan:
		return "awaiting-scan"
	case PhaseAwaitingPairing:
		return "awaiting-pairing"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	case PhaseHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// eventQueueSize bounds the events buffered between the client and the
// supervisor loop. A full queue blocks the client callback.
const eventQueueSize = 64

// Session is one protocol client instance and its observed state.
type Session struct {
	ID        string
	Version   common.Version
	StartedAt time.Time

	client common.ProtocolClient
	save   common.SaveFunc

	mu             sync.RWMutex
	phase          Phase
	lastDisconnect *common.Disconnect

	events      chan common.Event
	retired     chan struct{}
	retireOnce  sync.Once
	unsubscribe func()
	pairing     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// LastDisconnect returns the reason of the last closure, or nil.
func (s *Session) LastDisconnect() *common.Disconnect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastDisconnect == nil {
		return nil
	}
	d := *s.lastDisconnect
	return &d
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *Session) setClosed(d *common.Disconnect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseClosed
	s.lastDisconnect = d
}

// deliver queues ev for the supervisor loop. It reports false once the
// session has been retired; such events are dropped.
func (s *Session) deliver(ev common.Event) bool {
	select {
	case <-s.retired:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.retired:
		return false
	}
}

// retire stops event delivery, removes the client handler and disconnects
// the client. Safe to call more than once.
func (s *Session) retire() {
	s.retireOnce.Do(func() {
		close(s.retired)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.client.Disconnect()
		s.cancel()
	})
}

// isRetired reports whether retire has been called.
func (s *Session) isRetired() bool {
	select {
	case <-s.retired:
		return true
	default:
		return false
	}
}
