package core

// Signal is the coalescing redraw wake shared by every mutator of terminal
// state. Raising it is non-blocking; any number of raises between two render
// passes collapse into a single wake, and a raise is never lost: either the
// slot is empty and the token is queued, or a token is already pending and
// the render loop has not consumed it yet.
type Signal struct {
	ch chan struct{}
}

// NewSignal returns a ready-to-use redraw signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Raise marks that a repaint is needed. Safe from any goroutine.
func (s *Signal) Raise() {
	if s == nil {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the render loop selects on. Receiving one token
// consumes the pending wake; mutations after the receive re-arm it.
func (s *Signal) C() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.ch
}

// Pending reports whether a wake is queued without consuming it.
func (s *Signal) Pending() bool {
	if s == nil {
		return false
	}
	return len(s.ch) > 0
}
