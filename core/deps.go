package core

import "pkt.systems/pslog"

// ManagerDeps captures optional dependencies for the terminal manager.
type ManagerDeps struct {
	Sink   EventSink
	Logger pslog.Logger
	// Signal, when set, is shared with the caller's render loop. A private
	// signal is created otherwise.
	Signal *Signal
}
