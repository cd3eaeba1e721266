package core

import "pkt.systems/tabaret/schema"

// EventSink receives terminal lifecycle events from the manager and its
// sessions. Implementations must not block; emission happens outside the
// manager lock but on hot paths.
type EventSink interface {
	OnTerminalEvent(event schema.TerminalEvent)
}
