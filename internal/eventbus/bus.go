package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/schema"
)

// Bus fans terminal lifecycle events out to subscribers. Publishing never
// blocks: a subscriber that falls behind its buffer loses events, which is
// acceptable for UI notifications since the dashboard re-reads full state
// on every repaint anyway.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan schema.TerminalEvent]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan schema.TerminalEvent]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns its channel plus a cancel
// function that closes it.
func (b *Bus) Subscribe() (<-chan schema.TerminalEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.TerminalEvent, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
		b.log.Debug("eventbus unsubscribe")
	}
}

// OnTerminalEvent publishes a terminal event to all subscribers. Satisfies
// core.EventSink.
func (b *Bus) OnTerminalEvent(event schema.TerminalEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan schema.TerminalEvent, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}
