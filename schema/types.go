package schema

// SessionID identifies an agent conversation session. For discovered
// sessions this is the id embedded in the conversation log filename; for
// freshly launched sessions it is generated at launch time.
type SessionID string

// SessionStatus describes what a discovered session is currently doing.
type SessionStatus string

const (
	// StatusThinking indicates the agent is composing a response.
	StatusThinking SessionStatus = "thinking"
	// StatusActive indicates the agent produced output recently.
	StatusActive SessionStatus = "active"
	// StatusIdle indicates the agent is waiting for user input.
	StatusIdle SessionStatus = "idle"
	// StatusHung indicates a live process with no log activity for a while.
	StatusHung SessionStatus = "hung"
	// StatusDead indicates no live process backs the session.
	StatusDead SessionStatus = "dead"
)

// CycleDirection selects the tab-cycling direction.
type CycleDirection int

const (
	// CycleNext moves focus forward in insertion order.
	CycleNext CycleDirection = 1
	// CyclePrev moves focus backward in insertion order.
	CyclePrev CycleDirection = -1
)

// TermSize is a terminal geometry in character cells.
type TermSize struct {
	Rows int
	Cols int
}

// Clamp enforces the 1x1 minimum geometry.
func (s TermSize) Clamp() TermSize {
	if s.Rows < 1 {
		s.Rows = 1
	}
	if s.Cols < 1 {
		s.Cols = 1
	}
	return s
}
