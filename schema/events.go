package schema

// TerminalEventType describes session lifecycle or state changes emitted by
// the terminal manager.
type TerminalEventType string

const (
	// TerminalEventSpawned indicates a session's child process started.
	TerminalEventSpawned TerminalEventType = "spawned"
	// TerminalEventExited indicates a session's child process exited.
	TerminalEventExited TerminalEventType = "exited"
	// TerminalEventBell indicates an unfocused session rang its bell.
	TerminalEventBell TerminalEventType = "bell"
	// TerminalEventFocus indicates the focused session changed.
	TerminalEventFocus TerminalEventType = "focus"
	// TerminalEventClosed indicates a session was removed.
	TerminalEventClosed TerminalEventType = "closed"
)

// TerminalEvent reports a change observable by the dashboard.
type TerminalEvent struct {
	Type     TerminalEventType
	ID       SessionID
	ExitCode int
}
