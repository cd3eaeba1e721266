package schema

// AttachRequest asks the terminal manager to focus an existing session or
// spawn a new pty-backed child for it.
type AttachRequest struct {
	ID SessionID
	// Command is the program and its arguments, argv style.
	Command []string
	// Dir is the working directory for the child.
	Dir string
	// Size is the initial terminal geometry.
	Size TermSize
	// KillPID, when non-zero, is a foreign process holding the session that
	// must be terminated before the spawn so the child can take it over.
	KillPID int
}

// AttachResponse reports the attached session.
type AttachResponse struct {
	Tab     TabSnapshot
	Spawned bool
}

// CloseRequest asks the manager to kill and remove a session.
type CloseRequest struct {
	ID SessionID
}

// ResizeRequest propagates a terminal window size change.
type ResizeRequest struct {
	Size TermSize
	// All resizes every session instead of only the focused one.
	All bool
}
