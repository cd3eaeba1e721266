package schema

// TabSnapshot is a read-only view of one managed session for the tab bar.
type TabSnapshot struct {
	ID       SessionID
	Title    string
	Index    int
	Active   bool
	Bell     bool
	Exited   bool
	ExitCode int
}

// ScreenSnapshot is a read-only copy of a session's screen state, taken
// once per render pass. Lines covers the visible viewport with any
// scrollback offset already applied.
type ScreenSnapshot struct {
	Lines []string
	// CursorRow and CursorCol are zero-based and always within the grid.
	CursorRow int
	CursorCol int
	Size      TermSize
	// ScrollOffset is the number of lines scrolled up from the bottom;
	// zero means the live grid is shown.
	ScrollOffset int
	TotalLines   int
	AtBottom     bool
}
