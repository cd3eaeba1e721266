package core

import (
	"bytes"
	"strings"
	"sync"

	"github.com/charmbracelet/x/vt"

	"pkt.systems/tabaret/schema"
)

// Screen wraps a terminal emulator plus a scrollback ring behind one mutex.
// Exactly one writer (the session's reader goroutine) feeds it; the render
// loop only ever takes copies via Snapshot. Malformed escape sequences are
// absorbed by the emulator and never surface as errors.
type Screen struct {
	mu     sync.Mutex
	emu    *vt.Emulator
	back   *scrollback
	size   schema.TermSize
	signal *Signal
}

// NewScreen returns a screen with the given geometry (clamped to 1x1) and
// scrollback limit. signal may be nil for standalone use in tests.
func NewScreen(size schema.TermSize, scrollbackLines int, signal *Signal) *Screen {
	size = size.Clamp()
	return &Screen{
		emu:    vt.NewEmulator(size.Cols, size.Rows),
		back:   newScrollback(scrollbackLines),
		size:   size,
		signal: signal,
	}
}

// Feed consumes a chunk of raw child output in arrival order. Sequences
// split across chunk boundaries are handled by the emulator's incremental
// parser, so feeding a byte stream in any chunking yields the same grid.
func (s *Screen) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	s.feedLocked(p)
	s.mu.Unlock()
	s.signal.Raise()
}

// feedLocked writes the chunk through the emulator, capturing each row
// about to scroll off the top into the ring. A linefeed applied while the
// cursor sits on the bottom row pushes the current top row out, so the
// chunk is walked linefeed by linefeed. Alt-screen applications repaint in
// place and rarely trip this, which keeps the ring to genuinely scrolled
// output. The emulator's parser is incremental, so splitting at linefeeds
// does not disturb escape sequences. Caller holds s.mu.
func (s *Screen) feedLocked(p []byte) {
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			_, _ = s.emu.Write(p)
			return
		}
		if s.emu.CursorPosition().Y >= s.size.Rows-1 {
			if lines := s.gridLines(); len(lines) > 0 {
				s.back.Append(lines[0])
			}
		}
		_, _ = s.emu.Write(p[:i+1])
		p = p[i+1:]
	}
}

// Resize changes the visible grid geometry, clamped to a 1x1 minimum. The
// cursor stays within bounds; pathological sizes never panic.
func (s *Screen) Resize(size schema.TermSize) {
	size = size.Clamp()
	s.mu.Lock()
	if size == s.size {
		s.mu.Unlock()
		return
	}
	s.emu.Resize(size.Cols, size.Rows)
	s.size = size
	s.mu.Unlock()
	s.signal.Raise()
}

// Size returns the current grid geometry.
func (s *Screen) Size() schema.TermSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Scroll moves the viewport delta lines up (positive) or down (negative)
// through scrollback.
func (s *Screen) Scroll(delta int) {
	s.mu.Lock()
	before := s.back.scrollOffset
	s.back.Scroll(delta)
	changed := s.back.scrollOffset != before
	s.mu.Unlock()
	if changed {
		s.signal.Raise()
	}
}

// ResetScroll snaps the viewport back to the live grid.
func (s *Screen) ResetScroll() {
	s.mu.Lock()
	changed := s.back.scrollOffset != 0
	s.back.ResetScroll()
	s.mu.Unlock()
	if changed {
		s.signal.Raise()
	}
}

// Snapshot returns a copy of the visible screen for painting: the live grid
// when at the bottom, or a window spliced from scrollback plus grid when
// scrolled up. The cursor is always reported inside the grid bounds.
func (s *Screen) Snapshot() schema.ScreenSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	grid := s.gridLines()
	view := s.back.Window(s.size.Rows)

	lines := make([]string, 0, s.size.Rows)
	lines = append(lines, view.Lines...)
	if remain := s.size.Rows - len(lines); remain > 0 {
		if remain > len(grid) {
			remain = len(grid)
		}
		lines = append(lines, grid[:remain]...)
	}
	for len(lines) < s.size.Rows {
		lines = append(lines, "")
	}

	pos := s.emu.CursorPosition()
	row := clampInt(pos.Y, 0, s.size.Rows-1)
	col := clampInt(pos.X, 0, s.size.Cols-1)

	return schema.ScreenSnapshot{
		Lines:        lines,
		CursorRow:    row,
		CursorCol:    col,
		Size:         s.size,
		ScrollOffset: view.ScrollOffset,
		TotalLines:   view.TotalLines + s.size.Rows,
		AtBottom:     view.AtBottom,
	}
}

// gridLines splits the emulator's rendered grid into rows. Caller holds
// s.mu.
func (s *Screen) gridLines() []string {
	rendered := s.emu.Render()
	lines := strings.Split(rendered, "\r\n")
	if len(lines) > s.size.Rows {
		lines = lines[:s.size.Rows]
	}
	return lines
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
