package core

import "pkt.systems/tabaret/schema"

// scrollView is a snapshot of the scrollback's visible state.
type scrollView struct {
	Lines        []string
	TotalLines   int
	ScrollOffset int
	AtBottom     bool
}

// scrollback stores lines that scrolled off the top of the live grid plus
// the current scroll state. ScrollOffset is the number of lines from the
// bottom; 0 means the live grid is shown.
type scrollback struct {
	lines        []string
	scrollOffset int
	maxLines     int
}

// Append adds lines to the ring. If the view is scrolled up, the offset is
// increased to keep it anchored on the same content.
func (b *scrollback) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.lines = append(b.lines, lines...)
	if b.scrollOffset > 0 {
		b.scrollOffset += len(lines)
	}
	maxLines := b.maxLines
	if maxLines <= 0 {
		maxLines = schema.DefaultScrollbackLines
	}
	if len(b.lines) > maxLines {
		trim := len(b.lines) - maxLines
		b.lines = b.lines[trim:]
		if b.scrollOffset > len(b.lines) {
			b.scrollOffset = len(b.lines)
		}
		if b.scrollOffset < 0 {
			b.scrollOffset = 0
		}
	}
}

// ResetScroll returns the view to the bottom.
func (b *scrollback) ResetScroll() {
	b.scrollOffset = 0
}

// Scroll adjusts the offset by delta. Positive delta scrolls up (older
// lines), negative delta scrolls down.
func (b *scrollback) Scroll(delta int) {
	b.scrollOffset = clampScroll(b.scrollOffset+delta, len(b.lines))
}

// Window returns the scrollback portion of a viewport of limit rows
// scrolled scrollOffset lines above the live grid, for splicing above the
// grid's top rows.
func (b *scrollback) Window(limit int) scrollView {
	total := len(b.lines)
	if limit <= 0 || limit > total {
		limit = total
	}

	if b.scrollOffset > total {
		b.scrollOffset = total
	}

	end := total - maxInt(b.scrollOffset-limit, 0)
	if end > total {
		end = total
	}
	start := end - minInt(b.scrollOffset, limit)
	if start < 0 {
		start = 0
	}

	lines := make([]string, end-start)
	copy(lines, b.lines[start:end])

	return scrollView{
		Lines:        lines,
		TotalLines:   total,
		ScrollOffset: b.scrollOffset,
		AtBottom:     b.scrollOffset == 0,
	}
}

// newScrollback returns a ring with the given line limit, or the default
// when maxLines is not positive.
func newScrollback(maxLines int) *scrollback {
	b := &scrollback{maxLines: schema.DefaultScrollbackLines}
	if maxLines > 0 {
		b.maxLines = maxLines
	}
	return b
}

func clampScroll(offset, total int) int {
	if offset < 0 {
		return 0
	}
	if offset > total {
		return total
	}
	return offset
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
