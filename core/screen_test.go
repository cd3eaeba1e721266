package core

import (
	"strings"
	"testing"

	"pkt.systems/tabaret/schema"
)

func testSize() schema.TermSize {
	return schema.TermSize{Rows: 6, Cols: 20}
}

func TestScreenFeedRendersText(t *testing.T) {
	s := NewScreen(testSize(), 100, nil)
	s.Feed([]byte("hello"))
	snap := s.Snapshot()
	if len(snap.Lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(snap.Lines))
	}
	if !strings.Contains(snap.Lines[0], "hello") {
		t.Fatalf("expected top row to contain hello, got %q", snap.Lines[0])
	}
	if snap.CursorRow != 0 {
		t.Fatalf("expected cursor on row 0, got %d", snap.CursorRow)
	}
}

func TestScreenChunkBoundaryIndependence(t *testing.T) {
	// A color change, cursor moves, and printable runs all in one stream.
	input := []byte("plain \x1b[31mred\x1b[0m text\r\nsecond \x1b[1;5Hjump")

	whole := NewScreen(testSize(), 100, nil)
	whole.Feed(input)
	want := whole.Snapshot()

	for split := 1; split < len(input); split++ {
		s := NewScreen(testSize(), 100, nil)
		s.Feed(input[:split])
		s.Feed(input[split:])
		got := s.Snapshot()
		if got.CursorRow != want.CursorRow || got.CursorCol != want.CursorCol {
			t.Fatalf("split %d: cursor (%d,%d) != (%d,%d)", split,
				got.CursorRow, got.CursorCol, want.CursorRow, want.CursorCol)
		}
		for i := range want.Lines {
			if got.Lines[i] != want.Lines[i] {
				t.Fatalf("split %d: row %d %q != %q", split, i, got.Lines[i], want.Lines[i])
			}
		}
	}
}

func TestScreenFeedRaisesSignal(t *testing.T) {
	sig := NewSignal()
	s := NewScreen(testSize(), 100, sig)

	s.Feed([]byte("output"))
	if !sig.Pending() {
		t.Fatalf("expected redraw signal after feed")
	}
	<-sig.C()

	// Every content mutation after a drain must re-arm the signal.
	s.Feed([]byte("more"))
	if !sig.Pending() {
		t.Fatalf("expected redraw signal after second feed")
	}
}

func TestScreenResizeClampsAndRestores(t *testing.T) {
	orig := schema.TermSize{Rows: 10, Cols: 40}
	s := NewScreen(orig, 100, nil)
	s.Feed([]byte("resize me"))

	steps := []schema.TermSize{
		{Rows: 24, Cols: 80},
		{Rows: 0, Cols: 0},
		{Rows: 1, Cols: 1},
		orig,
	}
	for _, step := range steps {
		s.Resize(step)
		snap := s.Snapshot()
		want := step.Clamp()
		if snap.Size != want {
			t.Fatalf("expected size %+v, got %+v", want, snap.Size)
		}
		if snap.CursorRow < 0 || snap.CursorRow >= want.Rows {
			t.Fatalf("cursor row %d out of bounds for %d rows", snap.CursorRow, want.Rows)
		}
		if snap.CursorCol < 0 || snap.CursorCol >= want.Cols {
			t.Fatalf("cursor col %d out of bounds for %d cols", snap.CursorCol, want.Cols)
		}
	}
	if got := s.Size(); got != orig {
		t.Fatalf("expected restored size %+v, got %+v", orig, got)
	}
}

func TestScreenMalformedEscapesAbsorbed(t *testing.T) {
	s := NewScreen(testSize(), 100, nil)
	s.Feed([]byte("\x1b[999;999;999zzz\x1b]madness"))
	s.Feed([]byte("\x07\x1b[?9999x"))
	// Still accepting input afterwards.
	s.Feed([]byte("\x1b[Hok"))
	snap := s.Snapshot()
	if !strings.Contains(snap.Lines[0], "ok") {
		t.Fatalf("expected screen to keep working after garbage, got %q", snap.Lines[0])
	}
}

func TestScreenScrollbackCapturesScrolledRows(t *testing.T) {
	size := schema.TermSize{Rows: 3, Cols: 20}
	s := NewScreen(size, 100, nil)
	s.Feed([]byte("one\r\ntwo\r\nthree\r\nfour\r\nfive"))

	s.Scroll(2)
	snap := s.Snapshot()
	if snap.AtBottom {
		t.Fatalf("expected scrolled view")
	}
	if snap.ScrollOffset != 2 {
		t.Fatalf("expected offset 2, got %d", snap.ScrollOffset)
	}
	joined := strings.Join(snap.Lines, "\n")
	if !strings.Contains(joined, "one") {
		t.Fatalf("expected scrolled-off row in view, got %q", joined)
	}

	s.ResetScroll()
	snap = s.Snapshot()
	if !snap.AtBottom {
		t.Fatalf("expected view back at bottom")
	}
}

func TestScreenScrollRaisesSignalOnChange(t *testing.T) {
	sig := NewSignal()
	size := schema.TermSize{Rows: 3, Cols: 20}
	s := NewScreen(size, 100, sig)
	s.Feed([]byte("a\r\nb\r\nc\r\nd\r\ne"))
	for sig.Pending() {
		<-sig.C()
	}

	s.Scroll(1)
	if !sig.Pending() {
		t.Fatalf("expected signal after scroll")
	}
	<-sig.C()

	// Scrolling down while already at the bottom changes nothing and may
	// leave the signal unraised.
	s.ResetScroll()
	for sig.Pending() {
		<-sig.C()
	}
	s.Scroll(-1)
	if sig.Pending() {
		t.Fatalf("no-op scroll should not raise the signal")
	}
}
