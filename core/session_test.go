package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/schema"
)

func testManagerConfig() schema.ManagerConfig {
	return schema.NormalizeManagerConfig(schema.ManagerConfig{
		ScrollbackLines: 200,
		KillGraceMillis: 100,
	})
}

func spawnTestSession(t *testing.T, id string, command ...string) (*Session, *Signal) {
	t.Helper()
	sig := NewSignal()
	sess, err := spawnSession(schema.AttachRequest{
		ID:      schema.SessionID(id),
		Command: command,
		Size:    schema.TermSize{Rows: 6, Cols: 40},
	}, testManagerConfig(), sig, nil, pslog.Ctx(context.Background()))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess, sig
}

// drainUntil consumes redraw wakes until cond holds or the deadline passes.
func drainUntil(t *testing.T, sig *Signal, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-sig.C():
		case <-deadline:
			t.Fatalf("condition not reached before deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestSessionEndToEndEcho(t *testing.T) {
	sess, sig := spawnTestSession(t, "echo", "/bin/cat")

	sess.WriteInput([]byte("hello\n"))
	drainUntil(t, sig, func() bool {
		snap := sess.Screen().Snapshot()
		return strings.Contains(snap.Lines[0], "hello")
	})
}

func TestSessionSpawnFailures(t *testing.T) {
	cfg := testManagerConfig()
	log := pslog.Ctx(context.Background())

	cases := []schema.AttachRequest{
		{ID: "none"},
		{ID: "missing", Command: []string{"definitely-not-a-binary-9f2c"}},
		{ID: "badcwd", Command: []string{"/bin/sh"}, Dir: "/no/such/dir/9f2c"},
	}
	for _, req := range cases {
		req.Size = schema.TermSize{Rows: 4, Cols: 20}
		if _, err := spawnSession(req, cfg, NewSignal(), nil, log); !errors.Is(err, schema.ErrSpawn) {
			t.Fatalf("request %+v: expected ErrSpawn, got %v", req, err)
		}
	}
}

func TestSessionRecordsExitStatus(t *testing.T) {
	sess, sig := spawnTestSession(t, "exit7", "/bin/sh", "-c", "exit 7")

	drainUntil(t, sig, func() bool { return !sess.Running() })
	code, exited := sess.ExitStatus()
	if !exited {
		t.Fatalf("expected exited")
	}
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}
}

func TestSessionWriteAfterExitIsNoop(t *testing.T) {
	sess, sig := spawnTestSession(t, "dead", "/bin/sh", "-c", "exit 0")
	drainUntil(t, sig, func() bool { return !sess.Running() })

	before := sess.Screen().Snapshot()
	sess.WriteInput([]byte("ignored\n"))
	time.Sleep(50 * time.Millisecond)
	after := sess.Screen().Snapshot()

	if len(before.Lines) != len(after.Lines) {
		t.Fatalf("line count changed after dead write")
	}
	for i := range before.Lines {
		if before.Lines[i] != after.Lines[i] {
			t.Fatalf("row %d changed after dead write: %q != %q", i, before.Lines[i], after.Lines[i])
		}
	}
}

func TestSessionBellSetsActivityWhenUnfocused(t *testing.T) {
	sess, sig := spawnTestSession(t, "bell", "/bin/sh", "-c", `sleep 0.1; printf '\a'; sleep 2`)
	sess.setFocused(false)

	drainUntil(t, sig, func() bool { return sess.Activity() })
}

func TestSessionFocusedNeverAccumulatesActivity(t *testing.T) {
	sess, sig := spawnTestSession(t, "focused", "/bin/sh", "-c", `printf 'noisy\a output\n'; sleep 2`)
	sess.setFocused(true)

	drainUntil(t, sig, func() bool {
		snap := sess.Screen().Snapshot()
		return strings.Contains(strings.Join(snap.Lines, "\n"), "noisy")
	})
	if sess.Activity() {
		t.Fatalf("focused session accumulated activity")
	}
}

func TestSessionResizePropagates(t *testing.T) {
	sess, _ := spawnTestSession(t, "resize", "/bin/sh", "-c", "sleep 2")

	sess.Resize(schema.TermSize{Rows: 24, Cols: 80})
	if got := sess.Screen().Size(); got != (schema.TermSize{Rows: 24, Cols: 80}) {
		t.Fatalf("expected 24x80, got %+v", got)
	}
	sess.Resize(schema.TermSize{Rows: 6, Cols: 40})
	snap := sess.Screen().Snapshot()
	if snap.Size != (schema.TermSize{Rows: 6, Cols: 40}) {
		t.Fatalf("expected restored size, got %+v", snap.Size)
	}
	if snap.CursorRow >= snap.Size.Rows || snap.CursorCol >= snap.Size.Cols {
		t.Fatalf("cursor out of bounds after resize: %+v", snap)
	}
}

func TestSessionCloseTerminatesChild(t *testing.T) {
	sess, sig := spawnTestSession(t, "close", "/bin/sh", "-c", "sleep 30")
	sess.Close()
	drainUntil(t, sig, func() bool { return !sess.Running() })
}
