package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/schema"
)

// Session owns one spawned child process, its pty pair, and the screen fed
// by the child's output. The child is never written to or killed by anyone
// else; all access goes through this type. Exactly one reader goroutine
// exists per live session.
type Session struct {
	id      schema.SessionID
	command []string
	dir     string
	title   string

	screen *Screen
	signal *Signal
	sink   EventSink
	log    pslog.Logger

	mu       sync.Mutex
	ptmx     *os.File
	cmd      *exec.Cmd
	exited   bool
	exitCode int

	focused  atomic.Bool
	activity atomic.Bool

	killGrace time.Duration
	done      chan struct{}
}

// spawnSession allocates a pty, launches the child inside it, and starts
// the reader. On any failure the partially created pair is torn down before
// the error is returned; errors wrap schema.ErrSpawn.
func spawnSession(req schema.AttachRequest, cfg schema.ManagerConfig, signal *Signal, sink EventSink, log pslog.Logger) (*Session, error) {
	if len(req.Command) == 0 || req.Command[0] == "" {
		return nil, fmt.Errorf("%w: %w", schema.ErrSpawn, schema.ErrEmptyCommand)
	}
	if req.Dir != "" {
		info, err := os.Stat(req.Dir)
		if err != nil {
			return nil, fmt.Errorf("%w: workdir %s: %w", schema.ErrSpawn, req.Dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: workdir %s is not a directory", schema.ErrSpawn, req.Dir)
		}
	}
	if _, err := exec.LookPath(req.Command[0]); err != nil {
		return nil, fmt.Errorf("%w: %w", schema.ErrSpawn, err)
	}

	size := req.Size.Clamp()
	cmd := exec.Command(req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(size.Rows),
		Cols: uint16(size.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", schema.ErrSpawn, err)
	}

	s := &Session{
		id:        req.ID,
		command:   req.Command,
		dir:       req.Dir,
		title:     sessionTitle(req),
		screen:    NewScreen(size, cfg.ScrollbackLines, signal),
		signal:    signal,
		sink:      sink,
		log:       log,
		ptmx:      ptmx,
		cmd:       cmd,
		killGrace: time.Duration(cfg.KillGraceMillis) * time.Millisecond,
		done:      make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() schema.SessionID { return s.id }

// Dir returns the working directory used at spawn time.
func (s *Session) Dir() string { return s.dir }

// Screen returns the session's screen for snapshots and scrolling.
func (s *Session) Screen() *Screen { return s.screen }

// run is the reader goroutine: it pumps child output into the screen until
// the pty closes, then reaps the child. A closed pty end is the normal end
// of life for a session, never an error.
func (s *Session) run() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if !s.focused.Load() {
				s.markActivity(bytes.IndexByte(chunk, 0x07) >= 0)
			}
			s.screen.Feed(chunk)
		}
		if err != nil {
			break
		}
	}

	code := waitExitCode(s.cmd)
	s.mu.Lock()
	s.exited = true
	s.exitCode = code
	s.mu.Unlock()
	close(s.done)
	s.signal.Raise()
	s.log.Debug("session exited", "session", s.id, "code", code)
	if s.sink != nil {
		s.sink.OnTerminalEvent(schema.TerminalEvent{
			Type:     schema.TerminalEventExited,
			ID:       s.id,
			ExitCode: code,
		})
	}
}

// markActivity flips the activity flag for unfocused output and emits a
// bell event on the rising edge.
func (s *Session) markActivity(bell bool) {
	if s.activity.Swap(true) {
		return
	}
	s.signal.Raise()
	if bell && s.sink != nil {
		s.sink.OnTerminalEvent(schema.TerminalEvent{
			Type: schema.TerminalEventBell,
			ID:   s.id,
		})
	}
}

// WriteInput forwards raw bytes to the child. Writes after exit are
// silently dropped; input races with process death are expected. Writing
// clears the activity flag and snaps the view back to the live grid.
func (s *Session) WriteInput(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return
	}
	ptmx := s.ptmx
	s.mu.Unlock()

	s.activity.Store(false)
	s.screen.ResetScroll()
	if _, err := ptmx.Write(p); err != nil {
		s.log.Trace("session write dropped", "session", s.id, "err", err)
	}
}

// Resize propagates a geometry change to the OS pty and the screen. Both
// sides change under the session lock so no snapshot between them can see
// mismatched sizes.
func (s *Session) Resize(size schema.TermSize) {
	size = size.Clamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exited {
		if err := pty.Setsize(s.ptmx, &pty.Winsize{
			Rows: uint16(size.Rows),
			Cols: uint16(size.Cols),
		}); err != nil {
			s.log.Trace("pty resize failed", "session", s.id, "err", err)
		}
	}
	s.screen.Resize(size)
}

// Running reports whether the child is still alive.
func (s *Session) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// ExitStatus returns the recorded exit code once the child has exited.
func (s *Session) ExitStatus() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exited
}

// Activity reports the unseen-output flag.
func (s *Session) Activity() bool { return s.activity.Load() }

// ClearActivity resets the unseen-output flag.
func (s *Session) ClearActivity() { s.activity.Store(false) }

// setFocused marks the session as the one being rendered. Focusing clears
// accumulated activity; focused sessions never accumulate it.
func (s *Session) setFocused(focused bool) {
	s.focused.Store(focused)
	if focused {
		s.activity.Store(false)
	}
}

// Close terminates the child and releases the pty. It signals SIGTERM,
// escalates to SIGKILL after the grace period, and closes the master so the
// reader observes stream closure rather than being torn down mid-parse.
// Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	exited := s.exited
	ptmx := s.ptmx
	proc := s.cmd.Process
	s.mu.Unlock()

	if !exited && proc != nil {
		_ = proc.Signal(syscall.SIGTERM)
		go func() {
			select {
			case <-s.done:
			case <-time.After(s.killGrace):
				_ = proc.Kill()
			}
		}()
	}
	if ptmx != nil {
		_ = ptmx.Close()
	}
}

// waitExitCode reaps the child and extracts its exit code, mapping signal
// deaths to 128+signal the way shells report them.
func waitExitCode(cmd *exec.Cmd) int {
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return -1
}

// sessionTitle derives the tab title from the attach request.
func sessionTitle(req schema.AttachRequest) string {
	if req.Dir != "" {
		return filepath.Base(req.Dir)
	}
	return filepath.Base(req.Command[0])
}
