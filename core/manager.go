package core

import (
	"context"
	"sync"
	"syscall"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/schema"
)

// Manager owns the ordered collection of live sessions, the focus pointer,
// and the shared redraw signal. Insertion order is preserved for
// deterministic tab cycling. All mutation happens under one mutex; events
// are emitted after it is released.
type Manager struct {
	cfg    schema.ManagerConfig
	sink   EventSink
	log    pslog.Logger
	signal *Signal

	mu       sync.Mutex
	sessions map[schema.SessionID]*Session
	order    []schema.SessionID
	active   schema.SessionID
	closed   bool
}

// NewManager constructs a manager with normalized config.
func NewManager(cfg schema.ManagerConfig, deps ManagerDeps) *Manager {
	cfg = schema.NormalizeManagerConfig(cfg)
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	signal := deps.Signal
	if signal == nil {
		signal = NewSignal()
	}
	return &Manager{
		cfg:      cfg,
		sink:     deps.Sink,
		log:      logger,
		signal:   signal,
		sessions: make(map[schema.SessionID]*Session),
	}
}

// Signal returns the shared redraw signal for the render loop.
func (m *Manager) Signal() *Signal { return m.signal }

// Attach focuses the live session for the request's identifier, spawning a
// new pty-backed child only when none exists. Attaching the same identifier
// twice never yields a second child process.
func (m *Manager) Attach(ctx context.Context, req schema.AttachRequest) (schema.AttachResponse, error) {
	if req.ID == "" {
		req.ID = newID()
	}
	if req.Size.Rows <= 0 || req.Size.Cols <= 0 {
		req.Size = m.cfg.DefaultSize
	}
	log := pslog.Ctx(ctx).With("session", req.ID)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return schema.AttachResponse{}, schema.ErrManagerClosed
	}
	if existing, ok := m.sessions[req.ID]; ok && existing.Running() {
		m.focusLocked(req.ID)
		tab := m.tabLocked(req.ID)
		m.mu.Unlock()
		m.signal.Raise()
		m.emit(schema.TerminalEvent{Type: schema.TerminalEventFocus, ID: req.ID})
		log.Debug("session refocused")
		return schema.AttachResponse{Tab: tab, Spawned: false}, nil
	}
	if stale, ok := m.sessions[req.ID]; ok {
		// Exited but not yet dismissed; replace it. Focus must move off the
		// removed session now, so a spawn failure below cannot leave the
		// pointer referencing a session that is gone.
		stale.Close()
		next := m.removeLocked(req.ID)
		if m.active == req.ID {
			if next != "" {
				m.focusLocked(next)
			} else {
				m.active = ""
			}
		}
	}
	m.mu.Unlock()

	if req.KillPID > 0 {
		// A foreign process still holds the underlying conversation; the
		// respawned child cannot acquire it until that one is gone.
		killProcess(req.KillPID, time.Duration(m.cfg.KillGraceMillis)*time.Millisecond)
	}

	sess, err := spawnSession(req, m.cfg, m.signal, m.sink, log)
	if err != nil {
		log.Warn("session spawn failed", "err", err)
		return schema.AttachResponse{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sess.Close()
		return schema.AttachResponse{}, schema.ErrManagerClosed
	}
	m.sessions[req.ID] = sess
	m.order = append(m.order, req.ID)
	m.focusLocked(req.ID)
	tab := m.tabLocked(req.ID)
	m.mu.Unlock()

	m.signal.Raise()
	m.emit(schema.TerminalEvent{Type: schema.TerminalEventSpawned, ID: req.ID})
	log.Info("session spawned", "command", req.Command[0], "dir", req.Dir,
		"rows", req.Size.Rows, "cols", req.Size.Cols)
	return schema.AttachResponse{Tab: tab, Spawned: true}, nil
}

// Detach clears focus without touching the sessions; they keep running in
// the background and accumulate activity flags.
func (m *Manager) Detach() {
	m.mu.Lock()
	if m.active == "" {
		m.mu.Unlock()
		return
	}
	if prev, ok := m.sessions[m.active]; ok {
		prev.setFocused(false)
	}
	m.active = ""
	m.mu.Unlock()
	m.signal.Raise()
	m.emit(schema.TerminalEvent{Type: schema.TerminalEventFocus})
}

// Close kills the session's child if still live and removes it. Closing an
// absent identifier is a no-op; defensive call sites rely on that. When the
// focused session goes away, focus moves to the next in insertion order, or
// to none if it was the last.
func (m *Manager) Close(ctx context.Context, req schema.CloseRequest) error {
	m.mu.Lock()
	sess, ok := m.sessions[req.ID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	wasActive := m.active == req.ID
	next := m.removeLocked(req.ID)
	if wasActive {
		if next != "" {
			m.focusLocked(next)
		} else {
			m.active = ""
		}
	}
	m.mu.Unlock()

	sess.Close()
	m.signal.Raise()
	m.emit(schema.TerminalEvent{Type: schema.TerminalEventClosed, ID: req.ID})
	pslog.Ctx(ctx).Debug("session closed", "session", req.ID, "was_active", wasActive)
	return nil
}

// Cycle moves focus through insertion order, wrapping at the ends, and
// clears the newly focused session's activity flag. With zero or one
// session it is a no-op.
func (m *Manager) Cycle(dir schema.CycleDirection) (schema.SessionID, bool) {
	m.mu.Lock()
	if len(m.order) <= 1 || m.active == "" {
		id := m.active
		m.mu.Unlock()
		return id, false
	}
	idx := m.indexLocked(m.active)
	if idx < 0 {
		m.mu.Unlock()
		return "", false
	}
	n := len(m.order)
	idx = (idx + int(dir) + n) % n
	next := m.order[idx]
	m.focusLocked(next)
	m.mu.Unlock()

	m.signal.Raise()
	m.emit(schema.TerminalEvent{Type: schema.TerminalEventFocus, ID: next})
	return next, true
}

// Focused returns the focused session's identifier, if any.
func (m *Manager) Focused() (schema.SessionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != ""
}

// FocusedSession returns the focused session, if any.
func (m *Manager) FocusedSession() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[m.active]
	return sess, ok
}

// WriteInput routes raw input bytes to the focused session. Input with no
// focused session is dropped.
func (m *Manager) WriteInput(p []byte) {
	if sess, ok := m.FocusedSession(); ok {
		sess.WriteInput(p)
	}
}

// Resize propagates a terminal geometry change to the focused session, or
// to every session when req.All is set so background grids match the
// window on their next focus.
func (m *Manager) Resize(req schema.ResizeRequest) {
	size := req.Size.Clamp()
	m.mu.Lock()
	var targets []*Session
	if req.All {
		targets = make([]*Session, 0, len(m.order))
		for _, id := range m.order {
			targets = append(targets, m.sessions[id])
		}
	} else if sess, ok := m.sessions[m.active]; ok {
		targets = []*Session{sess}
	}
	m.mu.Unlock()
	for _, sess := range targets {
		sess.Resize(size)
	}
}

// Tabs returns snapshots in insertion order for the tab bar. The bell
// marker is suppressed on the focused session.
func (m *Manager) Tabs() []schema.TabSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	tabs := make([]schema.TabSnapshot, 0, len(m.order))
	for _, id := range m.order {
		tabs = append(tabs, m.tabLocked(id))
	}
	return tabs
}

// ActiveSnapshot returns the focused session's screen copy for painting.
func (m *Manager) ActiveSnapshot() (schema.ScreenSnapshot, bool) {
	sess, ok := m.FocusedSession()
	if !ok {
		return schema.ScreenSnapshot{}, false
	}
	return sess.Screen().Snapshot(), true
}

// ReapExited removes exited sessions that are not focused, so dead tabs do
// not pile up while the user works elsewhere.
func (m *Manager) ReapExited() []schema.SessionID {
	m.mu.Lock()
	var reaped []schema.SessionID
	for _, id := range append([]schema.SessionID(nil), m.order...) {
		sess := m.sessions[id]
		if id == m.active || sess.Running() {
			continue
		}
		m.removeLocked(id)
		reaped = append(reaped, id)
	}
	m.mu.Unlock()
	if len(reaped) > 0 {
		m.signal.Raise()
		for _, id := range reaped {
			m.emit(schema.TerminalEvent{Type: schema.TerminalEventClosed, ID: id})
		}
	}
	return reaped
}

// Len returns the number of managed sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Shutdown kills every child and marks the manager closed. Attach calls
// after shutdown fail with ErrManagerClosed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		sessions = append(sessions, m.sessions[id])
	}
	m.sessions = make(map[schema.SessionID]*Session)
	m.order = nil
	m.active = ""
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	m.log.Debug("manager shutdown", "sessions", len(sessions))
}

// focusLocked points focus at id and updates per-session focus flags.
// Caller holds m.mu and guarantees id is present.
func (m *Manager) focusLocked(id schema.SessionID) {
	if prev, ok := m.sessions[m.active]; ok && m.active != id {
		prev.setFocused(false)
	}
	m.active = id
	if sess, ok := m.sessions[id]; ok {
		sess.setFocused(true)
	}
}

// removeLocked drops id from the collection and returns the identifier
// that now occupies its cycle slot, or "" when the collection is empty.
// Caller holds m.mu.
func (m *Manager) removeLocked(id schema.SessionID) schema.SessionID {
	idx := m.indexLocked(id)
	delete(m.sessions, id)
	if idx < 0 {
		return ""
	}
	m.order = append(m.order[:idx], m.order[idx+1:]...)
	if len(m.order) == 0 {
		return ""
	}
	if idx >= len(m.order) {
		idx = 0
	}
	return m.order[idx]
}

func (m *Manager) indexLocked(id schema.SessionID) int {
	for i, candidate := range m.order {
		if candidate == id {
			return i
		}
	}
	return -1
}

// tabLocked builds one tab snapshot. Caller holds m.mu.
func (m *Manager) tabLocked(id schema.SessionID) schema.TabSnapshot {
	sess := m.sessions[id]
	code, exited := sess.ExitStatus()
	active := m.active == id
	return schema.TabSnapshot{
		ID:       id,
		Title:    sess.title,
		Index:    m.indexLocked(id),
		Active:   active,
		Bell:     !active && sess.Activity(),
		Exited:   exited,
		ExitCode: code,
	}
}

func (m *Manager) emit(event schema.TerminalEvent) {
	if m.sink != nil {
		m.sink.OnTerminalEvent(event)
	}
}

// killProcess terminates a foreign pid: SIGTERM, a bounded poll for it to
// disappear, then SIGKILL.
func killProcess(pid int, grace time.Duration) {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); err != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
