// Package tui is the interactive dashboard: a session list over every
// discovered agent conversation, and an attached terminal view that
// multiplexes pty-backed sessions behind a tab bar.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pkt.systems/tabaret/core"
	"pkt.systems/tabaret/internal/appconfig"
	"pkt.systems/tabaret/internal/discovery"
	"pkt.systems/tabaret/internal/logx"
	"pkt.systems/tabaret/internal/notify"
	"pkt.systems/tabaret/internal/store"
	"pkt.systems/tabaret/schema"
)

type appMode int

const (
	modeList appMode = iota
	modeTerminal
	modeHelp
	modeConfirmQuit
	modePromptDir
)

type sortMode int

const (
	sortActivity sortMode = iota
	sortCost
	sortProject
	sortModeCount
)

// App owns the dashboard loop and all view state.
type App struct {
	cfg     appconfig.Config
	manager *core.Manager
	events  <-chan schema.TerminalEvent
	scanner *discovery.Scanner
	db      *store.Store
	usage   core.UsageReader

	in     io.Reader
	out    io.Writer
	screen *screen
	theme  tuiTheme

	width  int
	height int

	mode      appMode
	rows      []listRow
	cursor    int
	sort      sortMode
	usageInfo core.UsageInfo
	notice    string
	decoder   keyDecoder
	dirty     bool

	promptInput []rune

	watchers map[string]*sessionWatcher
}

type sessionWatcher struct {
	tailer   *notify.Tailer
	notifier *notify.Notifier
}

// AppDeps carries the collaborators an App needs. DB and Usage may be
// nil; the dashboard runs without history or the usage gauge.
type AppDeps struct {
	Manager *core.Manager
	Events  <-chan schema.TerminalEvent
	Scanner *discovery.Scanner
	DB      *store.Store
	Usage   core.UsageReader
	In      io.Reader
	Out     io.Writer
}

func NewApp(cfg appconfig.Config, deps AppDeps) *App {
	in := deps.In
	if in == nil {
		in = os.Stdin
	}
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	return &App{
		cfg:      cfg,
		manager:  deps.Manager,
		events:   deps.Events,
		scanner:  deps.Scanner,
		db:       deps.DB,
		usage:    deps.Usage,
		in:       in,
		out:      out,
		screen:   newScreen(out),
		theme:    defaultTheme,
		width:    80,
		height:   24,
		watchers: make(map[string]*sessionWatcher),
	}
}

// Run drives the dashboard until the user quits or ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	log := logx.Ctx(ctx)

	if f, ok := a.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("enter raw mode: %w", err)
		}
		defer term.Restore(int(f.Fd()), state) //nolint:errcheck
		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			a.width, a.height = w, h
		}
	}
	a.screen.EnterAltScreen()
	defer a.screen.ExitAltScreen()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)

	input := make(chan []byte, 16)
	go readInput(a.in, input)

	refreshEvery := time.Duration(a.cfg.Discovery.RefreshSeconds) * time.Second
	if refreshEvery <= 0 {
		refreshEvery = 5 * time.Second
	}
	refreshTicker := time.NewTicker(refreshEvery)
	defer refreshTicker.Stop()
	watchTicker := time.NewTicker(time.Second)
	defer watchTicker.Stop()

	usageCh := make(chan core.UsageInfo, 1)

	a.refresh(ctx)
	a.fetchUsageAsync(ctx, usageCh)
	a.render()
	log.Info("dashboard start", "width", a.width, "height", a.height)

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-input:
			if !ok {
				return nil
			}
			if a.handleInput(ctx, chunk) {
				log.Info("dashboard exit")
				return nil
			}
		case <-winch:
			a.resize()
		case <-a.manager.Signal().C():
			a.dirty = true
		case ev, ok := <-a.events:
			if ok {
				a.handleEvent(ev)
			}
		case <-refreshTicker.C:
			a.refresh(ctx)
			a.fetchUsageAsync(ctx, usageCh)
		case info := <-usageCh:
			a.usageInfo = info
			a.dirty = true
		case <-watchTicker.C:
			a.pollWatchers()
		}

		if a.dirty {
			a.render()
			a.dirty = false
		}
	}
}

func readInput(r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			return
		}
	}
}

func (a *App) resize() {
	if f, ok := a.out.(*os.File); ok {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			a.width, a.height = w, h
		}
	}
	a.manager.Resize(schema.ResizeRequest{Size: a.sessionSize(), All: true})
	a.dirty = true
}

// sessionSize is the terminal grid left over after the tab bar and the
// status line.
func (a *App) sessionSize() schema.TermSize {
	return schema.TermSize{Rows: a.height - 2, Cols: a.width}.Clamp()
}

func (a *App) handleEvent(ev schema.TerminalEvent) {
	if ev.Type == schema.TerminalEventBell {
		// Propagate to the outer terminal so desktop notifications fire.
		_, _ = io.WriteString(a.out, "\a")
	}
	a.dirty = true
}

func (a *App) handleInput(ctx context.Context, chunk []byte) bool {
	switch a.mode {
	case modeTerminal:
		return a.handleTerminalInput(ctx, chunk)
	case modeHelp:
		a.mode = modeList
		a.dirty = true
		return false
	case modeConfirmQuit:
		for _, k := range a.decoder.Decode(chunk) {
			if k.kind == keyRune && (k.r == 'y' || k.r == 'Y') {
				return true
			}
		}
		a.mode = modeList
		a.notice = ""
		a.dirty = true
		return false
	case modePromptDir:
		a.handlePromptInput(ctx, chunk)
		return false
	default:
		return a.handleListInput(ctx, chunk)
	}
}

// Terminal-mode control bytes. Everything else is forwarded verbatim to
// the focused session, so the decoder never touches this path.
const (
	byteCtrlD = 0x04
	byteCtrlJ = 0x0a
	byteCtrlK = 0x0b
	byteCtrlN = 0x0e
	byteCtrlP = 0x10
)

func (a *App) handleTerminalInput(ctx context.Context, chunk []byte) bool {
	if sess, ok := a.manager.FocusedSession(); ok && !sess.Running() {
		// Any key on an exited session clears it and returns to the list.
		_ = a.manager.Close(ctx, schema.CloseRequest{ID: sess.ID()})
		a.leaveTerminal()
		return false
	}
	if len(chunk) == 1 {
		switch chunk[0] {
		case byteCtrlD:
			a.leaveTerminal()
			return false
		case byteCtrlN:
			a.manager.Cycle(schema.CycleNext)
			return false
		case byteCtrlP:
			a.manager.Cycle(schema.CyclePrev)
			return false
		case byteCtrlK:
			a.scrollFocused(1)
			return false
		case byteCtrlJ:
			a.scrollFocused(-1)
			return false
		}
	}
	a.manager.WriteInput(chunk)
	return false
}

func (a *App) scrollFocused(delta int) {
	if sess, ok := a.manager.FocusedSession(); ok {
		sess.Screen().Scroll(delta)
	}
}

func (a *App) leaveTerminal() {
	a.manager.Detach()
	a.manager.ReapExited()
	a.mode = modeList
	a.dirty = true
}

func (a *App) handleListInput(ctx context.Context, chunk []byte) bool {
	for _, k := range a.decoder.Decode(chunk) {
		switch k.kind {
		case keyEnter:
			a.attachRow(ctx, a.cursor)
		case keyUp:
			a.moveCursor(-1)
		case keyDown:
			a.moveCursor(1)
		case keyHome:
			a.setCursor(0)
		case keyEnd:
			a.setCursor(len(a.rows) - 1)
		case keyPageUp:
			a.moveCursor(-(a.height - 3))
		case keyPageDown:
			a.moveCursor(a.height - 3)
		case keyCtrlC:
			return true
		case keyRune:
			if quit := a.handleListRune(ctx, k.r); quit {
				return true
			}
		}
	}
	return false
}

func (a *App) handleListRune(ctx context.Context, r rune) bool {
	switch r {
	case 'q':
		if a.manager.Len() > 0 {
			a.mode = modeConfirmQuit
			a.notice = fmt.Sprintf("%d attached session(s) will be killed — quit? [y/N]", a.manager.Len())
			a.dirty = true
			return false
		}
		return true
	case 'j':
		a.moveCursor(1)
	case 'k':
		a.moveCursor(-1)
	case 'g':
		a.setCursor(0)
	case 'G':
		a.setCursor(len(a.rows) - 1)
	case 'r':
		a.refresh(ctx)
	case 's':
		a.sort = (a.sort + 1) % sortModeCount
		a.sortRows()
		a.dirty = true
	case 'a':
		a.startNewSession(ctx, workingDir())
	case 'n':
		a.mode = modePromptDir
		a.promptInput = nil
		a.dirty = true
	case 'd':
		a.deleteSelected(ctx)
	case '?':
		a.mode = modeHelp
		a.dirty = true
	default:
		if r >= '1' && r <= '9' {
			a.attachRow(ctx, int(r-'1'))
		}
	}
	return false
}

func (a *App) handlePromptInput(ctx context.Context, chunk []byte) {
	for _, k := range a.decoder.Decode(chunk) {
		switch k.kind {
		case keyEsc, keyCtrlC:
			a.mode = modeList
			a.promptInput = nil
		case keyEnter:
			dir := strings.TrimSpace(string(a.promptInput))
			a.mode = modeList
			a.promptInput = nil
			if dir != "" {
				a.startNewSession(ctx, expandHome(dir))
			}
		case keyBackspace:
			if len(a.promptInput) > 0 {
				a.promptInput = a.promptInput[:len(a.promptInput)-1]
			}
		case keyRune:
			a.promptInput = append(a.promptInput, k.r)
		}
	}
	a.dirty = true
}

func (a *App) moveCursor(delta int) {
	a.setCursor(a.cursor + delta)
}

func (a *App) setCursor(pos int) {
	if len(a.rows) == 0 {
		a.cursor = 0
		return
	}
	if pos < 0 {
		pos = 0
	}
	if pos >= len(a.rows) {
		pos = len(a.rows) - 1
	}
	if pos != a.cursor {
		a.cursor = pos
		a.dirty = true
	}
}

// attachRow resumes the selected conversation inside a managed pty
// session and switches to the terminal view.
func (a *App) attachRow(ctx context.Context, index int) {
	if index < 0 || index >= len(a.rows) {
		return
	}
	row := a.rows[index]
	req := schema.AttachRequest{
		ID:      row.Session.ID,
		Command: resumeCommand(a.cfg.Agent, row.Session.ID),
		Dir:     row.Session.Dir,
		Size:    a.sessionSize(),
		KillPID: row.Session.PID,
	}
	a.attach(ctx, req, row.Session.Dir)
}

func (a *App) startNewSession(ctx context.Context, dir string) {
	id := uuid.NewString()
	req := schema.AttachRequest{
		ID:      schema.SessionID(id),
		Command: newSessionCommand(a.cfg.Agent, id),
		Dir:     dir,
		Size:    a.sessionSize(),
	}
	a.attach(ctx, req, dir)
}

func (a *App) attach(ctx context.Context, req schema.AttachRequest, dir string) {
	resp, err := a.manager.Attach(ctx, req)
	if err != nil {
		a.notice = fmt.Sprintf("attach failed: %v", err)
		a.dirty = true
		logx.WithSession(ctx, req.ID).Warn("attach failed", "err", err)
		return
	}
	a.watchDir(dir)
	a.mode = modeTerminal
	a.notice = ""
	a.dirty = true
	logx.WithSession(ctx, resp.Tab.ID).Info("attached", "spawned", resp.Spawned)
}

func (a *App) deleteSelected(ctx context.Context) {
	if a.cursor >= len(a.rows) {
		return
	}
	row := a.rows[a.cursor]
	if row.Session.Status != schema.StatusDead || row.Attached {
		a.notice = "only dead sessions can be forgotten"
		a.dirty = true
		return
	}
	if a.db != nil {
		if err := a.db.DeleteSession(ctx, row.Session.ID); err != nil {
			logx.WithSession(ctx, row.Session.ID).Warn("delete session", "err", err)
		}
	}
	a.rows = append(a.rows[:a.cursor], a.rows[a.cursor+1:]...)
	a.setCursor(a.cursor)
	a.notice = ""
	a.dirty = true
}

// refresh re-scans conversation logs and persists the result.
func (a *App) refresh(ctx context.Context) {
	log := logx.Ctx(ctx)
	sessions, err := a.scanner.Discover(ctx)
	if err != nil {
		log.Warn("discovery failed", "err", err)
		return
	}
	attached := make(map[schema.SessionID]bool)
	for _, tab := range a.manager.Tabs() {
		attached[tab.ID] = true
	}
	rows := make([]listRow, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, listRow{Session: sess, Attached: attached[sess.ID]})
	}
	a.rows = rows
	a.sortRows()
	a.setCursor(a.cursor)
	a.dirty = true

	if a.db != nil {
		for _, sess := range sessions {
			if err := a.db.UpsertSession(ctx, sess); err != nil {
				logx.WithSession(ctx, sess.ID).Warn("persist session", "err", err)
			}
		}
		day := time.Now().UTC().Format("2006-01-02")
		if err := a.db.RefreshDailyStats(ctx, day); err != nil {
			log.Warn("refresh daily stats", "day", day, "err", err)
		}
	}
}

func (a *App) fetchUsageAsync(ctx context.Context, out chan<- core.UsageInfo) {
	if a.usage == nil {
		return
	}
	go func() {
		info, err := a.usage.Usage(ctx)
		if err != nil {
			return
		}
		select {
		case out <- info:
		default:
		}
	}()
}

func (a *App) sortRows() {
	switch a.sort {
	case sortCost:
		sort.SliceStable(a.rows, func(i, j int) bool {
			return a.rows[i].Session.EstimatedCostUSD() > a.rows[j].Session.EstimatedCostUSD()
		})
	case sortProject:
		sort.SliceStable(a.rows, func(i, j int) bool {
			return a.rows[i].Session.ProjectName < a.rows[j].Session.ProjectName
		})
	default:
		sort.SliceStable(a.rows, func(i, j int) bool {
			return a.rows[i].Session.LastActivity.After(a.rows[j].Session.LastActivity)
		})
	}
}

// watchDir follows the conversation log for an attached session so a
// finished turn rings even when the log is the only signal.
func (a *App) watchDir(dir string) {
	if dir == "" {
		return
	}
	if _, ok := a.watchers[dir]; ok {
		return
	}
	projectDir := filepath.Join(a.cfg.ClaudeDir, "projects", encodeProjectPath(dir))
	a.watchers[dir] = &sessionWatcher{
		tailer:   notify.NewTailer(projectDir),
		notifier: notify.NewNotifier(notify.DefaultToolWaitDelay),
	}
	// Drain the backlog so replayed history stays silent.
	if lines, err := a.watchers[dir].tailer.Poll(); err == nil {
		for _, line := range lines {
			if rec, ok := notify.ParseRecord(line); ok {
				a.watchers[dir].notifier.Observe(rec)
			}
		}
	}
}

func (a *App) pollWatchers() {
	now := time.Now()
	ring := false
	for _, w := range a.watchers {
		lines, err := w.tailer.Poll()
		if err != nil {
			continue
		}
		for _, line := range lines {
			rec, ok := notify.ParseRecord(line)
			if !ok {
				continue
			}
			if w.notifier.Observe(rec) {
				ring = true
			}
		}
		if w.notifier.CheckTimer(now) {
			ring = true
		}
	}
	if ring {
		_, _ = io.WriteString(a.out, "\a")
	}
}

func (a *App) render() {
	switch a.mode {
	case modeTerminal:
		a.renderTerminal()
	case modeHelp:
		_ = a.screen.RenderHiddenCursor(renderHelp(a.width, a.height, a.theme))
	default:
		a.renderList()
	}
}

func (a *App) renderTerminal() {
	tabs := a.manager.Tabs()
	snap, ok := a.manager.ActiveSnapshot()
	if !ok {
		a.mode = modeList
		a.renderList()
		return
	}
	var active schema.TabSnapshot
	for _, tab := range tabs {
		if tab.Active {
			active = tab
		}
	}
	lines := make([]string, 0, a.height)
	lines = append(lines, renderTabBar(tabs, a.width, a.theme))
	lines = append(lines, snap.Lines...)
	for len(lines) < a.height-1 {
		lines = append(lines, "")
	}
	lines = lines[:a.height-1]
	lines = append(lines, renderTerminalStatus(active, snap, a.width, a.theme))
	if snap.AtBottom {
		_ = a.screen.Render(lines, snap.CursorRow+2, snap.CursorCol+1)
	} else {
		_ = a.screen.RenderHiddenCursor(lines)
	}
}

func (a *App) renderList() {
	lines := renderSessionList(a.rows, a.cursor, a.width, a.height, a.theme, a.usageInfo, time.Now())
	switch a.mode {
	case modeConfirmQuit:
		lines[len(lines)-1] = ansiBgRGB(a.theme.TabBarBG) + ansiFgRGB(a.theme.BellFG) + ansiBold +
			trimANSIToWidth(" "+a.notice+strings.Repeat(" ", a.width), a.width) + ansiReset
	case modePromptDir:
		lines[len(lines)-1] = ansiBgRGB(a.theme.TabBarBG) + ansiFgRGB(a.theme.SelectedFG) +
			trimANSIToWidth(" new session in: "+string(a.promptInput)+strings.Repeat(" ", a.width), a.width) + ansiReset
	default:
		if a.notice != "" {
			lines[len(lines)-1] = ansiBgRGB(a.theme.TabBarBG) + ansiFgRGB(a.theme.BellFG) +
				trimANSIToWidth(" "+a.notice+strings.Repeat(" ", a.width), a.width) + ansiReset
		}
	}
	_ = a.screen.RenderHiddenCursor(lines)
}

// resumeCommand rebuilds the agent invocation for an existing
// conversation. The shell wrapper gives the child a usable GPG_TTY.
func resumeCommand(agent appconfig.AgentConfig, id schema.SessionID) []string {
	inner := agent.Binary + " --resume " + shellQuote(string(id))
	return []string{agent.Shell, "-c", "export GPG_TTY=$(tty); exec " + inner}
}

func newSessionCommand(agent appconfig.AgentConfig, id string) []string {
	inner := agent.Binary + " --session-id " + shellQuote(id)
	return []string{agent.Shell, "-c", "export GPG_TTY=$(tty); exec " + inner}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// encodeProjectPath mirrors the agent's log directory naming, where every
// path separator becomes a dash.
func encodeProjectPath(dir string) string {
	return strings.ReplaceAll(dir, "/", "-")
}

func workingDir() string {
	if dir, err := os.Getwd(); err == nil {
		return dir
	}
	return "."
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
