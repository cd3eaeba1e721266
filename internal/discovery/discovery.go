// Package discovery scans agent conversation logs and the local process
// table to produce the dashboard's session list. The agent CLI writes one
// JSONL log per conversation under <claude_dir>/projects/<encoded-cwd>/,
// which is the source of truth for tokens, models, and activity; liveness
// comes from matching live agent processes to their working directories.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/schema"
)

// Session is one discovered agent conversation.
type Session struct {
	ID          schema.SessionID
	Dir         string
	ProjectName string
	GitBranch   string
	Model       string
	Version     string

	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	MessageCount        int
	ToolCallCount       int

	StartedAt    time.Time
	LastActivity time.Time

	PID     int
	Status  schema.SessionStatus
	LogPath string
}

// ProcessLookup maps live agent working directories to their pids.
type ProcessLookup interface {
	LiveAgentDirs(ctx context.Context) map[string]int
}

// Scanner discovers sessions from conversation logs. Stats for unchanged
// logs are served from an mtime-keyed cache so repeated refreshes do not
// re-parse multi-megabyte files.
type Scanner struct {
	claudeDir string
	hungAfter time.Duration
	procs     ProcessLookup

	mu    sync.Mutex
	cache map[string]cachedStats
}

type cachedStats struct {
	modTime time.Time
	stats   Stats
}

// NewScanner constructs a scanner over claudeDir. procs may be nil, in
// which case the platform process table lookup is used.
func NewScanner(claudeDir string, agentBinary string, hungAfter time.Duration, procs ProcessLookup) *Scanner {
	if procs == nil {
		procs = &pgrepLookup{binary: agentBinary}
	}
	if hungAfter <= 0 {
		hungAfter = 5 * time.Minute
	}
	return &Scanner{
		claudeDir: claudeDir,
		hungAfter: hungAfter,
		procs:     procs,
		cache:     make(map[string]cachedStats),
	}
}

// Discover returns all known sessions, newest activity first, deduplicated
// by working directory (the newest log per directory wins, matching how
// the agent resumes conversations per directory).
func (s *Scanner) Discover(ctx context.Context) ([]Session, error) {
	log := pslog.Ctx(ctx)
	pids := s.procs.LiveAgentDirs(ctx)

	projectsDir := filepath.Join(s.claudeDir, "projects")
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	started := time.Now()
	var sessions []Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(projectsDir, entry.Name())
		logs, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		fallbackCwd := decodeProjectPath(entry.Name())
		for _, lf := range logs {
			if lf.IsDir() || !strings.HasSuffix(lf.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(dir, lf.Name())
			info, err := lf.Info()
			if err != nil {
				continue
			}
			stats, err := s.statsFor(path, info.ModTime())
			if err != nil {
				log.Trace("session log unreadable", "path", path, "err", err)
				continue
			}
			if stats.MessageCount == 0 {
				continue
			}
			sess := s.buildSession(lf.Name(), path, fallbackCwd, stats, pids)
			sessions = append(sessions, sess)
		}
	}

	sessions = dedupeByDir(sessions)
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	log.Trace("discovery scan", "sessions", len(sessions),
		"duration_ms", time.Since(started).Milliseconds())
	return sessions, nil
}

// statsFor parses the log unless the cache already holds stats for its
// current mtime.
func (s *Scanner) statsFor(path string, modTime time.Time) (Stats, error) {
	s.mu.Lock()
	if cached, ok := s.cache[path]; ok && cached.modTime.Equal(modTime) {
		s.mu.Unlock()
		return cached.stats, nil
	}
	s.mu.Unlock()

	stats, err := ParseLog(path)
	if err != nil {
		return Stats{}, err
	}
	s.mu.Lock()
	s.cache[path] = cachedStats{modTime: modTime, stats: stats}
	s.mu.Unlock()
	return stats, nil
}

func (s *Scanner) buildSession(filename, path, fallbackCwd string, stats Stats, pids map[string]int) Session {
	id := strings.TrimSuffix(filename, ".jsonl")
	if stats.SessionID != "" {
		id = stats.SessionID
	}
	cwd := stats.Cwd
	if cwd == "" {
		cwd = fallbackCwd
	}
	sess := Session{
		ID:                  schema.SessionID(id),
		Dir:                 cwd,
		ProjectName:         filepath.Base(cwd),
		GitBranch:           stats.GitBranch,
		Model:               stats.Model,
		Version:             stats.Version,
		InputTokens:         stats.InputTokens,
		OutputTokens:        stats.OutputTokens,
		CacheReadTokens:     stats.CacheReadTokens,
		CacheCreationTokens: stats.CacheCreationTokens,
		MessageCount:        stats.MessageCount,
		ToolCallCount:       stats.ToolCallCount,
		StartedAt:           stats.FirstTimestamp,
		LastActivity:        stats.LastTimestamp,
		LogPath:             path,
	}
	sess.PID = pids[cwd]
	sess.Status = s.status(sess, stats)
	return sess
}

// status derives what the session is doing right now. A live process with
// no log activity past the hung threshold is reported hung rather than
// idle, since the agent normally appends within seconds of working.
func (s *Scanner) status(sess Session, stats Stats) schema.SessionStatus {
	if sess.PID == 0 {
		return schema.StatusDead
	}
	if !sess.LastActivity.IsZero() && time.Since(sess.LastActivity) > s.hungAfter {
		return schema.StatusHung
	}
	switch stats.LastRecordType {
	case "user":
		return schema.StatusThinking
	case "assistant":
		if stats.LastStopReason == "end_turn" {
			return schema.StatusIdle
		}
		return schema.StatusActive
	default:
		return schema.StatusIdle
	}
}

func dedupeByDir(sessions []Session) []Session {
	best := make(map[string]int, len(sessions))
	out := sessions[:0]
	for _, sess := range sessions {
		if sess.Dir == "" {
			out = append(out, sess)
			continue
		}
		if idx, ok := best[sess.Dir]; ok {
			if sess.LastActivity.After(out[idx].LastActivity) {
				out[idx] = sess
			}
			continue
		}
		best[sess.Dir] = len(out)
		out = append(out, sess)
	}
	return out
}

// decodeProjectPath reverses the agent's directory encoding, where every
// path separator becomes a dash ("-root-module" is /root/module). Dashes
// inside real directory names are lost to the encoding; the cwd recorded
// in the log itself takes precedence wherever present.
func decodeProjectPath(encoded string) string {
	if encoded == "" {
		return ""
	}
	return strings.ReplaceAll(encoded, "-", "/")
}
