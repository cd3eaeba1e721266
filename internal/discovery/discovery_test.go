package discovery

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/tabaret/schema"
)

type fakeLookup struct {
	dirs map[string]int
}

func (f *fakeLookup) LiveAgentDirs(context.Context) map[string]int { return f.dirs }

func writeSessionLog(t *testing.T, claudeDir, encodedProject, sessionID, content string) string {
	t.Helper()
	dir := filepath.Join(claudeDir, "projects", encodedProject)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func sampleLog(sessionID, cwd string, last time.Time) string {
	first := last.Add(-2 * time.Minute)
	return fmt.Sprintf(`{"type":"user","sessionId":%q,"cwd":%q,"gitBranch":"main","version":"2.1.0","timestamp":%q,"message":{"content":[{"type":"text"}]}}
{"type":"assistant","sessionId":%q,"cwd":%q,"timestamp":%q,"message":{"model":"claude-opus-4","stop_reason":"end_turn","usage":{"input_tokens":120,"output_tokens":40,"cache_read_input_tokens":1000,"cache_creation_input_tokens":200},"content":[{"type":"text"},{"type":"tool_use"}]}}
`, sessionID, cwd, first.Format(time.RFC3339), sessionID, cwd, last.Format(time.RFC3339))
}

func TestDiscoverReadsLogStats(t *testing.T) {
	claudeDir := t.TempDir()
	last := time.Now().Add(-30 * time.Second).UTC().Truncate(time.Second)
	writeSessionLog(t, claudeDir, "-work-alpha", "sess-1", sampleLog("sess-1", "/work/alpha", last))

	scanner := NewScanner(claudeDir, "claude", 5*time.Minute,
		&fakeLookup{dirs: map[string]int{"/work/alpha": 4242}})
	sessions, err := scanner.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.ID != schema.SessionID("sess-1") {
		t.Fatalf("unexpected id %q", s.ID)
	}
	if s.Dir != "/work/alpha" || s.ProjectName != "alpha" {
		t.Fatalf("unexpected dir %q project %q", s.Dir, s.ProjectName)
	}
	if s.GitBranch != "main" || s.Model != "claude-opus-4" || s.Version != "2.1.0" {
		t.Fatalf("metadata not captured: %+v", s)
	}
	if s.InputTokens != 120 || s.OutputTokens != 40 ||
		s.CacheReadTokens != 1000 || s.CacheCreationTokens != 200 {
		t.Fatalf("token totals wrong: %+v", s)
	}
	if s.MessageCount != 2 || s.ToolCallCount != 1 {
		t.Fatalf("counts wrong: messages=%d tools=%d", s.MessageCount, s.ToolCallCount)
	}
	if s.PID != 4242 {
		t.Fatalf("pid not matched: %d", s.PID)
	}
	if !s.LastActivity.Equal(last) {
		t.Fatalf("last activity %v, want %v", s.LastActivity, last)
	}
}

func TestDiscoverStatusDerivation(t *testing.T) {
	recent := time.Now().UTC().Truncate(time.Second)
	stale := recent.Add(-20 * time.Minute)
	cases := []struct {
		name string
		log  string
		live bool
		want schema.SessionStatus
	}{
		{
			name: "dead without process",
			log:  sampleLog("s", "/w/p", recent),
			live: false,
			want: schema.StatusDead,
		},
		{
			name: "idle after end_turn",
			log:  sampleLog("s", "/w/p", recent),
			live: true,
			want: schema.StatusIdle,
		},
		{
			name: "hung when log is stale",
			log:  sampleLog("s", "/w/p", stale),
			live: true,
			want: schema.StatusHung,
		},
		{
			name: "thinking after user message",
			log: fmt.Sprintf(`{"type":"user","sessionId":"s","cwd":"/w/p","timestamp":%q,"message":{}}
`, recent.Format(time.RFC3339)),
			live: true,
			want: schema.StatusThinking,
		},
		{
			name: "active mid turn",
			log: fmt.Sprintf(`{"type":"assistant","sessionId":"s","cwd":"/w/p","timestamp":%q,"message":{"model":"claude-sonnet-4","stop_reason":null,"usage":{"input_tokens":1,"output_tokens":1}}}
`, recent.Format(time.RFC3339)),
			live: true,
			want: schema.StatusActive,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claudeDir := t.TempDir()
			writeSessionLog(t, claudeDir, "-w-p", "s", tc.log)
			dirs := map[string]int{}
			if tc.live {
				dirs["/w/p"] = 99
			}
			scanner := NewScanner(claudeDir, "claude", 5*time.Minute, &fakeLookup{dirs: dirs})
			sessions, err := scanner.Discover(context.Background())
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if len(sessions) != 1 {
				t.Fatalf("expected 1 session, got %d", len(sessions))
			}
			if sessions[0].Status != tc.want {
				t.Fatalf("status = %q, want %q", sessions[0].Status, tc.want)
			}
		})
	}
}

func TestDiscoverDedupesByDirKeepingNewest(t *testing.T) {
	claudeDir := t.TempDir()
	old := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	recent := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	writeSessionLog(t, claudeDir, "-work-alpha", "old", sampleLog("old", "/work/alpha", old))
	writeSessionLog(t, claudeDir, "-work-alpha", "new", sampleLog("new", "/work/alpha", recent))
	writeSessionLog(t, claudeDir, "-work-beta", "other", sampleLog("other", "/work/beta", old))

	scanner := NewScanner(claudeDir, "claude", 5*time.Minute, &fakeLookup{})
	sessions, err := scanner.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions after dedupe, got %d", len(sessions))
	}
	if sessions[0].ID != "new" {
		t.Fatalf("newest first: got %q", sessions[0].ID)
	}
	if sessions[1].ID != "other" {
		t.Fatalf("expected beta session second, got %q", sessions[1].ID)
	}
}

func TestDiscoverSkipsMalformedLinesAndEmptyLogs(t *testing.T) {
	claudeDir := t.TempDir()
	recent := time.Now().UTC().Truncate(time.Second)
	content := "not json at all\n{\"type\":\"summary\"}\n" + sampleLog("s", "/work/alpha", recent)
	writeSessionLog(t, claudeDir, "-work-alpha", "s", content)
	writeSessionLog(t, claudeDir, "-work-empty", "e", "")

	scanner := NewScanner(claudeDir, "claude", 5*time.Minute, &fakeLookup{})
	sessions, err := scanner.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].MessageCount != 2 {
		t.Fatalf("malformed lines should not count: %d", sessions[0].MessageCount)
	}
}

func TestDiscoverMissingProjectsDir(t *testing.T) {
	scanner := NewScanner(filepath.Join(t.TempDir(), "nope"), "claude", time.Minute, &fakeLookup{})
	sessions, err := scanner.Discover(context.Background())
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestStatsCacheInvalidatesOnModTime(t *testing.T) {
	claudeDir := t.TempDir()
	recent := time.Now().UTC().Truncate(time.Second)
	path := writeSessionLog(t, claudeDir, "-work-alpha", "s", sampleLog("s", "/work/alpha", recent))

	scanner := NewScanner(claudeDir, "claude", 5*time.Minute, &fakeLookup{})
	first, err := scanner.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if first[0].MessageCount != 2 {
		t.Fatalf("unexpected initial count: %d", first[0].MessageCount)
	}

	grown := sampleLog("s", "/work/alpha", recent) + sampleLog("s", "/work/alpha", recent.Add(time.Second))
	if err := os.WriteFile(path, []byte(grown), 0o644); err != nil {
		t.Fatalf("append: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, err := scanner.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if second[0].MessageCount != 4 {
		t.Fatalf("cache not invalidated: count=%d", second[0].MessageCount)
	}
}

func TestDecodeProjectPath(t *testing.T) {
	if got := decodeProjectPath("-root-module"); got != "/root/module" {
		t.Fatalf("decode: %q", got)
	}
	if got := decodeProjectPath(""); got != "" {
		t.Fatalf("empty decode: %q", got)
	}
}

func TestEstimatedCostUSD(t *testing.T) {
	s := Session{
		Model:               "claude-opus-4",
		InputTokens:         1_000_000,
		OutputTokens:        1_000_000,
		CacheReadTokens:     1_000_000,
		CacheCreationTokens: 1_000_000,
	}
	// 15 + 75 + 1.5 + 3.75
	want := 95.25
	if got := s.EstimatedCostUSD(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("opus cost = %v, want %v", got, want)
	}

	s.Model = "claude-haiku-4"
	// 0.8 + 4 + 0.08 + 0.2
	want = 5.08
	if got := s.EstimatedCostUSD(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("haiku cost = %v, want %v", got, want)
	}

	s.Model = "claude-sonnet-4"
	// 3 + 15 + 0.3 + 0.75
	want = 19.05
	if got := s.EstimatedCostUSD(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("sonnet cost = %v, want %v", got, want)
	}
}
