package discovery

import (
	"bufio"
	"encoding/json"
	"os"
	"time"
)

// Stats are the accumulated facts from one conversation log.
type Stats struct {
	SessionID string
	Cwd       string
	GitBranch string
	Model     string
	Version   string

	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	MessageCount        int
	ToolCallCount       int

	FirstTimestamp time.Time
	LastTimestamp  time.Time

	LastRecordType string
	LastStopReason string
}

type logRecord struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Cwd       string      `json:"cwd"`
	GitBranch string      `json:"gitBranch"`
	Version   string      `json:"version"`
	Timestamp string      `json:"timestamp"`
	Message   *logMessage `json:"message"`
}

type logMessage struct {
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      *logUsage       `json:"usage"`
	Content    json.RawMessage `json:"content"`
}

type logUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

type contentItem struct {
	Type string `json:"type"`
}

// ParseLog reads one JSONL conversation log line by line. Lines that do
// not parse as JSON are skipped; the agent occasionally writes partial
// last lines while a turn is in flight.
func ParseLog(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	var stats Stats
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec logRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		accumulate(&stats, &rec)
	}
	return stats, scanner.Err()
}

func accumulate(stats *Stats, rec *logRecord) {
	if rec.Type != "user" && rec.Type != "assistant" {
		return
	}
	stats.MessageCount++
	stats.LastRecordType = rec.Type
	stats.LastStopReason = ""
	if rec.SessionID != "" {
		stats.SessionID = rec.SessionID
	}
	if rec.Cwd != "" {
		stats.Cwd = rec.Cwd
	}
	if rec.GitBranch != "" {
		stats.GitBranch = rec.GitBranch
	}
	if rec.Version != "" {
		stats.Version = rec.Version
	}
	if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
		if stats.FirstTimestamp.IsZero() {
			stats.FirstTimestamp = ts
		}
		stats.LastTimestamp = ts
	}
	msg := rec.Message
	if msg == nil {
		return
	}
	if msg.Model != "" {
		stats.Model = msg.Model
	}
	stats.LastStopReason = msg.StopReason
	if u := msg.Usage; u != nil {
		stats.InputTokens += u.InputTokens
		stats.OutputTokens += u.OutputTokens
		stats.CacheReadTokens += u.CacheReadTokens
		stats.CacheCreationTokens += u.CacheCreationTokens
	}
	if len(msg.Content) > 0 {
		var items []contentItem
		if err := json.Unmarshal(msg.Content, &items); err == nil {
			for _, item := range items {
				if item.Type == "tool_use" {
					stats.ToolCallCount++
				}
			}
		}
	}
}
