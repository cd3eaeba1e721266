// Package notify decides when a session deserves the operator's
// attention. It follows a conversation log and rings when the agent
// finishes a turn, waits on a tool approval for longer than a threshold,
// or compacts the conversation.
package notify

import (
	"encoding/json"
	"time"
)

// State tracks where the conversation is in its turn cycle.
type State int

const (
	StateUnknown State = iota
	StateUserSent
	StateWorking
	StateToolWait
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateUserSent:
		return "user-sent"
	case StateWorking:
		return "working"
	case StateToolWait:
		return "tool-wait"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Record is one parsed conversation log line, reduced to the fields the
// state machine cares about.
type Record struct {
	Type             string
	IsCompactSummary bool
	StopReason       string
	Timestamp        time.Time
}

// DefaultToolWaitDelay is how long a pending tool call may sit before it
// is treated as blocked on an approval prompt.
const DefaultToolWaitDelay = 5 * time.Second

// Notifier is the per-session bell state machine. It is not safe for
// concurrent use; callers feed it from a single poll loop.
type Notifier struct {
	state         State
	toolWaitDelay time.Duration
	toolWaitSince time.Time
	toolWaitRang  bool
}

func NewNotifier(toolWaitDelay time.Duration) *Notifier {
	if toolWaitDelay <= 0 {
		toolWaitDelay = DefaultToolWaitDelay
	}
	return &Notifier{toolWaitDelay: toolWaitDelay}
}

func (n *Notifier) State() State { return n.state }

// Observe advances the machine with one log record and reports whether a
// bell should ring. A finished turn rings only when the machine saw the
// turn happen; replaying an old log from idle stays silent.
func (n *Notifier) Observe(rec Record) bool {
	if rec.IsCompactSummary {
		n.clearToolWait()
		return true
	}
	switch rec.Type {
	case "user":
		n.state = StateUserSent
		n.clearToolWait()
	case "assistant":
		switch rec.StopReason {
		case "end_turn":
			rang := n.state == StateUserSent || n.state == StateWorking || n.state == StateToolWait
			n.state = StateIdle
			n.clearToolWait()
			return rang
		case "tool_use":
			n.state = StateToolWait
			n.toolWaitSince = rec.Timestamp
			if n.toolWaitSince.IsZero() {
				n.toolWaitSince = time.Now()
			}
			n.toolWaitRang = false
		default:
			// Streaming chunks while a tool call is pending must not
			// disarm the approval timer.
			if n.state != StateToolWait {
				n.state = StateWorking
				n.clearToolWait()
			}
		}
	case "progress", "result":
		if n.state != StateToolWait {
			n.state = StateWorking
		}
	}
	return false
}

// CheckTimer rings once when a tool call has been pending past the
// delay, which usually means an approval prompt is on screen.
func (n *Notifier) CheckTimer(now time.Time) bool {
	if n.state != StateToolWait || n.toolWaitRang || n.toolWaitSince.IsZero() {
		return false
	}
	if now.Sub(n.toolWaitSince) < n.toolWaitDelay {
		return false
	}
	n.toolWaitRang = true
	return true
}

func (n *Notifier) clearToolWait() {
	n.toolWaitSince = time.Time{}
	n.toolWaitRang = false
}

type rawRecord struct {
	Type             string `json:"type"`
	IsCompactSummary bool   `json:"isCompactSummary"`
	Timestamp        string `json:"timestamp"`
	Message          *struct {
		StopReason string `json:"stop_reason"`
	} `json:"message"`
}

// ParseRecord turns one JSONL line into a Record. Unparseable lines
// yield ok=false and are skipped by callers. A compact-summary record
// is kept even without a type; it rings regardless of record kind.
func ParseRecord(line []byte) (Record, bool) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, false
	}
	if raw.Type == "" && !raw.IsCompactSummary {
		return Record{}, false
	}
	rec := Record{Type: raw.Type, IsCompactSummary: raw.IsCompactSummary}
	if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
		rec.Timestamp = ts
	}
	if raw.Message != nil {
		rec.StopReason = raw.Message.StopReason
	}
	return rec, true
}
