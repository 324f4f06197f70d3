// Package session is the correlation core: it fuses the process table,
// per-project conversation logs, tmux pane topology, and the historical
// session index into one classified, queryable session registry.
package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Status is a session's derived activity state.
type Status int

const (
	// StatusThinking: the assistant is composing a response.
	StatusThinking Status = iota
	// StatusProcessing: a tool invocation is executing.
	StatusProcessing
	// StatusWaiting: the session is up but not observably working.
	StatusWaiting
	// StatusIdle: no activity for at least the quiet threshold.
	StatusIdle
	// StatusHistorical: sourced from the index, no running process.
	StatusHistorical
	// StatusGone is a removal sentinel for a process that vanished
	// mid-refresh; sessions with it never enter a snapshot.
	StatusGone
)

func (s Status) String() string {
	switch s {
	case StatusThinking:
		return "thinking"
	case StatusProcessing:
		return "processing"
	case StatusWaiting:
		return "waiting"
	case StatusIdle:
		return "idle"
	case StatusHistorical:
		return "historical"
	case StatusGone:
		return "gone"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its lowercase name. The export shape
// is a stable contract for downstream tooling.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseStatus maps a status word back to a Status. Used for query filters.
func ParseStatus(word string) (Status, bool) {
	switch strings.ToLower(word) {
	case "thinking":
		return StatusThinking, true
	case "processing":
		return StatusProcessing, true
	case "waiting":
		return StatusWaiting, true
	case "idle":
		return StatusIdle, true
	case "historical":
		return StatusHistorical, true
	default:
		return 0, false
	}
}

// Key is a session's composite identity: the canonical project path plus
// the assistant-internal session id when known. When the id is unknown the
// identity degrades to the project path alone, so at most one such live
// session per project is representable.
type Key struct {
	ProjectPath string
	SessionID   string
}

func (k Key) String() string {
	if k.SessionID == "" {
		return k.ProjectPath
	}
	return k.ProjectPath + "#" + k.SessionID
}

// Session is one correlated, classified record: a currently running or a
// previously recorded assistant conversation tied to a project directory.
// The JSON field names are a stable export contract.
type Session struct {
	// ID is the assistant-internal session id, or the project path when
	// the id could not be recovered.
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	ProjectPath string `json:"project_path"`
	Status      Status `json:"status"`

	// LastMessage is a short excerpt of the latest log record.
	LastMessage string `json:"last_message,omitempty"`

	// TmuxTarget is the "session:window" spec of the matched pane.
	// A weak reference: recomputed every refresh, never assumed stable.
	TmuxTarget string `json:"tmux_target,omitempty"`

	CPUPercent float64 `json:"cpu_usage"`

	// LastActivitySecs is seconds since the latest observed activity.
	LastActivitySecs int64 `json:"last_activity_secs"`

	// PID backs live sessions; zero for historical ones.
	PID     int  `json:"pid,omitempty"`
	Running bool `json:"is_running"`

	// Historical-only fields, sourced from the session index.
	FirstPrompt  string `json:"first_prompt,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`

	// LogPath is the session's JSONL file when known.
	LogPath string `json:"jsonl_path,omitempty"`

	// StartedAt is the backing process start time (live only).
	StartedAt time.Time `json:"-"`
}

// Key returns the session's composite identity.
func (s *Session) Key() Key {
	id := s.ID
	if id == s.ProjectPath {
		id = ""
	}
	return Key{ProjectPath: s.ProjectPath, SessionID: id}
}

// SearchText is the haystack used by the fuzzy query filter.
func (s *Session) SearchText() string {
	return fmt.Sprintf("%s %s %s", s.ProjectName, s.ProjectPath, s.LastMessage)
}

// ProjectName extracts the last path element for display.
func ProjectName(projectPath string) string {
	base := filepath.Base(filepath.Clean(projectPath))
	if base == "." || base == string(filepath.Separator) {
		return "unknown"
	}
	return base
}
