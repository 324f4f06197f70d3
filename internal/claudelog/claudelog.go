// Package claudelog reads the trailing window of a Claude Code session log
// (one JSONL file per session under <config>/projects/<encoded-path>/) and
// summarizes the latest records for status classification.
package claudelog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/asheshgoplani/claude-watch/internal/logging"
)

var logLog = logging.ForComponent(logging.CompLog)

// ErrNotFound indicates the session log file is missing or unreadable.
// The correlator treats this as "log data unavailable".
var ErrNotFound = errors.New("claudelog: session log not found")

// DefaultTailBytes bounds how much of a log file is read per refresh.
const DefaultTailBytes = 64 * 1024

// excerptLen caps the display excerpt, in runes.
const excerptLen = 100

// dirNameRegex matches any character Claude Code replaces with a hyphen
// when encoding a project path as a directory name.
var dirNameRegex = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// sessionFileRegex matches UUID-named session log files.
var sessionFileRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.jsonl$`)

// localCommands are slash commands handled locally by the CLI; they never
// put the assistant to work.
var localCommands = []string{
	"/clear", "/compact", "/help", "/config", "/cost", "/doctor",
	"/init", "/login", "/logout", "/memory", "/model", "/permissions",
	"/pr-comments", "/review", "/status", "/terminal-setup", "/vim",
}

const interruptedMarker = "[Request interrupted by user]"

// RecordKind identifies the structural kind of the latest log record.
type RecordKind int

const (
	KindUnknown RecordKind = iota
	KindUserPrompt
	KindAssistantMessage
	KindToolUse
	KindToolResult
	KindLocalCommand
	KindInterrupted
)

func (k RecordKind) String() string {
	switch k {
	case KindUserPrompt:
		return "user_prompt"
	case KindAssistantMessage:
		return "assistant_message"
	case KindToolUse:
		return "tool_use"
	case KindToolResult:
		return "tool_result"
	case KindLocalCommand:
		return "local_command"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// TailSummary is the typed summary of one session log's trailing window.
type TailSummary struct {
	// SessionID is the assistant-internal session identifier.
	SessionID string

	// Kind is the latest record kind with content.
	Kind RecordKind

	// Timestamp is the latest record's timestamp, falling back to the
	// file modification time when the record carries none.
	Timestamp time.Time

	// Excerpt is a short display summary of the latest textual content.
	Excerpt string

	// ToolInFlight reports a tool invocation with no result yet.
	ToolInFlight bool
}

// Reader reads bounded log tails.
type Reader struct {
	// MaxBytes is the tail window size (default 64 KiB).
	MaxBytes int
}

// NewReader creates a Reader with the given tail window, or the default
// when maxBytes <= 0.
func NewReader(maxBytes int) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultTailBytes
	}
	return &Reader{MaxBytes: maxBytes}
}

// logLine is one JSONL record. Unknown fields are ignored for forward
// compatibility.
type logLine struct {
	SessionID string       `json:"sessionId"`
	Type      string       `json:"type"`
	Timestamp string       `json:"timestamp"`
	Message   *messageBody `json:"message"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReadTail reads at most MaxBytes from the end of the log file and
// summarizes the newest records. A missing or unreadable file returns
// ErrNotFound. Malformed lines are skipped.
func (r *Reader) ReadTail(path string) (*TailSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrNotFound
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, ErrNotFound
	}

	lines, err := readTailLines(f, info.Size(), int64(r.MaxBytes))
	if err != nil {
		return nil, ErrNotFound
	}

	summary := summarize(lines)
	if summary == nil {
		// Readable file with no usable records: report as unavailable
		return nil, ErrNotFound
	}

	if summary.Timestamp.IsZero() {
		summary.Timestamp = info.ModTime()
	}

	logLog.Debug("tail_read",
		slog.String("path", filepath.Base(path)),
		slog.String("kind", summary.Kind.String()),
	)
	return summary, nil
}

// readTailLines returns the complete lines within the trailing window.
// When the window starts mid-file, the partial leading line is discarded.
func readTailLines(f io.ReaderAt, size, window int64) ([]string, error) {
	if size == 0 {
		return nil, nil
	}

	offset := size - window
	if offset < 0 {
		offset = 0
	}

	buf := make([]byte, size-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, err
	}

	text := string(buf)
	if offset > 0 {
		// Drop the partial leading line
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			return nil, nil
		}
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// summarize scans lines newest-first for the latest record with content,
// an excerpt, and the session id. Returns nil when nothing was parseable.
func summarize(lines []string) *TailSummary {
	var (
		summary   TailSummary
		haveKind  bool
		haveID    bool
		haveText  bool
		parsedAny bool
	)

	for i := len(lines) - 1; i >= 0; i-- {
		var rec logLine
		if err := json.Unmarshal([]byte(lines[i]), &rec); err != nil {
			continue
		}
		parsedAny = true

		if !haveID && rec.SessionID != "" {
			summary.SessionID = rec.SessionID
			haveID = true
		}

		if rec.Message == nil || len(rec.Message.Content) == 0 {
			continue
		}
		text, items, hasContent := decodeContent(rec.Message.Content)
		if !hasContent {
			continue
		}

		if !haveKind {
			summary.Kind = classifyRecord(rec.Message.Role, text, items)
			summary.ToolInFlight = summary.Kind == KindToolUse
			if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
				summary.Timestamp = ts
			}
			haveKind = true
		}

		if !haveText && text != "" {
			summary.Excerpt = truncate(text, excerptLen)
			haveText = true
		}

		if haveKind && haveID && haveText {
			break
		}
	}

	if !parsedAny {
		return nil
	}
	return &summary
}

// decodeContent handles both content shapes: a plain string or an array
// of typed items. Returns the first text found, the items, and whether
// any content was present.
func decodeContent(raw json.RawMessage) (string, []contentItem, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil, s != ""
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", nil, false
	}
	if len(items) == 0 {
		return "", nil, false
	}
	for _, item := range items {
		if item.Text != "" {
			return item.Text, items, true
		}
	}
	return "", items, true
}

// classifyRecord maps a record's role and content to a RecordKind.
func classifyRecord(role, text string, items []contentItem) RecordKind {
	switch role {
	case "assistant":
		if hasItemType(items, "tool_use") {
			return KindToolUse
		}
		return KindAssistantMessage
	case "user":
		if strings.Contains(text, interruptedMarker) {
			return KindInterrupted
		}
		if isLocalCommand(text) {
			return KindLocalCommand
		}
		if hasItemType(items, "tool_result") {
			return KindToolResult
		}
		return KindUserPrompt
	default:
		return KindUnknown
	}
}

func hasItemType(items []contentItem, typ string) bool {
	for _, item := range items {
		if item.Type == typ {
			return true
		}
	}
	return false
}

// isLocalCommand reports whether the text is a local slash command.
func isLocalCommand(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, cmd := range localCommands {
		if trimmed == cmd || strings.HasPrefix(trimmed, cmd+" ") {
			return true
		}
	}
	return false
}

// truncate shortens s to at most n runes, appending an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ProjectDirName converts a project path to Claude's directory naming
// format: every non-alphanumeric character becomes a hyphen.
// Example: /Users/me/Code cloud/!proj -> -Users-me-Code-cloud--proj
func ProjectDirName(path string) string {
	return dirNameRegex.ReplaceAllString(path, "-")
}

// SessionFile is a session log file with its modification time.
type SessionFile struct {
	Path    string
	ModTime time.Time
}

// SessionFiles lists UUID-named session logs in a project directory,
// newest first. agent-*.jsonl sub-agent transcripts are excluded.
func SessionFiles(projectDir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil, fmt.Errorf("claudelog: read project dir: %w", err)
	}

	var files []SessionFile
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "agent-") || !sessionFileRegex.MatchString(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, SessionFile{
			Path:    filepath.Join(projectDir, name),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// SessionFileAt returns the index-th most recent session log in the
// project directory for the given project path, or ErrNotFound.
func SessionFileAt(projectsRoot, projectPath string, index int) (SessionFile, error) {
	projectDir := filepath.Join(projectsRoot, ProjectDirName(projectPath))
	files, err := SessionFiles(projectDir)
	if err != nil || index >= len(files) {
		return SessionFile{}, ErrNotFound
	}
	return files[index], nil
}
