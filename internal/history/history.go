// Package history reads the persisted session index files
// (sessions-index.json) that Claude Code maintains per project directory.
// History is strictly read-only input: absence is normal, malformed content
// is a recoverable error.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/asheshgoplani/claude-watch/internal/logging"
)

var historyLog = logging.ForComponent(logging.CompHistory)

// IndexFileName is the per-project index file name.
const IndexFileName = "sessions-index.json"

// Entry is one historical session record.
type Entry struct {
	SessionID    string `json:"sessionId"`
	FullPath     string `json:"fullPath"`
	FirstPrompt  string `json:"firstPrompt"`
	MessageCount int    `json:"messageCount"`
	Created      string `json:"created"`
	Modified     string `json:"modified"`
	ProjectPath  string `json:"projectPath"`
	IsSidechain  bool   `json:"isSidechain"`
}

// LastActive parses the entry's modified timestamp. Unparseable
// timestamps yield the zero time, which sorts as very old.
func (e Entry) LastActive() time.Time {
	ts, err := time.Parse(time.RFC3339, e.Modified)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// index is the sessions-index.json document shape.
type index struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// ReadIndex parses one sessions-index.json document. A missing file yields
// an empty slice and no error; malformed content yields an error the caller
// surfaces as "history unavailable this cycle". Sidechain entries are
// dropped.
func ReadIndex(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}

	var doc index
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.IsSidechain {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CollectAll merges the indexes of every project directory under
// projectsRoot, newest first by modified time. A missing root yields an
// empty result; a single malformed index is skipped, not fatal.
func CollectAll(projectsRoot string) ([]Entry, error) {
	dirs, err := os.ReadDir(projectsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read projects root: %w", err)
	}

	var all []Entry
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		indexPath := filepath.Join(projectsRoot, dir.Name(), IndexFileName)
		entries, err := ReadIndex(indexPath)
		if err != nil {
			historyLog.Warn("index_skipped",
				slog.String("path", indexPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		all = append(all, entries...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].LastActive().After(all[j].LastActive())
	})
	return all, nil
}
