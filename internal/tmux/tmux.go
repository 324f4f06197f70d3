// Package tmux is the bridge to the terminal multiplexer. The read path is
// a single list-panes enumeration per refresh; the write path is thin
// wrappers over select-window and new-window.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/asheshgoplani/claude-watch/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// ErrNotRunning indicates tmux is not installed or no server is running.
// Callers degrade to an empty pane list.
var ErrNotRunning = errors.New("tmux: server not running")

// paneFormat uses tabs as separators since window names may contain colons.
const paneFormat = "#{pane_pid}\t#{session_name}\t#{window_index}\t#{window_name}\t#{pane_current_path}"

// Pane is one tmux pane with its location and working directory.
type Pane struct {
	PanePID     int
	SessionName string
	WindowIndex int
	WindowName  string
	WorkDir     string
}

// Target returns the tmux target spec for the pane's window.
func (p Pane) Target() string {
	return fmt.Sprintf("%s:%d", p.SessionName, p.WindowIndex)
}

// Bridge shells out to tmux. The runner is injectable for tests.
type Bridge struct {
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// New creates a Bridge using the real tmux binary.
func New() *Bridge {
	return &Bridge{run: runTmux}
}

func runTmux(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "tmux", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return out, nil
}

// ListPanes enumerates all panes across all sessions. When tmux is not
// running it returns ErrNotRunning; the refresh treats that as a degraded
// source, never a fatal error.
func (b *Bridge) ListPanes(ctx context.Context) ([]Pane, error) {
	out, err := b.run(ctx, "list-panes", "-a", "-F", paneFormat)
	if err != nil {
		return nil, ErrNotRunning
	}

	panes := parsePanes(out)
	tmuxLog.Debug("list_panes", slog.Int("count", len(panes)))
	return panes, nil
}

// parsePanes parses list-panes output; malformed lines are skipped.
func parsePanes(out []byte) []Pane {
	var panes []Pane
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 5)
		if len(parts) != 5 {
			continue
		}
		pid, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		windowIndex, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		panes = append(panes, Pane{
			PanePID:     pid,
			SessionName: parts[1],
			WindowIndex: windowIndex,
			WindowName:  parts[3],
			WorkDir:     parts[4],
		})
	}
	return panes
}

// SwitchTo focuses the window at target ("session:index"). The client
// switch is attempted first so cross-session jumps work; its failure is
// ignored when running outside an attached client.
func (b *Bridge) SwitchTo(ctx context.Context, target string) error {
	if session, _, ok := strings.Cut(target, ":"); ok {
		_, _ = b.run(ctx, "switch-client", "-t", session)
	}
	if _, err := b.run(ctx, "select-window", "-t", target); err != nil {
		return fmt.Errorf("tmux: select window %s: %w", target, err)
	}
	return nil
}

// NewWindow opens a new window running command in workDir and returns its
// target spec.
func (b *Bridge) NewWindow(ctx context.Context, workDir, command string) (string, error) {
	out, err := b.run(ctx, "new-window", "-c", workDir, "-P", "-F", "#{session_name}:#{window_index}", command)
	if err != nil {
		return "", fmt.Errorf("tmux: new window: %w", err)
	}
	target := strings.TrimSpace(string(out))
	tmuxLog.Info("window_opened",
		slog.String("target", target),
		slog.String("dir", workDir),
	)
	return target, nil
}
