// Package procscan enumerates running Claude Code processes from the OS
// process table. One scan is one `ps` invocation plus best-effort working
// directory introspection per matched process.
package procscan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/asheshgoplani/claude-watch/internal/logging"
)

var scanLog = logging.ForComponent(logging.CompScan)

// lstart is rendered by ps as e.g. "Thu Aug 28 10:03:17 2025".
const lstartLayout = "Mon Jan 2 15:04:05 2006"

// Record describes one running Claude process for a single scan.
// WorkDir may be empty when introspection failed; such records are
// skipped by the correlator.
type Record struct {
	PID        int
	PPID       int
	WorkDir    string
	CPUPercent float64
	StartedAt  time.Time
}

// Scanner finds Claude processes by executable name.
// The exec and cwd hooks are injectable for tests.
type Scanner struct {
	// Name is the process name to match (argv[0] equal to Name or
	// ending in "/"+Name).
	Name string

	runPS   func(ctx context.Context) ([]byte, error)
	readCwd func(ctx context.Context, pid int) (string, error)
}

// New creates a Scanner matching the given executable name.
func New(name string) *Scanner {
	if name == "" {
		name = "claude"
	}
	return &Scanner{
		Name:    name,
		runPS:   runPS,
		readCwd: readCwd,
	}
}

// Scan enumerates the process table once and returns all top-level Claude
// processes. Sub-agents (Claude processes whose parent is also a Claude
// process) are excluded. Per-process failures are skipped, never returned.
func (s *Scanner) Scan(ctx context.Context) ([]Record, error) {
	out, err := s.runPS(ctx)
	if err != nil {
		return nil, fmt.Errorf("procscan: ps: %w", err)
	}

	entries := parsePS(out)

	// First pass: all matching PIDs, so sub-agents can be recognized
	matched := make(map[int]psEntry)
	for _, e := range entries {
		if s.matches(e.argv0) {
			matched[e.pid] = e
		}
	}

	records := make([]Record, 0, len(matched))
	for pid, e := range matched {
		// Parent is also a Claude process: this is a sub-agent
		if _, ok := matched[e.ppid]; ok {
			continue
		}

		wd, err := s.readCwd(ctx, pid)
		if err != nil {
			scanLog.Debug("cwd_unavailable",
				slog.Int("pid", pid),
				slog.String("error", err.Error()),
			)
		}

		records = append(records, Record{
			PID:        pid,
			PPID:       e.ppid,
			WorkDir:    wd,
			CPUPercent: e.cpu,
			StartedAt:  e.started,
		})
	}

	scanLog.Debug("scan_done", slog.Int("matched", len(records)))
	return records, nil
}

// matches reports whether argv[0] identifies the watched executable.
func (s *Scanner) matches(argv0 string) bool {
	lower := strings.ToLower(argv0)
	return lower == s.Name || strings.HasSuffix(lower, "/"+s.Name)
}

// psEntry is one parsed line of ps output.
type psEntry struct {
	pid     int
	ppid    int
	cpu     float64
	started time.Time
	argv0   string
}

// parsePS parses `ps -axo pid=,ppid=,pcpu=,lstart=,args=` output.
// Malformed lines are skipped.
func parsePS(out []byte) []psEntry {
	var entries []psEntry
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		// pid ppid pcpu + 5 lstart tokens + at least argv[0]
		if len(fields) < 9 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		cpu, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}

		started, err := time.ParseInLocation(lstartLayout, strings.Join(fields[3:8], " "), time.Local)
		if err != nil {
			continue
		}

		entries = append(entries, psEntry{
			pid:     pid,
			ppid:    ppid,
			cpu:     cpu,
			started: started,
			argv0:   fields[8],
		})
	}
	return entries
}

// runPS executes a single process-table enumeration.
func runPS(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ps", "-axo", "pid=,ppid=,pcpu=,lstart=,args=")
	return cmd.Output()
}

// readCwd resolves a process's working directory. /proc is authoritative on
// Linux; darwin falls back to lsof.
func readCwd(ctx context.Context, pid int) (string, error) {
	if runtime.GOOS == "linux" {
		link, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
		if err != nil {
			return "", fmt.Errorf("procscan: readlink cwd: %w", err)
		}
		return link, nil
	}

	out, err := exec.CommandContext(ctx, "lsof", "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn").Output()
	if err != nil {
		return "", fmt.Errorf("procscan: lsof cwd: %w", err)
	}
	return parseLsofCwd(out)
}

// parseLsofCwd extracts the cwd path from `lsof -Fn` field output.
func parseLsofCwd(out []byte) (string, error) {
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "n") && len(line) > 1 {
			return line[1:], nil
		}
	}
	return "", fmt.Errorf("procscan: no cwd in lsof output")
}
