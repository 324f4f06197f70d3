package procscan

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePS = ` 1234   890  2.5 Thu Aug 28 10:03:17 2025 claude
 2345  1234  0.0 Thu Aug 28 10:05:00 2025 claude
 3456   891 12.0 Thu Aug 28 09:00:00 2025 /usr/local/bin/claude --resume abc
 4567   892  0.1 Thu Aug 28 08:00:00 2025 vim notes.txt
 5678   893  0.0 Thu Aug 28 07:00:00 2025 /usr/bin/claude-watch watch
garbage line
`

func newTestScanner(cwds map[int]string) *Scanner {
	s := New("claude")
	s.runPS = func(ctx context.Context) ([]byte, error) {
		return []byte(samplePS), nil
	}
	s.readCwd = func(ctx context.Context, pid int) (string, error) {
		if wd, ok := cwds[pid]; ok {
			return wd, nil
		}
		return "", fmt.Errorf("no cwd for %d", pid)
	}
	return s
}

func TestScanFiltersAndExcludesSubAgents(t *testing.T) {
	s := newTestScanner(map[int]string{
		1234: "/proj/a",
		3456: "/proj/b",
	})

	records, err := s.Scan(context.Background())
	require.NoError(t, err)

	pids := make([]int, 0, len(records))
	for _, r := range records {
		pids = append(pids, r.PID)
	}
	sort.Ints(pids)

	// 2345 is a sub-agent (parent 1234 is claude), 4567 is vim,
	// 5678 is claude-watch itself
	assert.Equal(t, []int{1234, 3456}, pids)
}

func TestScanKeepsRecordWhenCwdFails(t *testing.T) {
	s := newTestScanner(map[int]string{1234: "/proj/a"})

	records, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	byPID := make(map[int]Record)
	for _, r := range records {
		byPID[r.PID] = r
	}
	assert.Equal(t, "/proj/a", byPID[1234].WorkDir)
	assert.Empty(t, byPID[3456].WorkDir)
}

func TestParsePS(t *testing.T) {
	entries := parsePS([]byte(samplePS))
	require.Len(t, entries, 5)

	first := entries[0]
	assert.Equal(t, 1234, first.pid)
	assert.Equal(t, 890, first.ppid)
	assert.InDelta(t, 2.5, first.cpu, 0.001)
	assert.Equal(t, "claude", first.argv0)

	want := time.Date(2025, time.August, 28, 10, 3, 17, 0, time.Local)
	assert.True(t, first.started.Equal(want), "got %v", first.started)

	assert.Equal(t, "/usr/local/bin/claude", entries[2].argv0)
}

func TestParsePSSkipsMalformed(t *testing.T) {
	out := []byte("not a process line\n12 34\n")
	assert.Empty(t, parsePS(out))
}

func TestMatches(t *testing.T) {
	s := New("claude")
	assert.True(t, s.matches("claude"))
	assert.True(t, s.matches("/usr/local/bin/claude"))
	assert.True(t, s.matches("/Users/me/.volta/bin/Claude"))
	assert.False(t, s.matches("claude-watch"))
	assert.False(t, s.matches("/usr/bin/claude-code-acp"))
	assert.False(t, s.matches("vim"))
}

func TestParseLsofCwd(t *testing.T) {
	out := []byte("p1234\nfcwd\nn/home/user/project\n")
	wd, err := parseLsofCwd(out)
	require.NoError(t, err)
	assert.Equal(t, "/home/user/project", wd)

	_, err = parseLsofCwd([]byte("p1234\n"))
	assert.Error(t, err)
}
