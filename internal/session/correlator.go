package session

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/claude-watch/internal/claudelog"
	"github.com/asheshgoplani/claude-watch/internal/history"
	"github.com/asheshgoplani/claude-watch/internal/logging"
	"github.com/asheshgoplani/claude-watch/internal/procscan"
	"github.com/asheshgoplani/claude-watch/internal/tmux"
)

var registryLog = logging.ForComponent(logging.CompRegistry)

// Source names reported in Snapshot.Degraded.
const (
	SourceProcesses = "processes"
	SourceTmux      = "tmux"
	SourceHistory   = "history"
)

// tailWorkers bounds concurrent per-session log tail reads.
const tailWorkers = 4

// ProcessScanner enumerates candidate assistant processes.
type ProcessScanner interface {
	Scan(ctx context.Context) ([]procscan.Record, error)
}

// PaneLister enumerates multiplexer panes.
type PaneLister interface {
	ListPanes(ctx context.Context) ([]tmux.Pane, error)
}

// TailReader reads a bounded log tail.
type TailReader interface {
	ReadTail(path string) (*claudelog.TailSummary, error)
}

// HistoryFunc fetches the historical session entries, newest first.
type HistoryFunc func(ctx context.Context) ([]history.Entry, error)

// Snapshot is one complete correlated session set. Snapshots are immutable
// once published; readers always see either the previous or the next one,
// never a mix.
type Snapshot struct {
	Sessions []*Session
	TakenAt  time.Time

	// Degraded lists sources that were unavailable this cycle.
	Degraded []string
}

// Live returns only the live sessions.
func (s *Snapshot) Live() []*Session {
	var out []*Session
	for _, sess := range s.Sessions {
		if sess.Running {
			out = append(out, sess)
		}
	}
	return out
}

// Correlator joins the independent read-only sources into Sessions.
type Correlator struct {
	Scanner ProcessScanner
	Panes   PaneLister
	History HistoryFunc
	Tail    TailReader

	// ProjectsRoot is the Claude per-project log root.
	ProjectsRoot string

	// QuietThreshold separates Idle from Waiting.
	QuietThreshold time.Duration

	// HistoryLimit bounds the historical subset.
	HistoryLimit int

	// SourceTimeout bounds each source read; a timed-out source degrades
	// to its unavailable outcome.
	SourceTimeout time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (c *Correlator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Correlator) sourceTimeout() time.Duration {
	if c.SourceTimeout > 0 {
		return c.SourceTimeout
	}
	return 3 * time.Second
}

// Correlate runs one full correlation cycle. Sources are fetched
// concurrently; each failure degrades its source to an empty result and is
// recorded in Snapshot.Degraded. The returned snapshot is complete: the
// caller may publish it atomically. The output is deterministic for
// byte-identical source data (sort key: live first by tmux target, project
// path, pid; then historical by recency).
func (c *Correlator) Correlate(ctx context.Context) (*Snapshot, error) {
	var (
		procs    []procscan.Record
		panes    []tmux.Pane
		entries  []history.Entry
		degraded = make(map[string]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tctx, cancel := context.WithTimeout(gctx, c.sourceTimeout())
		defer cancel()
		var err error
		if procs, err = c.Scanner.Scan(tctx); err != nil {
			registryLog.Warn("source_degraded",
				slog.String("source", SourceProcesses),
				slog.String("error", err.Error()),
			)
			procs, degraded[SourceProcesses] = nil, true
		}
		return nil
	})
	g.Go(func() error {
		tctx, cancel := context.WithTimeout(gctx, c.sourceTimeout())
		defer cancel()
		var err error
		if panes, err = c.Panes.ListPanes(tctx); err != nil {
			registryLog.Debug("source_degraded",
				slog.String("source", SourceTmux),
				slog.String("error", err.Error()),
			)
			panes, degraded[SourceTmux] = nil, true
		}
		return nil
	})
	g.Go(func() error {
		tctx, cancel := context.WithTimeout(gctx, c.sourceTimeout())
		defer cancel()
		var err error
		if entries, err = c.History(tctx); err != nil {
			registryLog.Warn("source_degraded",
				slog.String("source", SourceHistory),
				slog.String("error", err.Error()),
			)
			entries, degraded[SourceHistory] = nil, true
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := c.now()
	live := c.correlateLive(ctx, procs, panes, now)

	sessions := make([]*Session, 0, len(live)+c.HistoryLimit)
	livePaths := make(map[string]bool, len(live))
	liveIDs := make(map[string]bool, len(live))
	for _, s := range live {
		sessions = append(sessions, s)
		livePaths[s.ProjectPath] = true
		liveIDs[s.ID] = true
	}

	sessions = append(sessions, c.correlateHistorical(entries, livePaths, liveIDs, now)...)

	snap := &Snapshot{Sessions: sessions, TakenAt: now}
	for _, name := range []string{SourceProcesses, SourceTmux, SourceHistory} {
		if degraded[name] {
			snap.Degraded = append(snap.Degraded, name)
		}
	}
	return snap, nil
}

// correlateLive joins processes, panes, and log tails into live sessions.
func (c *Correlator) correlateLive(ctx context.Context, procs []procscan.Record, panes []tmux.Pane, now time.Time) []*Session {
	// Higher pids with ongoing activity tend to own the most recent log
	// file; the descending order keeps per-project file assignment stable.
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID > procs[j].PID })

	// Per-project ordinal: the Nth process in a project reads the Nth
	// most recent session file, so two sessions sharing one directory
	// do not collapse onto the same log.
	ordinals := make(map[string]int)
	type task struct {
		proc    procscan.Record
		ordinal int
	}
	var tasks []task
	for _, proc := range procs {
		if proc.WorkDir == "" {
			continue
		}
		tasks = append(tasks, task{proc: proc, ordinal: ordinals[proc.WorkDir]})
		ordinals[proc.WorkDir]++
	}

	results := make([]*Session, len(tasks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(tailWorkers)
	for i, tk := range tasks {
		i, tk := i, tk
		g.Go(func() error {
			results[i] = c.buildLive(tk.proc, tk.ordinal, panes, now)
			return nil
		})
	}
	_ = g.Wait()

	// First match wins on identity collisions (duplicate working
	// directories with unrecoverable session ids).
	seen := make(map[Key]bool, len(results))
	var live []*Session
	for _, s := range results {
		if s == nil {
			continue
		}
		if seen[s.Key()] {
			registryLog.Debug("duplicate_identity_dropped",
				slog.String("key", s.Key().String()),
				slog.Int("pid", s.PID),
			)
			continue
		}
		seen[s.Key()] = true
		live = append(live, s)
	}

	sort.Slice(live, func(i, j int) bool {
		a, b := live[i], live[j]
		if a.TmuxTarget != b.TmuxTarget {
			return a.TmuxTarget < b.TmuxTarget
		}
		if a.ProjectPath != b.ProjectPath {
			return a.ProjectPath < b.ProjectPath
		}
		return a.PID < b.PID
	})
	return live
}

// buildLive assembles one live session from its process record.
func (c *Correlator) buildLive(proc procscan.Record, ordinal int, panes []tmux.Pane, now time.Time) *Session {
	var (
		tail    *claudelog.TailSummary
		logPath string
	)
	file, err := claudelog.SessionFileAt(c.ProjectsRoot, proc.WorkDir, ordinal)
	if err == nil {
		logPath = file.Path
		// A vanished or unreadable log degrades to tail-unavailable
		tail, _ = c.Tail.ReadTail(file.Path)
	}

	status := Classify(true, tail, now, c.QuietThreshold)
	if status == StatusGone {
		return nil
	}

	s := &Session{
		ID:          proc.WorkDir,
		ProjectName: ProjectName(proc.WorkDir),
		ProjectPath: proc.WorkDir,
		Status:      status,
		CPUPercent:  proc.CPUPercent,
		PID:         proc.PID,
		Running:     true,
		LogPath:     logPath,
		StartedAt:   proc.StartedAt,
	}

	if tail != nil {
		if tail.SessionID != "" {
			s.ID = tail.SessionID
		}
		s.LastMessage = tail.Excerpt
		s.LastActivitySecs = ageSecs(tail.Timestamp, now)
	} else {
		s.LastActivitySecs = ageSecs(proc.StartedAt, now)
	}

	// Pane match by working-directory equality, first match wins. A weak
	// reference recomputed every refresh.
	for _, pane := range panes {
		if pane.WorkDir == proc.WorkDir {
			s.TmuxTarget = pane.Target()
			break
		}
	}
	return s
}

// correlateHistorical emits historical sessions for index entries whose
// project has no live session this cycle, bounded to the HistoryLimit
// most recent.
func (c *Correlator) correlateHistorical(entries []history.Entry, livePaths, liveIDs map[string]bool, now time.Time) []*Session {
	limit := c.HistoryLimit
	if limit <= 0 {
		limit = 20
	}

	// Entries arrive newest-first; keep that order
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastActive().After(entries[j].LastActive())
	})

	var out []*Session
	for _, e := range entries {
		if len(out) >= limit {
			break
		}
		if livePaths[e.ProjectPath] || liveIDs[e.SessionID] {
			continue
		}

		out = append(out, &Session{
			ID:               e.SessionID,
			ProjectName:      ProjectName(e.ProjectPath),
			ProjectPath:      e.ProjectPath,
			Status:           StatusHistorical,
			LastMessage:      e.FirstPrompt,
			LastActivitySecs: ageSecs(e.LastActive(), now),
			Running:          false,
			FirstPrompt:      e.FirstPrompt,
			MessageCount:     e.MessageCount,
			CreatedAt:        e.Created,
			LogPath:          e.FullPath,
		})
	}
	return out
}

// ageSecs returns the non-negative age of t relative to now. The zero time
// reports as very old.
func ageSecs(t, now time.Time) int64 {
	if t.IsZero() {
		return 999999
	}
	secs := int64(now.Sub(t).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}
