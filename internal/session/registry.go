package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sahilm/fuzzy"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/claude-watch/internal/journal"
)

// TransitionRecorder persists observed status transitions. May be nil.
type TransitionRecorder interface {
	RecordTransitions(transitions []journal.Transition) error
}

// Registry holds the current correlated snapshot plus the previous one for
// change detection. The snapshot is swapped atomically: readers are
// wait-free and always see a complete session set.
type Registry struct {
	correlator *Correlator
	recorder   TransitionRecorder

	snap atomic.Pointer[Snapshot]

	// refreshMu serializes refreshes; pending coalesces requests that
	// arrive while one is in flight (at most one queued).
	refreshMu sync.Mutex
	pending   atomic.Bool

	// limiter bounds watcher-triggered refresh bursts.
	limiter *rate.Limiter
}

// NewRegistry creates a registry around the correlator. recorder may be nil
// to disable journaling.
func NewRegistry(c *Correlator, recorder TransitionRecorder) *Registry {
	r := &Registry{
		correlator: c,
		recorder:   recorder,
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
	}
	r.snap.Store(&Snapshot{})
	return r
}

// Snapshot returns the current snapshot. Never nil.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Refresh runs one correlation cycle and publishes the result. Refreshes
// never run concurrently: a call arriving while one is in flight marks a
// single pending rerun and returns immediately. A refresh that fails keeps
// the previous snapshot untouched.
func (r *Registry) Refresh(ctx context.Context) error {
	if !r.refreshMu.TryLock() {
		r.pending.Store(true)
		return nil
	}
	defer r.refreshMu.Unlock()

	for {
		err := r.refreshOnce(ctx)
		if !r.pending.Swap(false) {
			return err
		}
	}
}

// TryRefresh requests a refresh subject to the rate limiter. Used by the
// filesystem watcher, where bursts of log writes would otherwise stampede.
// A limited request only sets the pending flag; it is drained by a refresh
// already in flight, or by the next periodic tick (watch mode always runs
// one).
func (r *Registry) TryRefresh(ctx context.Context) {
	if !r.limiter.Allow() {
		r.pending.Store(true)
		return
	}
	_ = r.Refresh(ctx)
}

func (r *Registry) refreshOnce(ctx context.Context) error {
	start := time.Now()

	next, err := r.correlator.Correlate(ctx)
	if err != nil {
		// Partial refreshes are discarded; the previous snapshot stays
		registryLog.Warn("refresh_failed", slog.String("error", err.Error()))
		return fmt.Errorf("registry: refresh: %w", err)
	}

	prev := r.snap.Swap(next)
	transitions := diffTransitions(prev, next)

	if r.recorder != nil && len(transitions) > 0 {
		if err := r.recorder.RecordTransitions(transitions); err != nil {
			registryLog.Warn("journal_write_failed", slog.String("error", err.Error()))
		}
	}

	registryLog.Debug("refresh_done",
		slog.Int("sessions", len(next.Sessions)),
		slog.Int("transitions", len(transitions)),
		slog.Duration("elapsed", time.Since(start)),
		slog.Any("degraded", next.Degraded),
	)
	return nil
}

// diffTransitions computes status changes between two snapshots: changed
// statuses, newly appeared sessions (from ""), and vanished live sessions
// (to "gone").
func diffTransitions(prev, next *Snapshot) []journal.Transition {
	if prev == nil {
		prev = &Snapshot{}
	}

	prevByKey := make(map[Key]*Session, len(prev.Sessions))
	for _, s := range prev.Sessions {
		prevByKey[s.Key()] = s
	}

	var out []journal.Transition
	seen := make(map[Key]bool, len(next.Sessions))
	for _, s := range next.Sessions {
		key := s.Key()
		seen[key] = true

		old, ok := prevByKey[key]
		switch {
		case !ok:
			out = append(out, journal.Transition{
				SessionID:   s.ID,
				ProjectPath: s.ProjectPath,
				From:        "",
				To:          s.Status.String(),
				At:          next.TakenAt,
			})
		case old.Status != s.Status:
			out = append(out, journal.Transition{
				SessionID:   s.ID,
				ProjectPath: s.ProjectPath,
				From:        old.Status.String(),
				To:          s.Status.String(),
				At:          next.TakenAt,
			})
		}
	}

	for key, old := range prevByKey {
		if !seen[key] && old.Running {
			out = append(out, journal.Transition{
				SessionID:   old.ID,
				ProjectPath: old.ProjectPath,
				From:        old.Status.String(),
				To:          StatusGone.String(),
				At:          next.TakenAt,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectPath != out[j].ProjectPath {
			return out[i].ProjectPath < out[j].ProjectPath
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Filter returns the snapshot's sessions matching the query. A bare status
// word ("waiting", "idle", ...) filters by status; anything else is a
// fuzzy match over project name, path, and excerpt. An empty query returns
// everything.
func (r *Registry) Filter(query string) []*Session {
	sessions := r.Snapshot().Sessions
	query = strings.TrimSpace(query)
	if query == "" {
		return sessions
	}

	if status, ok := ParseStatus(query); ok {
		var out []*Session
		for _, s := range sessions {
			if s.Status == status {
				out = append(out, s)
			}
		}
		return out
	}

	matches := fuzzy.FindFrom(query, searchSource(sessions))
	out := make([]*Session, 0, len(matches))
	for _, m := range matches {
		out = append(out, sessions[m.Index])
	}
	return out
}

// searchSource adapts a session slice to fuzzy.Source.
type searchSource []*Session

func (s searchSource) String(i int) string { return s[i].SearchText() }
func (s searchSource) Len() int            { return len(s) }

// Find locates a session in the current snapshot by session id, project
// path, or 1-based list position.
func (r *Registry) Find(ref string) *Session {
	snap := r.Snapshot()

	var index int
	if _, err := fmt.Sscanf(ref, "%d", &index); err == nil && index >= 1 && index <= len(snap.Sessions) {
		return snap.Sessions[index-1]
	}

	for _, s := range snap.Sessions {
		if s.ID == ref || s.ProjectPath == ref {
			return s
		}
	}
	return nil
}

// WriteJSON exports sessions in the stable machine-readable shape.
func WriteJSON(w io.Writer, sessions []*Session) error {
	if sessions == nil {
		sessions = []*Session{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sessions)
}
