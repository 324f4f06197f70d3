package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/asheshgoplani/claude-watch/internal/claudelog"
	"github.com/asheshgoplani/claude-watch/internal/config"
	"github.com/asheshgoplani/claude-watch/internal/history"
	"github.com/asheshgoplani/claude-watch/internal/journal"
	"github.com/asheshgoplani/claude-watch/internal/logging"
	"github.com/asheshgoplani/claude-watch/internal/procscan"
	"github.com/asheshgoplani/claude-watch/internal/session"
	"github.com/asheshgoplani/claude-watch/internal/tmux"
)

const Version = "0.3.1"

// Table column widths for list command output
const (
	tableColProject = 22
	tableColStatus  = 12
	tableColAge     = 8
	tableColTarget  = 14
	tableColMessage = 50
)

var cliLog = logging.ForComponent(logging.CompCLI)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("claude-watch v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "list", "ls":
		handleList(args[1:])
	case "watch":
		handleWatch(args[1:])
	case "goto":
		handleGoto(args[1:])
	case "resume":
		handleResume(args[1:])
	case "kill":
		handleKill(args[1:])
	case "journal":
		handleJournal(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: claude-watch <command> [options]")
	fmt.Println()
	fmt.Println("Observe Claude Code sessions across tmux windows.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list [query]      One-shot session listing (alias: ls)")
	fmt.Println("  watch             Live refresh loop, prints status transitions")
	fmt.Println("  goto <n|id>       Focus the tmux window of a session")
	fmt.Println("  resume <n|id>     Resume a historical session in a new tmux window")
	fmt.Println("  kill <n|id>       Terminate a live session's process")
	fmt.Println("  journal           Show recent status transitions")
	fmt.Println("  version           Print the version")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  claude-watch list                # All sessions, live first")
	fmt.Println("  claude-watch list waiting        # Only waiting sessions")
	fmt.Println("  claude-watch list -json api      # Fuzzy match as JSON")
	fmt.Println("  claude-watch goto 2              # Jump to the second listed session")
}

// loadConfig loads the user config, warning on parse errors but never
// failing: a broken config file degrades to defaults.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg
}

// initLogging sets up structured logging. Logs are discarded unless
// CLAUDE_WATCH_DEBUG is set or a log dir is configured.
func initLogging(cfg *config.Config) {
	debug := os.Getenv("CLAUDE_WATCH_DEBUG") != ""

	logDir := cfg.Logs.Dir
	if logDir == "" && debug {
		if base, err := config.BaseDir(); err == nil {
			logDir = base
		}
	}

	level := cfg.Logs.Level
	if debug {
		level = "debug"
	}

	logging.Init(logging.Config{
		LogDir:   config.ExpandTilde(logDir),
		Level:    level,
		Format:   "json",
		Compress: true,
		Debug:    debug,
	})
}

// openJournal opens the transition journal when enabled. Failure is
// non-fatal: the watcher runs without persistence.
func openJournal(cfg *config.Config) *journal.DB {
	if !cfg.Journal.Enabled {
		return nil
	}
	path, err := cfg.JournalPath()
	if err != nil {
		return nil
	}
	db, err := journal.Open(path)
	if err != nil {
		cliLog.Warn("journal_unavailable", slog.String("error", err.Error()))
		return nil
	}
	return db
}

// newRegistry wires the real sources into a registry.
func newRegistry(cfg *config.Config, recorder session.TransitionRecorder) *session.Registry {
	projectsRoot := cfg.ProjectsDir()
	correlator := &session.Correlator{
		Scanner: procscan.New(cfg.Claude.ProcessName),
		Panes:   tmux.New(),
		History: func(context.Context) ([]history.Entry, error) {
			return history.CollectAll(projectsRoot)
		},
		Tail:           claudelog.NewReader(cfg.Status.TailBytes),
		ProjectsRoot:   projectsRoot,
		QuietThreshold: cfg.QuietThreshold(),
		HistoryLimit:   cfg.History.Limit,
	}
	return session.NewRegistry(correlator, recorder)
}

// refreshedRegistry builds a registry and runs one refresh for the one-shot
// commands.
func refreshedRegistry(cfg *config.Config) *session.Registry {
	r := newRegistry(cfg, nil)
	if err := r.Refresh(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: refresh failed: %v\n", err)
		os.Exit(1)
	}
	return r
}

// handleList prints sessions once, table or JSON.
func handleList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	liveOnly := fs.Bool("live", false, "Only live sessions")
	quiet := fs.Bool("q", false, "Only print the session count")

	fs.Usage = func() {
		fmt.Println("Usage: claude-watch list [options] [query]")
		fmt.Println()
		fmt.Println("List sessions. A status word filters by status; any other query")
		fmt.Println("is a fuzzy match over project name, path, and last message.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	r := refreshedRegistry(cfg)
	sessions := r.Filter(strings.Join(fs.Args(), " "))
	if *liveOnly {
		var live []*session.Session
		for _, s := range sessions {
			if s.Running {
				live = append(live, s)
			}
		}
		sessions = live
	}

	if *quiet {
		fmt.Println(len(sessions))
		return
	}
	if *jsonOutput {
		if err := session.WriteJSON(os.Stdout, sessions); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	printTable(sessions)
	for _, source := range r.Snapshot().Degraded {
		fmt.Fprintf(os.Stderr, "Warning: %s unavailable this cycle\n", source)
	}
}

func printTable(sessions []*session.Session) {
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	fmt.Printf("%3s  %-*s %-*s %-*s %-*s %s\n", "#",
		tableColProject, "PROJECT",
		tableColStatus, "STATUS",
		tableColAge, "AGE",
		tableColTarget, "TMUX",
		"LAST MESSAGE")
	for i, s := range sessions {
		target := s.TmuxTarget
		if target == "" {
			target = "-"
		}
		fmt.Printf("%3d  %-*s %-*s %-*s %-*s %s\n", i+1,
			tableColProject, truncate(s.ProjectName, tableColProject),
			tableColStatus, s.Status.String(),
			tableColAge, humanAge(s.LastActivitySecs),
			tableColTarget, truncate(target, tableColTarget),
			truncate(s.LastMessage, tableColMessage))
	}
	fmt.Printf("\nTotal: %d sessions\n", len(sessions))
}

// handleWatch runs the continuous refresh loop until interrupted. Each
// status transition is printed as it is observed.
func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", 0, "Refresh interval (overrides config)")

	fs.Usage = func() {
		fmt.Println("Usage: claude-watch watch [options]")
		fmt.Println()
		fmt.Println("Refresh continuously and print status transitions. Log writes")
		fmt.Println("trigger refreshes between ticks; Ctrl-C exits.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	db := openJournal(cfg)
	if db != nil {
		defer db.Close()
	}

	var recorder session.TransitionRecorder
	if db != nil {
		recorder = db
	}
	r := newRegistry(cfg, &printingRecorder{next: recorder})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 dumps the ring buffer for post-mortem debugging
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			if base, err := config.BaseDir(); err == nil {
				path := filepath.Join(base, fmt.Sprintf("dump-%d.jsonl", time.Now().Unix()))
				_ = logging.DumpRingBuffer(path)
			}
		}
	}()

	watcher, err := session.NewLogWatcher(cfg.ProjectsDir(), func() {
		r.TryRefresh(ctx)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: log watcher unavailable: %v\n", err)
	} else {
		go watcher.Start()
		defer watcher.Stop()
	}

	every := cfg.RefreshInterval()
	if *interval > 0 {
		every = *interval
	}

	cliLog.Info("watch_started",
		slog.Int("pid", os.Getpid()),
		slog.Duration("interval", every),
	)
	fmt.Printf("Watching (refresh every %s, Ctrl-C to exit)\n", every)

	if err := r.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: refresh failed: %v\n", err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped.")
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "Warning: refresh failed: %v\n", err)
			}
		}
	}
}

// printingRecorder prints each transition and forwards to the journal.
type printingRecorder struct {
	next session.TransitionRecorder
}

func (p *printingRecorder) RecordTransitions(transitions []journal.Transition) error {
	for _, tr := range transitions {
		from := tr.From
		if from == "" {
			from = "new"
		}
		fmt.Printf("%s  %-22s %s -> %s\n",
			tr.At.Format("15:04:05"),
			truncate(session.ProjectName(tr.ProjectPath), tableColProject),
			from, tr.To)
	}
	if p.next != nil {
		return p.next.RecordTransitions(transitions)
	}
	return nil
}

// findSession resolves a list position, session id, or project path against
// a fresh snapshot.
func findSession(args []string, usage string) (*config.Config, *session.Session) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cfg := loadConfig()
	initLogging(cfg)

	r := refreshedRegistry(cfg)
	s := r.Find(args[0])
	if s == nil {
		fmt.Fprintf(os.Stderr, "Error: no session matches %q\n", args[0])
		os.Exit(1)
	}
	return cfg, s
}

// handleGoto focuses the tmux window hosting a session.
func handleGoto(args []string) {
	_, s := findSession(args, "Usage: claude-watch goto <n|id|path>")
	defer logging.Shutdown()

	if s.TmuxTarget == "" {
		fmt.Fprintf(os.Stderr, "Error: session %s has no tmux window\n", s.ProjectName)
		os.Exit(1)
	}

	if err := tmux.New().SwitchTo(context.Background(), s.TmuxTarget); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Switched to %s (%s)\n", s.TmuxTarget, s.ProjectName)
}

// handleResume reopens a historical session in a new tmux window.
func handleResume(args []string) {
	cfg, s := findSession(args, "Usage: claude-watch resume <n|id>")
	defer logging.Shutdown()

	if s.Running {
		if s.TmuxTarget != "" {
			fmt.Printf("Session already running, switching to %s\n", s.TmuxTarget)
			if err := tmux.New().SwitchTo(context.Background(), s.TmuxTarget); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		fmt.Fprintln(os.Stderr, "Error: session is already running outside tmux")
		os.Exit(1)
	}

	command := fmt.Sprintf("%s --resume %s", cfg.Claude.Command, s.ID)
	target, err := tmux.New().NewWindow(context.Background(), s.ProjectPath, command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Resumed %s in %s\n", s.ProjectName, target)
}

// handleKill terminates a live session's process with SIGTERM.
func handleKill(args []string) {
	_, s := findSession(args, "Usage: claude-watch kill <n|id>")
	defer logging.Shutdown()

	if !s.Running || s.PID == 0 {
		fmt.Fprintf(os.Stderr, "Error: session %s is not running\n", s.ProjectName)
		os.Exit(1)
	}

	if err := syscall.Kill(s.PID, syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "Error: kill pid %d: %v\n", s.PID, err)
		os.Exit(1)
	}
	cliLog.Info("session_killed", slog.Int("pid", s.PID), slog.String("project", s.ProjectPath))
	fmt.Printf("Sent SIGTERM to %s (pid %d)\n", s.ProjectName, s.PID)
}

// handleJournal prints recent status transitions from the journal.
func handleJournal(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	limit := fs.Int("n", 50, "Number of transitions to show")
	prune := fs.Duration("prune", 0, "Delete transitions older than this age and exit")

	fs.Usage = func() {
		fmt.Println("Usage: claude-watch journal [options]")
		fmt.Println()
		fmt.Println("Show recent status transitions recorded by watch mode.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	path, err := cfg.JournalPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	db, err := journal.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *prune > 0 {
		n, err := db.Prune(time.Now().Add(-*prune))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pruned %d transitions\n", n)
		return
	}

	transitions, err := db.Recent(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(transitions) == 0 {
		fmt.Println("No transitions recorded yet. Run 'claude-watch watch' first.")
		return
	}

	for _, tr := range transitions {
		from := tr.From
		if from == "" {
			from = "new"
		}
		fmt.Printf("%s  %-22s %-10s -> %s\n",
			tr.At.Format("2006-01-02 15:04:05"),
			truncate(session.ProjectName(tr.ProjectPath), tableColProject),
			from, tr.To)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// humanAge formats seconds-since-activity compactly.
func humanAge(secs int64) string {
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	default:
		return fmt.Sprintf("%dd", secs/86400)
	}
}
