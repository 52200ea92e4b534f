// Package scheduler runs one long-lived cron daemon per project root (its
// pidfile and log are keyed by a hash of the root) that fires configured
// schedule entries by invoking the core orchestration functions directly,
// in-process (spec §4.8). Liveness detection is generalized from the
// teacher's mayor zombie check ("is Claude alive in this tmux session") to
// "is this pid alive"; the log file's recency is not consulted.
package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xcawolfe-amzn/ppg/internal/agent"
	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/config"
	"github.com/xcawolfe-amzn/ppg/internal/ids"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
)

// GlobalDir returns the per-user directory daemons record their pidfile
// and logfile in, independent of any one project checkout.
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".ppg", "daemon")
}

// slug derives a filesystem-safe, stable identifier for a project root so
// multiple projects can each run their own daemon under the same global
// directory without colliding.
func slug(projectRoot string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(projectRoot))
	return fmt.Sprintf("%s-%x", filepath.Base(projectRoot), h.Sum64())
}

func pidPath(projectRoot string) string {
	return filepath.Join(GlobalDir(), slug(projectRoot)+".pid")
}

func logPath(projectRoot string) string {
	return filepath.Join(GlobalDir(), slug(projectRoot)+".log")
}

// Entry pairs a loaded schedule entry with its parsed cron spec.
type Entry struct {
	config.ScheduleEntry
	Schedule cron.Schedule
}

// Daemon owns the cron engine, pidfile, and logfile for one project's
// schedules document.
type Daemon struct {
	ProjectRoot string
	Layout      ids.Layout
	Store       *manifest.Store
	Agents      *agent.Manager
	Cfg         *config.Config

	mu        sync.Mutex
	lastFired map[string]time.Time
	cronRun   *cron.Cron
	logFile   *os.File
}

// NewDaemon returns a Daemon for one project.
func NewDaemon(projectRoot string, store *manifest.Store, agents *agent.Manager, cfg *config.Config) *Daemon {
	return &Daemon{
		ProjectRoot: projectRoot,
		Layout:      ids.NewLayout(projectRoot),
		Store:       store,
		Agents:      agents,
		Cfg:         cfg,
		lastFired:   make(map[string]time.Time),
	}
}

// Status reports whether a daemon for this project is currently alive.
type Status struct {
	Running bool
	Pid     int
	LogPath string
}

// Probe reports the live/dead status of any daemon already running for
// projectRoot, without starting one.
func Probe(projectRoot string) Status {
	pid, ok := readPid(pidPath(projectRoot))
	if !ok || !pidAlive(pid) {
		return Status{Running: false, LogPath: logPath(projectRoot)}
	}
	return Status{Running: true, Pid: pid, LogPath: logPath(projectRoot)}
}

// Run starts the daemon in the foreground: it claims the pidfile (clearing
// a stale one left by a crashed prior instance), loads schedules.yaml,
// registers each entry with the cron engine, and blocks until ctx is
// canceled, at which point it drains the in-flight minute and exits,
// removing its own state files.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(GlobalDir(), 0o755); err != nil {
		return fmt.Errorf("creating daemon dir: %w", err)
	}

	if err := d.claimPidfile(); err != nil {
		return err
	}
	defer d.releasePidfile()

	logFile, err := os.OpenFile(logPath(d.ProjectRoot), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening daemon log: %w", err)
	}
	d.logFile = logFile
	defer logFile.Close()

	entries, err := d.loadEntries()
	if err != nil {
		d.logf("failed loading schedules: %v", err)
		return err
	}

	d.cronRun = cron.New()
	for _, e := range entries {
		e := e
		d.cronRun.Schedule(e.Schedule, cron.FuncJob(func() { d.fire(e) }))
	}
	d.logf("starting with %d schedule entries", len(entries))
	d.cronRun.Start()

	<-ctx.Done()
	d.logf("draining current minute and stopping")
	stopCtx := d.cronRun.Stop()
	<-stopCtx.Done()
	d.logf("stopped")
	return nil
}

// EntryStatus pairs a configured schedule entry with its computed next-run time.
type EntryStatus struct {
	config.ScheduleEntry
	NextRun time.Time
}

// List parses schedules.yaml and computes each entry's next-run time from
// now, without starting the daemon.
func (d *Daemon) List() ([]EntryStatus, error) {
	entries, err := d.loadEntries()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]EntryStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryStatus{ScheduleEntry: e.ScheduleEntry, NextRun: e.Schedule.Next(now)})
	}
	return out, nil
}

func (d *Daemon) loadEntries() ([]Entry, error) {
	doc, err := config.LoadSchedules(d.Layout.SchedulesPath())
	if err != nil {
		return nil, err
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	entries := make([]Entry, 0, len(doc.Entries))
	for _, se := range doc.Entries {
		sched, err := parser.Parse(se.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: invalid cron expression %q: %w", se.Name, se.Cron, err)
		}
		entries = append(entries, Entry{ScheduleEntry: se, Schedule: sched})
	}
	return entries, nil
}

// fire invokes one schedule entry's action, guarding against a double-fire
// within the same minute (cron.Cron itself guarantees at-most-once per
// tick, but this guard also covers Stop/Run restart races).
func (d *Daemon) fire(e Entry) {
	d.mu.Lock()
	now := time.Now()
	if last, ok := d.lastFired[e.Name]; ok && now.Truncate(time.Minute).Equal(last.Truncate(time.Minute)) {
		d.mu.Unlock()
		return
	}
	d.lastFired[e.Name] = now
	d.mu.Unlock()

	d.logf("firing schedule %q (%s)", e.Name, e.Kind)
	if err := d.invoke(context.Background(), e.ScheduleEntry); err != nil {
		d.logf("schedule %q failed: %v", e.Name, err)
	}
}

// invoke renders the entry's prompt template and spawns one agent per
// configured agent type for "swarm" entries, or a single default-agent run
// for "prompt" entries — both driven through the same in-process
// agent.Manager.Spawn used by interactive CLI invocations.
func (d *Daemon) invoke(ctx context.Context, e config.ScheduleEntry) error {
	body, err := os.ReadFile(filepath.Join(d.Layout.TemplateDir(), e.Invoke+".md"))
	if err != nil {
		return fmt.Errorf("reading template %q: %w", e.Invoke, err)
	}

	cur, err := d.Store.Read()
	if err != nil {
		return err
	}
	wt, ok := cur.FindWorktreeByName(e.Name)
	if !ok {
		return apperr.New(apperr.CodeWorktreeNotFound, fmt.Sprintf("no worktree named %q for schedule %q", e.Name, e.Name), nil)
	}

	agentTypes := []string{d.Cfg.DefaultAgent}
	if e.Kind == config.ScheduleSwarm {
		agentTypes = agentTypes[:0]
		for _, at := range d.Cfg.Agents {
			agentTypes = append(agentTypes, at.Name)
		}
	}

	var firstErr error
	for i, at := range agentTypes {
		name := fmt.Sprintf("%s-%d", e.Name, i)
		_, err := d.Agents.Spawn(ctx, agent.SpawnParams{
			WorktreeID: wt.ID,
			Name:       name,
			AgentType:  at,
			Prompt:     string(body),
			Variables:  e.Variables,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Daemon) logf(format string, args ...any) {
	if d.logFile == nil {
		return
	}
	fmt.Fprintf(d.logFile, "%s "+format+"\n", append([]any{time.Now().UTC().Format(time.RFC3339)}, args...)...)
}

// claimPidfile writes this process's pid, first clearing a stale pidfile
// (one whose process is no longer alive). A pidfile with an unreadable pid
// is overwritten regardless of its age.
func (d *Daemon) claimPidfile() error {
	path := pidPath(d.ProjectRoot)
	if pid, ok := readPid(path); ok {
		if pidAlive(pid) {
			return apperr.New(apperr.CodeInvalidArgs, fmt.Sprintf("scheduler already running for this project (pid %d)", pid), nil)
		}
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (d *Daemon) releasePidfile() {
	_ = os.Remove(pidPath(d.ProjectRoot))
}

func readPid(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
