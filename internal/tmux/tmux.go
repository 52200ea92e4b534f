// Package tmux wraps tmux session/window/pane operations via subprocess,
// restructured from the teacher's session-per-agent wrapper into the
// spec's hierarchy: one session per project, one window per worktree, one
// pane per agent (spec §4.5).
package tmux

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xcawolfe-amzn/ppg/internal/procrunner"
)

// Common errors, grounded on the teacher's tmux error classification.
var (
	ErrNoServer        = errors.New("no tmux server running")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrTmuxNotFound    = errors.New("tmux not found on PATH")
)

// Pane describes one row from `list-panes`.
type Pane struct {
	PaneID         string
	PID            int
	CurrentCommand string
	Dead           bool
	DeadStatus     int
	WindowIndex    int
}

// Multiplexer is the interface the agent and merge packages depend on, so
// tests can substitute a fake instead of shelling out to a real tmux.
type Multiplexer interface {
	EnsureSession(ctx context.Context, session, workDir string) error
	NewWindow(ctx context.Context, session, name, workDir string) (string, error)
	SplitWindow(ctx context.Context, window, workDir string) (string, error)
	SendLiteral(ctx context.Context, target, text string) error
	SendEnter(ctx context.Context, target string) error
	SendCtrlC(ctx context.Context, target string) error
	ListPanes(ctx context.Context, session string) ([]Pane, error)
	CapturePane(ctx context.Context, target string, lines int) (string, error)
	CapturePaneAll(ctx context.Context, target string) (string, error)
	ResizePane(ctx context.Context, target string, cols, rows int) error
	KillWindow(ctx context.Context, window string) error
	KillPane(ctx context.Context, pane string) error
	IsAvailable() bool
}

// Tmux is the real Multiplexer backed by the tmux binary.
type Tmux struct {
	runner *procrunner.Runner
}

// New returns a real tmux-backed Multiplexer.
func New() *Tmux {
	return &Tmux{runner: procrunner.New()}
}

var _ Multiplexer = (*Tmux)(nil)

func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	res, err := t.runner.Run(ctx, "tmux", args...)
	if err != nil {
		return "", t.wrapError(err, res.Stderr, args)
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	if procrunner.IsSpawnFailure(err) {
		return ErrTmuxNotFound
	}
	if strings.Contains(stderr, "no server running") || strings.Contains(stderr, "error connecting to") {
		return ErrNoServer
	}
	if strings.Contains(stderr, "duplicate session") {
		return ErrSessionExists
	}
	if strings.Contains(stderr, "session not found") || strings.Contains(stderr, "can't find session") {
		return ErrSessionNotFound
	}
	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", args[0], stderr)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// IsAvailable checks if tmux is installed and can be invoked.
func (t *Tmux) IsAvailable() bool {
	_, err := t.runner.Run(context.Background(), "tmux", "-V")
	return err == nil
}

// EnsureSession creates the project session if it doesn't already exist
// (idempotent — tolerates ErrSessionExists).
func (t *Tmux) EnsureSession(ctx context.Context, session, workDir string) error {
	args := []string{"new-session", "-d", "-s", session}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	_, err := t.run(ctx, args...)
	if err != nil && errors.Is(err, ErrSessionExists) {
		return nil
	}
	return err
}

// NewWindow creates a window in session with the given name and working
// directory, returning the window's identifier ("session:index").
func (t *Tmux) NewWindow(ctx context.Context, session, name, workDir string) (string, error) {
	args := []string{"new-window", "-t", session, "-n", name, "-P", "-F", "#{session_name}:#{window_index}"}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	out, err := t.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("creating window: %w", err)
	}
	return out, nil
}

// SplitWindow splits window, returning the new pane's identifier (e.g. "%7").
func (t *Tmux) SplitWindow(ctx context.Context, window, workDir string) (string, error) {
	args := []string{"split-window", "-t", window, "-P", "-F", "#{pane_id}"}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	out, err := t.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("splitting window: %w", err)
	}
	return out, nil
}

// SendLiteral sends text to target in literal mode, guarding a leading
// dash so tmux doesn't interpret it as a flag (spec §4.5, §9).
func (t *Tmux) SendLiteral(ctx context.Context, target, text string) error {
	_, err := t.run(ctx, "send-keys", "-t", target, "-l", procrunner.QuoteTmuxLiteral(text))
	return err
}

// SendEnter sends the Enter key to target.
func (t *Tmux) SendEnter(ctx context.Context, target string) error {
	_, err := t.run(ctx, "send-keys", "-t", target, "Enter")
	return err
}

// SendCtrlC sends Ctrl-C to target.
func (t *Tmux) SendCtrlC(ctx context.Context, target string) error {
	_, err := t.run(ctx, "send-keys", "-t", target, "C-c")
	return err
}

// paneFields is the list-panes -F format string and must stay in sync with
// parsePaneLine below.
const paneFields = "#{pane_id}\t#{pane_pid}\t#{pane_current_command}\t#{pane_dead}\t#{pane_dead_status}\t#{window_index}"

// ListPanes lists all panes across every window of session in one
// subprocess call — the basis for refresh-all's O(1)-subprocess contract
// (spec §4.6, §5).
func (t *Tmux) ListPanes(ctx context.Context, session string) ([]Pane, error) {
	out, err := t.run(ctx, "list-panes", "-s", "-t", session, "-F", paneFields)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing panes: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	var panes []Pane
	for _, line := range strings.Split(out, "\n") {
		p, err := parsePaneLine(line)
		if err != nil {
			continue
		}
		panes = append(panes, p)
	}
	return panes, nil
}

func parsePaneLine(line string) (Pane, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 6 {
		return Pane{}, fmt.Errorf("unexpected pane line: %q", line)
	}
	pid, _ := strconv.Atoi(fields[1])
	deadStatus, _ := strconv.Atoi(fields[4])
	windowIndex, _ := strconv.Atoi(fields[5])
	return Pane{
		PaneID:         fields[0],
		PID:            pid,
		CurrentCommand: fields[2],
		Dead:           fields[3] == "1",
		DeadStatus:     deadStatus,
		WindowIndex:    windowIndex,
	}, nil
}

// CapturePane captures the last N lines of target's visible content.
func (t *Tmux) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	return t.run(ctx, "capture-pane", "-p", "-t", target, "-S", fmt.Sprintf("-%d", lines))
}

// CapturePaneAll captures all scrollback history for target.
func (t *Tmux) CapturePaneAll(ctx context.Context, target string) (string, error) {
	return t.run(ctx, "capture-pane", "-p", "-t", target, "-S", "-")
}

// ResizePane resizes target to the given columns and rows.
func (t *Tmux) ResizePane(ctx context.Context, target string, cols, rows int) error {
	_, err := t.run(ctx, "resize-pane", "-t", target, "-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	return err
}

// KillWindow kills an entire window (and its panes).
func (t *Tmux) KillWindow(ctx context.Context, window string) error {
	_, err := t.run(ctx, "kill-window", "-t", window)
	return err
}

// KillPane kills a single pane.
func (t *Tmux) KillPane(ctx context.Context, pane string) error {
	_, err := t.run(ctx, "kill-pane", "-t", pane)
	return err
}

// IsShellCommand reports whether cmd looks like an interactive shell
// (signal-stack step 4 of the status detector, spec §4.6).
func IsShellCommand(cmd string) bool {
	switch strings.ToLower(cmd) {
	case "sh", "bash", "zsh", "fish":
		return true
	default:
		return false
	}
}
