// Package result collects and concatenates agent result artifacts for
// reporting (spec §4.9). The primary signal is the result file an agent
// writes itself; for terminal-failed agents without one, a pane-capture
// tail is used as a best-effort fallback.
package result

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/tmux"
)

// FallbackTailLines is how much pane scrollback to capture when an agent
// has no result file.
const FallbackTailLines = 200

// Entry is one agent's contribution to an aggregated report.
type Entry struct {
	WorktreeName string
	AgentName    string
	AgentID      string
	Status       manifest.AgentStatus
	Body         string
	FromFallback bool
}

// Collector reads result files (and, for missing-file terminal-failure
// cases, pane tails) and renders them into one deterministic report.
type Collector struct {
	Mux tmux.Multiplexer
}

// NewCollector returns a Collector.
func NewCollector(mux tmux.Multiplexer) *Collector {
	return &Collector{Mux: mux}
}

// Collect gathers one Entry per agent across the given worktrees (all
// worktrees in mf if worktreeIDs is empty), in deterministic order: by
// worktree name, then agent name, both ASCII-sorted.
func (c *Collector) Collect(ctx context.Context, mf *manifest.Manifest, worktreeIDs []string, useFallback bool) ([]Entry, error) {
	include := make(map[string]bool, len(worktreeIDs))
	for _, id := range worktreeIDs {
		include[id] = true
	}

	var worktrees []*manifest.Worktree
	for id, wt := range mf.Worktrees {
		if len(worktreeIDs) == 0 || include[id] {
			worktrees = append(worktrees, wt)
		}
	}
	sort.Slice(worktrees, func(i, j int) bool { return worktrees[i].Name < worktrees[j].Name })

	var entries []Entry
	for _, wt := range worktrees {
		var agents []*manifest.Agent
		for _, ag := range wt.Agents {
			agents = append(agents, ag)
		}
		sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

		for _, ag := range agents {
			entry, err := c.collectOne(ctx, wt, ag, useFallback)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (c *Collector) collectOne(ctx context.Context, wt *manifest.Worktree, ag *manifest.Agent, useFallback bool) (Entry, error) {
	entry := Entry{WorktreeName: wt.Name, AgentName: ag.Name, AgentID: ag.ID, Status: ag.Status}

	if data, err := os.ReadFile(ag.ResultFile); err == nil {
		entry.Body = string(data)
		return entry, nil
	}

	if !useFallback || !isFallbackEligible(ag.Status) {
		entry.Body = ""
		return entry, nil
	}

	tail, err := c.Mux.CapturePane(ctx, ag.TmuxTarget, FallbackTailLines)
	if err != nil {
		entry.Body = ""
		return entry, nil
	}
	entry.Body = tail
	entry.FromFallback = true
	return entry, nil
}

// isFallbackEligible reports whether a missing result file should fall
// back to a pane capture: only for agents that ended in a terminal state
// other than completed, where no result file is ever expected.
func isFallbackEligible(s manifest.AgentStatus) bool {
	switch s {
	case manifest.AgentFailed, manifest.AgentKilled, manifest.AgentLost:
		return true
	default:
		return false
	}
}

// Render concatenates entries with clear delimiters, in the order given.
func Render(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		source := "result"
		if e.FromFallback {
			source = "pane tail (no result file)"
		}
		fmt.Fprintf(&b, "=== %s / %s [%s, %s] ===\n", e.WorktreeName, e.AgentName, e.Status, source)
		if e.Body == "" {
			b.WriteString("(no output)\n")
			continue
		}
		b.WriteString(e.Body)
		if !strings.HasSuffix(e.Body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteTo writes the rendered report to path, or to os.Stdout when path is
// empty.
func WriteTo(path string, entries []Entry) error {
	rendered := Render(entries)
	if path == "" {
		_, err := os.Stdout.WriteString(rendered)
		return err
	}
	return os.WriteFile(path, []byte(rendered), 0o644)
}
