package result

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/tmux"
)

func buildManifest(t *testing.T, dir string) *manifest.Manifest {
	t.Helper()
	mf := manifest.New(dir, "sess")

	write := func(agentID, body string) string {
		path := filepath.Join(dir, agentID+".md")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	mf.Worktrees["wt-b"] = &manifest.Worktree{
		ID:   "wt-b",
		Name: "beta",
		Agents: map[string]*manifest.Agent{
			"ag-2": {ID: "ag-2", Name: "zzz", Status: manifest.AgentCompleted, ResultFile: write("ag-2", "beta zzz result\n")},
			"ag-1": {ID: "ag-1", Name: "aaa", Status: manifest.AgentCompleted, ResultFile: write("ag-1", "beta aaa result\n")},
		},
	}
	mf.Worktrees["wt-a"] = &manifest.Worktree{
		ID:   "wt-a",
		Name: "alpha",
		Agents: map[string]*manifest.Agent{
			"ag-3": {ID: "ag-3", Name: "only", Status: manifest.AgentCompleted, ResultFile: write("ag-3", "alpha only result\n")},
		},
	}
	return mf
}

func TestCollectOrdersByWorktreeThenAgentName(t *testing.T) {
	dir := t.TempDir()
	mf := buildManifest(t, dir)
	c := NewCollector(tmux.NewFake())

	entries, err := c.Collect(context.Background(), mf, nil, false)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "alpha", entries[0].WorktreeName)
	require.Equal(t, "beta", entries[1].WorktreeName)
	require.Equal(t, "aaa", entries[1].AgentName)
	require.Equal(t, "beta", entries[2].WorktreeName)
	require.Equal(t, "zzz", entries[2].AgentName)
}

func TestCollectFiltersToSelectedWorktrees(t *testing.T) {
	dir := t.TempDir()
	mf := buildManifest(t, dir)
	c := NewCollector(tmux.NewFake())

	entries, err := c.Collect(context.Background(), mf, []string{"wt-b"}, false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, "beta", e.WorktreeName)
	}
}

func TestCollectFallsBackToPaneTailForFailedAgentWithoutResult(t *testing.T) {
	dir := t.TempDir()
	mf := manifest.New(dir, "sess")
	fake := tmux.NewFake()
	win, err := fake.NewWindow(context.Background(), "sess", "alpha", dir)
	require.NoError(t, err)

	mf.Worktrees["wt-a"] = &manifest.Worktree{
		ID:   "wt-a",
		Name: "alpha",
		Agents: map[string]*manifest.Agent{
			"ag-1": {ID: "ag-1", Name: "a", Status: manifest.AgentFailed, ResultFile: filepath.Join(dir, "missing.md"), TmuxTarget: win},
		},
	}

	c := NewCollector(fake)
	entries, err := c.Collect(context.Background(), mf, nil, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].FromFallback)
}

func TestCollectLeavesCompletedWithoutResultEmpty(t *testing.T) {
	dir := t.TempDir()
	mf := manifest.New(dir, "sess")
	mf.Worktrees["wt-a"] = &manifest.Worktree{
		ID:   "wt-a",
		Name: "alpha",
		Agents: map[string]*manifest.Agent{
			"ag-1": {ID: "ag-1", Name: "a", Status: manifest.AgentCompleted, ResultFile: filepath.Join(dir, "missing.md")},
		},
	}

	c := NewCollector(tmux.NewFake())
	entries, err := c.Collect(context.Background(), mf, nil, true)
	require.NoError(t, err)
	require.Empty(t, entries[0].Body)
	require.False(t, entries[0].FromFallback)
}

func TestRenderIncludesDelimitersAndStatus(t *testing.T) {
	out := Render([]Entry{
		{WorktreeName: "alpha", AgentName: "a", Status: manifest.AgentCompleted, Body: "hello\n"},
		{WorktreeName: "beta", AgentName: "b", Status: manifest.AgentFailed, Body: "", FromFallback: false},
	})
	require.True(t, strings.Contains(out, "=== alpha / a [completed, result] ==="))
	require.True(t, strings.Contains(out, "hello"))
	require.True(t, strings.Contains(out, "(no output)"))
}
