package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/config"
	"github.com/xcawolfe-amzn/ppg/internal/ids"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/tmux"
)

func newTestManager(t *testing.T) (*Manager, *tmux.Fake, ids.Layout) {
	t.Helper()
	root := t.TempDir()
	layout := ids.NewLayout(root)
	store := manifest.NewStore(root)
	fake := tmux.NewFake()
	cfg := &config.Config{
		SessionName: "testsess",
		Agents: []config.AgentType{
			{Name: "codex", Command: "codex", PromptFlag: "--prompt-file"},
			{Name: "claude", Command: "claude", Interactive: true},
		},
	}

	m := NewManager(store, fake, layout, cfg)
	m.KillGraceWindow = 50 * time.Millisecond
	m.KillPollEvery = 5 * time.Millisecond
	return m, fake, layout
}

func seedWorktree(t *testing.T, m *Manager, id, name string) *manifest.Worktree {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(path, 0o755))

	wt := &manifest.Worktree{
		ID:        id,
		Name:      name,
		Path:      path,
		Branch:    "ppg/" + name,
		Status:    manifest.WorktreeActive,
		Agents:    map[string]*manifest.Agent{},
		CreatedAt: time.Now().UTC(),
	}
	_, err := m.Store.Update(true, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		mf.Worktrees[id] = wt
		return mf, nil
	})
	require.NoError(t, err)
	return wt
}

func TestSpawnFirstAgentCreatesWindow(t *testing.T) {
	m, fake, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")

	ag, err := m.Spawn(context.Background(), SpawnParams{
		WorktreeID: "wt-1",
		Name:       "build",
		AgentType:  "codex",
		Prompt:     "do the {{TASK_NAME}} thing",
	})
	require.NoError(t, err)
	require.Equal(t, manifest.AgentRunning, ag.Status)
	require.Equal(t, "%1", ag.TmuxTarget)

	sent := fake.Sent[ag.TmuxTarget]
	require.Len(t, sent, 1)
	require.True(t, strings.HasPrefix(sent[0], "codex --prompt-file "))
	require.Contains(t, sent[0], ag.ID+".md")

	cur, err := m.Store.Read()
	require.NoError(t, err)
	require.Equal(t, "testsess:0", cur.Worktrees["wt-1"].TmuxWindow)

	promptBytes, err := os.ReadFile(m.Layout.PromptPath(ag.ID))
	require.NoError(t, err)
	require.Equal(t, "do the build thing", string(promptBytes))
}

func TestSpawnSecondAgentSplitsPane(t *testing.T) {
	m, _, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")

	first, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)
	second, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "b", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	require.Equal(t, "%1", first.TmuxTarget)
	require.True(t, strings.HasPrefix(second.TmuxTarget, "%"))
	require.NotEqual(t, first.TmuxTarget, second.TmuxTarget)
}

func TestSpawnInteractiveSendsPromptAfterLaunch(t *testing.T) {
	m, fake, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")

	ag, err := m.Spawn(context.Background(), SpawnParams{
		WorktreeID: "wt-1",
		Name:       "chat",
		AgentType:  "claude",
		Prompt:     "hello there",
	})
	require.NoError(t, err)

	sent := fake.Sent[ag.TmuxTarget]
	require.Len(t, sent, 2)
	require.Equal(t, "claude", sent[0])
	require.Equal(t, "hello there", sent[1])
}

func TestSpawnUnknownAgentType(t *testing.T) {
	m, _, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")

	_, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "x", AgentType: "nope", Prompt: "p"})
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.CodeInvalidArgs))
}

func TestRestartClearsCompletionFieldsAndResetsPane(t *testing.T) {
	m, fake, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	now := time.Now().UTC()
	exit := 1
	_, err = m.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		a := mf.Worktrees["wt-1"].Agents[ag.ID]
		a.Status = manifest.AgentFailed
		a.CompletedAt = &now
		a.ExitCode = &exit
		return mf, nil
	})
	require.NoError(t, err)

	restarted, err := m.Restart(context.Background(), ag.ID)
	require.NoError(t, err)
	require.Equal(t, manifest.AgentSpawning, restarted.Status)
	require.Nil(t, restarted.CompletedAt)
	require.Nil(t, restarted.ExitCode)
	require.True(t, strings.HasPrefix(restarted.TmuxTarget, "%"))
	require.NotEmpty(t, fake.Sent[restarted.TmuxTarget])
}

func TestRestartOnCleanedWorktreeFails(t *testing.T) {
	m, _, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	_, err = m.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		mf.Worktrees["wt-1"].Status = manifest.WorktreeCleaned
		return mf, nil
	})
	require.NoError(t, err)

	_, err = m.Restart(context.Background(), ag.ID)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.CodeWorktreeNotFound))
}

func TestKillShortCircuitsWhenPaneDiesQuickly(t *testing.T) {
	m, fake, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	fake.SetDead(ag.TmuxTarget, 130)

	require.NoError(t, m.Kill(context.Background(), ag.ID))
	require.False(t, fake.Killed[ag.TmuxTarget], "should not force-kill a pane that already died")
	require.Equal(t, 1, fake.CtrlCSent[ag.TmuxTarget])

	cur, err := m.Store.Read()
	require.NoError(t, err)
	require.Equal(t, manifest.AgentKilled, cur.Worktrees["wt-1"].Agents[ag.ID].Status)
}

func TestKillForceKillsAfterGraceWindow(t *testing.T) {
	m, fake, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	require.NoError(t, m.Kill(context.Background(), ag.ID))
	require.True(t, fake.Killed[ag.TmuxTarget])

	cur, err := m.Store.Read()
	require.NoError(t, err)
	require.Equal(t, manifest.AgentKilled, cur.Worktrees["wt-1"].Agents[ag.ID].Status)
}

func TestKillAllIsParallelAndForceKillsSurvivors(t *testing.T) {
	m, fake, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	seedWorktree(t, m, "wt-2", "beta")

	a1, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)
	a2, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-2", Name: "b", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	fake.SetDead(a1.TmuxTarget, 0)

	require.NoError(t, m.KillAll(context.Background(), []string{a1.ID, a2.ID}))

	require.False(t, fake.Killed[a1.TmuxTarget])
	require.True(t, fake.Killed[a2.TmuxTarget])

	cur, err := m.Store.Read()
	require.NoError(t, err)
	_, ag1, _ := cur.FindAgent(a1.ID)
	_, ag2, _ := cur.FindAgent(a2.ID)
	require.Equal(t, manifest.AgentKilled, ag1.Status)
	require.Equal(t, manifest.AgentKilled, ag2.Status)
}

func TestRefreshAllMarksCompletedFromResultFile(t *testing.T) {
	m, _, layout := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(layout.ResultDir(), 0o755))
	require.NoError(t, os.WriteFile(ag.ResultFile, []byte("done"), 0o644))

	_, err = m.RefreshAll(context.Background())
	require.NoError(t, err)

	cur, err := m.Store.Read()
	require.NoError(t, err)
	require.Equal(t, manifest.AgentCompleted, cur.Worktrees["wt-1"].Agents[ag.ID].Status)
}

func TestRefreshAllMarksWorktreeCleanedWhenDirGone(t *testing.T) {
	m, _, _ := newTestManager(t)
	wt := seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(wt.Path))

	_, err = m.RefreshAll(context.Background())
	require.NoError(t, err)

	cur, err := m.Store.Read()
	require.NoError(t, err)
	require.Equal(t, manifest.WorktreeCleaned, cur.Worktrees["wt-1"].Status)
	require.Equal(t, manifest.AgentLost, cur.Worktrees["wt-1"].Agents[ag.ID].Status)
}

func TestRefreshAllLeavesRunningAgentAlone(t *testing.T) {
	m, _, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	_, err = m.RefreshAll(context.Background())
	require.NoError(t, err)

	cur, err := m.Store.Read()
	require.NoError(t, err)
	require.Equal(t, manifest.AgentRunning, cur.Worktrees["wt-1"].Agents[ag.ID].Status)
}

func TestSendDeliversLiteralText(t *testing.T) {
	m, fake, _ := newTestManager(t)
	seedWorktree(t, m, "wt-1", "alpha")
	ag, err := m.Spawn(context.Background(), SpawnParams{WorktreeID: "wt-1", Name: "a", AgentType: "codex", Prompt: "p"})
	require.NoError(t, err)

	require.NoError(t, m.Send(context.Background(), ag.ID, "continue"))
	sent := fake.Sent[ag.TmuxTarget]
	require.Equal(t, "continue", sent[len(sent)-1])
}
