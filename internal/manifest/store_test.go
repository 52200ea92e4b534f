package manifest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateCreatesManifestWhenMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	m, err := s.Update(true, func(m *Manifest) (*Manifest, error) {
		m.Worktrees["wt-abc123"] = &Worktree{
			ID:     "wt-abc123",
			Name:   "t1",
			Status: WorktreeActive,
			Agents: make(map[string]*Agent),
		}
		return m, nil
	})
	require.NoError(t, err)
	require.Len(t, m.Worktrees, 1)

	_, err = os.Stat(filepath.Join(dir, ".ppg", "manifest.json"))
	require.NoError(t, err)
}

func TestReadWithoutInitReturnsNotInitialized(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.Read()
	require.Error(t, err)
}

func TestRoundTripPreservesFields(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.Update(true, func(m *Manifest) (*Manifest, error) {
		wt := &Worktree{
			ID:         "wt-abc123",
			Name:       "t1",
			Path:       filepath.Join(dir, ".worktrees", "wt-abc123"),
			Branch:     "ppg/t1",
			BaseBranch: "main",
			Status:     WorktreeActive,
			Agents:     make(map[string]*Agent),
		}
		code := 0
		wt.Agents["ag-deadbeef"] = &Agent{
			ID:         "ag-deadbeef",
			Name:       "a1",
			AgentType:  "claude",
			Status:     AgentCompleted,
			TmuxTarget: "%3",
			Prompt:     "do the thing",
			ExitCode:   &code,
		}
		m.Worktrees[wt.ID] = wt
		return m, nil
	})
	require.NoError(t, err)

	reloaded, err := s.Read()
	require.NoError(t, err)

	wt, ok := reloaded.Worktrees["wt-abc123"]
	require.True(t, ok)
	require.Equal(t, "t1", wt.Name)
	require.Equal(t, "ppg/t1", wt.Branch)

	ag, ok := wt.Agents["ag-deadbeef"]
	require.True(t, ok)
	require.Equal(t, AgentCompleted, ag.Status)
	require.NotNil(t, ag.ExitCode)
	require.Equal(t, 0, *ag.ExitCode)
}

func TestLegacyStatusAliasesNormalizeOnRead(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, ".ppg")
	require.NoError(t, os.MkdirAll(stateDir, 0o755))

	raw := `{
		"version": 1,
		"projectRoot": "` + dir + `",
		"sessionName": "proj",
		"worktrees": {
			"wt-abc123": {
				"id": "wt-abc123",
				"name": "t1",
				"status": "active",
				"agents": {
					"ag-deadbeef": {"id": "ag-deadbeef", "name": "a1", "status": "idle"},
					"ag-cafef00d": {"id": "ag-cafef00d", "name": "a2", "status": "exited"},
					"ag-0ddba11f": {"id": "ag-0ddba11f", "name": "a3", "status": "gone"}
				}
			}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "manifest.json"), []byte(raw), 0o644))

	s := NewStore(dir)
	m, err := s.Read()
	require.NoError(t, err)

	wt := m.Worktrees["wt-abc123"]
	require.Equal(t, AgentRunning, wt.Agents["ag-deadbeef"].Status)
	require.Equal(t, AgentCompleted, wt.Agents["ag-cafef00d"].Status)
	require.Equal(t, AgentLost, wt.Agents["ag-0ddba11f"].Status)
}

// TestConcurrentUpdatesAreLinearized exercises the property that concurrent
// Update callers never lose a write: N goroutines each add one worktree: the
// final manifest must contain all N.
func TestConcurrentUpdatesAreLinearized(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := filepath.Base(filepath.Join(dir)) + "-worktree"
			_, err := s.Update(true, func(m *Manifest) (*Manifest, error) {
				name := id + string(rune('a'+i))
				m.Worktrees[name] = &Worktree{ID: name, Name: name, Status: WorktreeActive, Agents: map[string]*Agent{}}
				return m, nil
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	final, err := s.Read()
	require.NoError(t, err)
	require.Len(t, final.Worktrees, n)
}
