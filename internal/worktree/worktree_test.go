package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestCreateProvisionsEnvFiles(t *testing.T) {
	root := initTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("SECRET=1\n"), 0o600))

	m := NewManager(root)
	wtPath := filepath.Join(t.TempDir(), "wt1")

	err := m.Create(context.Background(), Spec{Path: wtPath, Branch: "ppg/t1", BaseBranch: "main"}, ProvisionOptions{
		ProjectRoot: root,
		EnvFiles:    []string{".env", ".env.missing"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(wtPath, ".env"))
	require.NoError(t, err)
	require.Equal(t, "SECRET=1\n", string(data))

	_, err = os.Stat(filepath.Join(wtPath, ".env.missing"))
	require.True(t, os.IsNotExist(err))
}

func TestCreateFailsIfPathExists(t *testing.T) {
	root := initTestRepo(t)
	m := NewManager(root)
	wtPath := filepath.Join(t.TempDir(), "wt1")
	require.NoError(t, os.MkdirAll(wtPath, 0o755))

	err := m.Create(context.Background(), Spec{Path: wtPath, Branch: "ppg/t1", BaseBranch: "main"}, ProvisionOptions{})
	require.Error(t, err)
}

func TestSymlinkNodeModules(t *testing.T) {
	root := initTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))

	m := NewManager(root)
	wtPath := filepath.Join(t.TempDir(), "wt1")
	err := m.Create(context.Background(), Spec{Path: wtPath, Branch: "ppg/t2", BaseBranch: "main"}, ProvisionOptions{
		ProjectRoot:        root,
		SymlinkNodeModules: true,
	})
	require.NoError(t, err)

	info, err := os.Lstat(filepath.Join(wtPath, "node_modules"))
	require.NoError(t, err)
	require.True(t, info.Mode()&os.ModeSymlink != 0)
}

func TestTeardownRemovesWorktreeAndBranch(t *testing.T) {
	root := initTestRepo(t)
	m := NewManager(root)
	wtPath := filepath.Join(t.TempDir(), "wt1")
	require.NoError(t, m.Create(context.Background(), Spec{Path: wtPath, Branch: "ppg/t3", BaseBranch: "main"}, ProvisionOptions{}))

	require.NoError(t, m.Teardown(context.Background(), wtPath, "ppg/t3"))

	_, err := os.Stat(wtPath)
	require.True(t, os.IsNotExist(err))
}
