package gitutil

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

func TestIsRepo(t *testing.T) {
	dir := t.TempDir()
	g := NewGit(dir)
	require.False(t, g.IsRepo())

	dir = initTestRepo(t)
	g = NewGit(dir)
	require.True(t, g.IsRepo())
}

func TestCurrentBranch(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)
	branch, err := g.CurrentBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestAddWorktreeAndRemove(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt1")
	require.NoError(t, g.AddWorktree(ctx, wtPath, "ppg/t1", "main"))

	wtGit := NewGit(wtPath)
	require.True(t, wtGit.IsRepo())

	branch, err := wtGit.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "ppg/t1", branch)

	require.NoError(t, g.RemoveWorktree(ctx, wtPath))
	require.NoError(t, g.DeleteBranch(ctx, "ppg/t1"))

	_, err = os.Stat(wtPath)
	require.True(t, os.IsNotExist(err))
}

func TestDiffNameOnly(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt1")
	require.NoError(t, g.AddWorktree(ctx, wtPath, "ppg/t1", "main"))

	require.NoError(t, os.WriteFile(filepath.Join(wtPath, "new.txt"), []byte("hi\n"), 0o644))
	wtGit := NewGit(wtPath)
	_, err := wtGit.run(ctx, "add", ".")
	require.NoError(t, err)
	require.NoError(t, wtGit.Commit(ctx, "add file"))

	names, err := wtGit.DiffNameOnly(ctx, "main")
	require.NoError(t, err)
	require.Contains(t, names, "new.txt")
}
