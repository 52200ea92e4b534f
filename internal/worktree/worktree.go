// Package worktree creates, provisions, and tears down the isolated git
// checkouts that agents run inside (spec §4.4). Env-file provisioning is
// generalized from the teacher's internal/rig overlay-copy helper (a
// fixed .runtime/overlay/ directory copied non-recursively, best-effort
// per file) into a config-driven list of env files copied in parallel.
package worktree

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
)

// Spec describes a worktree to create.
type Spec struct {
	Path       string
	Branch     string
	BaseBranch string
}

// ProvisionOptions controls post-create environment provisioning.
type ProvisionOptions struct {
	// ProjectRoot is the repository root env files are copied from.
	ProjectRoot string
	// EnvFiles are project-root-relative paths to copy into the new
	// worktree, best-effort on a per-file basis.
	EnvFiles []string
	// SymlinkNodeModules, if true, symlinks <ProjectRoot>/node_modules
	// into the worktree.
	SymlinkNodeModules bool
}

// Manager creates and tears down worktrees under a project.
type Manager struct {
	git *gitutil.Git
}

// NewManager returns a worktree Manager rooted at projectRoot.
func NewManager(projectRoot string) *Manager {
	return &Manager{git: gitutil.NewGit(projectRoot)}
}

// Create adds a new git worktree and provisions its environment. Fails
// with INVALID_ARGS if a worktree already exists at the target path.
func (m *Manager) Create(ctx context.Context, s Spec, opts ProvisionOptions) error {
	if _, err := os.Stat(s.Path); err == nil {
		return apperr.New(apperr.CodeInvalidArgs, fmt.Sprintf("worktree path already exists: %s", s.Path), nil)
	}

	if err := m.git.AddWorktree(ctx, s.Path, s.Branch, s.BaseBranch); err != nil {
		return fmt.Errorf("creating worktree: %w", err)
	}

	if err := m.provision(ctx, s.Path, opts); err != nil {
		return fmt.Errorf("provisioning worktree: %w", err)
	}
	return nil
}

// provision copies configured env files in parallel (best-effort per file)
// and symlinks node_modules when configured.
func (m *Manager) provision(ctx context.Context, worktreePath string, opts ProvisionOptions) error {
	g, _ := errgroup.WithContext(ctx)
	for _, rel := range opts.EnvFiles {
		rel := rel
		g.Go(func() error {
			src := filepath.Join(opts.ProjectRoot, rel)
			dst := filepath.Join(worktreePath, rel)
			if err := copyFile(src, dst); err != nil && !os.IsNotExist(err) {
				// Best-effort: a copy failure for one file doesn't abort
				// provisioning of the others (spec §4.4).
				return nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if opts.SymlinkNodeModules {
		src := filepath.Join(opts.ProjectRoot, "node_modules")
		dst := filepath.Join(worktreePath, "node_modules")
		if _, err := os.Stat(src); err == nil {
			_ = os.Symlink(src, dst) // best-effort
		}
	}
	return nil
}

// Teardown removes the node_modules symlink if present, removes the git
// worktree, and deletes its branch. Individual steps are best-effort; the
// first fatal error is returned after all steps are attempted.
func (m *Manager) Teardown(ctx context.Context, worktreePath, branch string) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	nodeModules := filepath.Join(worktreePath, "node_modules")
	if info, err := os.Lstat(nodeModules); err == nil && info.Mode()&os.ModeSymlink != 0 {
		_ = os.Remove(nodeModules)
	}

	record(m.git.RemoveWorktree(ctx, worktreePath))
	record(m.git.DeleteBranch(ctx, branch))
	return firstErr
}

// DiffStat returns `git diff --stat` of worktreePath against base.
func (m *Manager) DiffStat(ctx context.Context, worktreePath, base string) (string, error) {
	return gitutil.NewGit(worktreePath).DiffStat(ctx, base)
}

// DiffNameOnly returns `git diff --name-only` of worktreePath against base.
func (m *Manager) DiffNameOnly(ctx context.Context, worktreePath, base string) ([]string, error) {
	return gitutil.NewGit(worktreePath).DiffNameOnly(ctx, base)
}

// copyFile copies src to dst, preserving the source file's permissions,
// creating parent directories as needed.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating dest dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating dest file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying contents: %w", err)
	}
	return out.Close()
}
