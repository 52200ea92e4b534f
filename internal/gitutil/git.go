// Package gitutil wraps the git subprocess operations needed to create,
// diff, and tear down worktrees. API surface grounded on the teacher's git
// package test suite (NewGit(dir), IsRepo, CurrentBranch, worktree add/
// remove, diff) — the teacher's implementation file itself was not
// available in the retrieval pack, so this is written to satisfy that
// observed contract rather than adapted from teacher source directly.
package gitutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/xcawolfe-amzn/ppg/internal/procrunner"
)

// Git wraps git operations rooted at a repository directory.
type Git struct {
	dir    string
	runner *procrunner.Runner
}

// NewGit returns a Git wrapper rooted at dir.
func NewGit(dir string) *Git {
	return &Git{dir: dir, runner: procrunner.New()}
}

func (g *Git) run(ctx context.Context, args ...string) (procrunner.Result, error) {
	return g.runner.RunIn(ctx, g.dir, "git", args...)
}

// IsRepo reports whether dir is inside a git working tree.
func (g *Git) IsRepo() bool {
	res, err := g.run(context.Background(), "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return strings.TrimSpace(res.Stdout) == "true"
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	res, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// AddWorktree runs `git worktree add <path> -b <branch> [base]`.
func (g *Git) AddWorktree(ctx context.Context, path, branch, base string) error {
	args := []string{"worktree", "add", path, "-b", branch}
	if base != "" {
		args = append(args, base)
	}
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("git worktree add: %w", err)
	}
	return nil
}

// RemoveWorktree runs `git worktree remove --force <path>`.
func (g *Git) RemoveWorktree(ctx context.Context, path string) error {
	if _, err := g.run(ctx, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("git worktree remove: %w", err)
	}
	return nil
}

// DeleteBranch runs `git branch -D <branch>`.
func (g *Git) DeleteBranch(ctx context.Context, branch string) error {
	if _, err := g.run(ctx, "branch", "-D", branch); err != nil {
		return fmt.Errorf("git branch -D: %w", err)
	}
	return nil
}

// DiffStat returns `git diff --stat <base>`.
func (g *Git) DiffStat(ctx context.Context, base string) (string, error) {
	res, err := g.run(ctx, "diff", "--stat", base)
	if err != nil {
		return "", fmt.Errorf("git diff --stat: %w", err)
	}
	return res.Stdout, nil
}

// DiffNameOnly returns `git diff --name-only <base>`.
func (g *Git) DiffNameOnly(ctx context.Context, base string) ([]string, error) {
	res, err := g.run(ctx, "diff", "--name-only", base)
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only: %w", err)
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// MergeSquash runs `git merge --squash <branch>`.
func (g *Git) MergeSquash(ctx context.Context, branch string) error {
	if _, err := g.run(ctx, "merge", "--squash", branch); err != nil {
		return fmt.Errorf("git merge --squash: %w", err)
	}
	return nil
}

// MergeNoFF runs `git merge --no-ff <branch>`.
func (g *Git) MergeNoFF(ctx context.Context, branch, message string) error {
	if _, err := g.run(ctx, "merge", "--no-ff", "-m", message, branch); err != nil {
		return fmt.Errorf("git merge --no-ff: %w", err)
	}
	return nil
}

// Commit runs `git commit -m <message>`.
func (g *Git) Commit(ctx context.Context, message string) error {
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (g *Git) HasUncommittedChanges(ctx context.Context) (bool, error) {
	res, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}
