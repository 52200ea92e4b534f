// Package merge orchestrates folding a worktree's branch back into the
// project root and tearing the worktree down, in the staged sequence
// described by the merge orchestrator component: merging -> merged ->
// cleaned, each transition committed under its own manifest update so a
// crash mid-merge leaves the manifest in a resumable state.
package merge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xcawolfe-amzn/ppg/internal/agent"
	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/tmux"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

// Strategy selects the git merge mode.
type Strategy string

const (
	Squash Strategy = "squash"
	NoFF   Strategy = "no-ff"
)

// Options controls a single merge run.
type Options struct {
	WorktreeID  string
	Strategy    Strategy
	BranchPrefix string
	// Force bypasses the AGENTS_RUNNING guard.
	Force bool
}

// Orchestrator drives the merge lifecycle for one project.
type Orchestrator struct {
	Store    *manifest.Store
	Agents   *agent.Manager
	Mux      tmux.Multiplexer
	Worktree *worktree.Manager
	Git      *gitutil.Git // rooted at the project root
}

// NewOrchestrator returns a merge Orchestrator.
func NewOrchestrator(store *manifest.Store, agents *agent.Manager, mux tmux.Multiplexer, wt *worktree.Manager, projectRoot string) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Agents:   agents,
		Mux:      mux,
		Worktree: wt,
		Git:      gitutil.NewGit(projectRoot),
	}
}

// Merge runs the full staged sequence for one worktree.
func (o *Orchestrator) Merge(ctx context.Context, opts Options) error {
	wt, err := o.beginMerging(ctx, opts)
	if err != nil {
		return err
	}

	if err := o.runGitMerge(ctx, wt, opts); err != nil {
		return err
	}

	if err := o.markMerged(ctx, wt.ID); err != nil {
		return err
	}

	cleanupErr := o.cleanup(ctx, wt)
	if cleanupErr != nil {
		// The worktree stays merged; the user may re-run to retry cleanup
		// (spec merge orchestrator error policy).
		return cleanupErr
	}

	return o.markCleaned(ctx, wt.ID)
}

// beginMerging refreshes agent statuses through RefreshAll (which commits
// its own manifest update) and then transitions the worktree to merging in
// a second update, refusing with AGENTS_RUNNING unless opts.Force when any
// agent is non-terminal. The two updates are not one atomic step.
func (o *Orchestrator) beginMerging(ctx context.Context, opts Options) (*manifest.Worktree, error) {
	if _, err := o.Agents.RefreshAll(ctx); err != nil {
		return nil, fmt.Errorf("refreshing agent statuses: %w", err)
	}

	var result *manifest.Worktree
	_, err := o.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		wt, ok := mf.Worktrees[opts.WorktreeID]
		if !ok {
			return nil, apperr.New(apperr.CodeWorktreeNotFound, opts.WorktreeID, nil)
		}
		if !opts.Force {
			for _, ag := range wt.Agents {
				if !ag.Status.Terminal() {
					return nil, apperr.New(apperr.CodeAgentsRunning, fmt.Sprintf("agent %s is %s", ag.ID, ag.Status), nil)
				}
			}
		}
		wt.Status = manifest.WorktreeMerging
		result = wt
		return mf, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runGitMerge shells out to git in the project root. Conflicts surface as
// MERGE_FAILED with git's output captured in Details.
func (o *Orchestrator) runGitMerge(ctx context.Context, wt *manifest.Worktree, opts Options) error {
	var err error
	switch opts.Strategy {
	case NoFF:
		msg := fmt.Sprintf("%s: merge %s (%s)", opts.BranchPrefix, wt.Name, wt.Branch)
		err = o.Git.MergeNoFF(ctx, wt.Branch, msg)
	default:
		if err = o.Git.MergeSquash(ctx, wt.Branch); err == nil {
			msg := fmt.Sprintf("%s: merge %s (%s)", opts.BranchPrefix, wt.Name, wt.Branch)
			err = o.Git.Commit(ctx, msg)
		}
	}
	if err != nil {
		return apperr.New(apperr.CodeMergeFailed, err.Error(), map[string]any{"branch": wt.Branch})
	}
	return nil
}

func (o *Orchestrator) markMerged(ctx context.Context, worktreeID string) error {
	_, err := o.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		wt, ok := mf.Worktrees[worktreeID]
		if !ok {
			return nil, apperr.New(apperr.CodeWorktreeNotFound, worktreeID, nil)
		}
		wt.Status = manifest.WorktreeMerged
		now := time.Now().UTC()
		wt.MergedAt = &now
		return mf, nil
	})
	return err
}

// cleanup runs the independent teardown steps (kill window, env teardown,
// worktree+branch removal) in parallel, aggregating the first error.
func (o *Orchestrator) cleanup(ctx context.Context, wt *manifest.Worktree) error {
	g, gctx := errgroup.WithContext(ctx)
	if wt.TmuxWindow != "" {
		g.Go(func() error {
			return o.Mux.KillWindow(gctx, wt.TmuxWindow)
		})
	}
	g.Go(func() error {
		return o.Worktree.Teardown(gctx, wt.Path, wt.Branch)
	})
	return g.Wait()
}

func (o *Orchestrator) markCleaned(ctx context.Context, worktreeID string) error {
	_, err := o.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		wt, ok := mf.Worktrees[worktreeID]
		if !ok {
			return nil, apperr.New(apperr.CodeWorktreeNotFound, worktreeID, nil)
		}
		wt.Status = manifest.WorktreeCleaned
		return mf, nil
	})
	return err
}
