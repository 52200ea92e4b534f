// Package cmd wires the orchestration engine's core packages into a thin
// cobra CLI. The CLI exists to exercise spawn/merge/result/schedule end to
// end for tests and manual use — the interesting engineering lives in the
// internal packages this package only calls into (spec §1, SPEC_FULL.md
// §6).
package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/agent"
	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/config"
	"github.com/xcawolfe-amzn/ppg/internal/ids"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/merge"
	"github.com/xcawolfe-amzn/ppg/internal/tmux"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "ppg",
	Short: "Multi-agent git-worktree + tmux orchestration engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", "", "project root (defaults to the current directory)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(killAllCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// otherwise the code mapped from the apperr taxonomy (spec §6, §7).
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(err)
	}
	return 0
}

// exitCodeFor maps an apperr.Code to a stable nonzero process exit status.
// Codes are grouped by the kind of precondition they guard so a scripted
// caller can branch on ranges without enumerating every code.
func exitCodeFor(err error) int {
	code, ok := apperr.CodeOf(err)
	if !ok {
		return 1
	}
	switch code {
	case apperr.CodeTmuxNotFound, apperr.CodeGhNotFound:
		return 10
	case apperr.CodeNotGitRepo, apperr.CodeNotInitialized:
		return 11
	case apperr.CodeManifestLock:
		return 12
	case apperr.CodeWorktreeNotFound, apperr.CodeAgentNotFound, apperr.CodePaneNotFound,
		apperr.CodeNoTmuxWindow, apperr.CodeTargetNotFound, apperr.CodeNoSessionID:
		return 13
	case apperr.CodeInvalidArgs:
		return 14
	case apperr.CodeAgentsRunning, apperr.CodeUnmergedWork:
		return 15
	case apperr.CodeMergeFailed:
		return 16
	case apperr.CodeWaitTimeout:
		return 17
	case apperr.CodeAgentsFailed:
		return 18
	case apperr.CodeDownloadFailed, apperr.CodeInstallFailed:
		return 19
	default:
		return 1
	}
}

// env bundles the core packages wired together for one project root,
// built fresh per command invocation.
type env struct {
	Layout   ids.Layout
	Cfg      *config.Config
	Store    *manifest.Store
	Mux      tmux.Multiplexer
	Worktree *worktree.Manager
	Agents   *agent.Manager
	Merge    *merge.Orchestrator
}

func newEnv() (*env, error) {
	root := projectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		root = wd
	}

	mux := tmux.New()
	if !mux.IsAvailable() {
		return nil, apperr.New(apperr.CodeTmuxNotFound, "tmux not found on PATH", nil)
	}

	layout := ids.NewLayout(root)
	cfg, err := config.Load(layout.ConfigPath(), root)
	if err != nil {
		return nil, err
	}

	store := manifest.NewStore(root)
	wtMgr := worktree.NewManager(root)
	agentMgr := agent.NewManager(store, mux, layout, cfg)
	mergeOrch := merge.NewOrchestrator(store, agentMgr, mux, wtMgr, root)

	return &env{
		Layout:   layout,
		Cfg:      cfg,
		Store:    store,
		Mux:      mux,
		Worktree: wtMgr,
		Agents:   agentMgr,
		Merge:    mergeOrch,
	}, nil
}

// ghAvailable reports whether the gh CLI is on PATH, used by doctor and by
// any future PR-based merge path (CodeGhNotFound).
func ghAvailable() bool {
	_, err := exec.LookPath("gh")
	return err == nil
}
