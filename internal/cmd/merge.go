package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/merge"
)

var (
	mergeStrategy string
	mergeForce    bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <worktree-id>",
	Short: "Fold a worktree's branch back into the project root and tear it down",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringVar(&mergeStrategy, "strategy", "squash", "merge strategy: squash or no-ff")
	mergeCmd.Flags().BoolVar(&mergeForce, "force", false, "proceed even if agents are still running")
}

func runMerge(cmd *cobra.Command, args []string) error {
	strategy := merge.Strategy(mergeStrategy)
	if strategy != merge.Squash && strategy != merge.NoFF {
		return apperr.New(apperr.CodeInvalidArgs, "strategy must be squash or no-ff, got: "+mergeStrategy, nil)
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	if err := e.Merge.Merge(cmd.Context(), merge.Options{
		WorktreeID:   args[0],
		Strategy:     strategy,
		BranchPrefix: e.Cfg.BranchPrefix,
		Force:        mergeForce,
	}); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "merged and cleaned", args[0])
	return nil
}
