package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Refresh and print every worktree and agent's current status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	mf, err := e.Agents.RefreshAll(cmd.Context())
	if err != nil {
		return err
	}

	var worktrees []*manifest.Worktree
	for _, wt := range mf.Worktrees {
		worktrees = append(worktrees, wt)
	}
	sort.Slice(worktrees, func(i, j int) bool { return worktrees[i].Name < worktrees[j].Name })

	out := cmd.OutOrStdout()
	for _, wt := range worktrees {
		fmt.Fprintf(out, "%s  %s  [%s]\n", wt.ID, wt.Name, wt.Status)
		var agents []*manifest.Agent
		for _, ag := range wt.Agents {
			agents = append(agents, ag)
		}
		sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
		for _, ag := range agents {
			fmt.Fprintf(out, "  %s  %s  [%s]\n", ag.ID, ag.Name, ag.Status)
		}
	}
	return nil
}
