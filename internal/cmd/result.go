package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/result"
)

var (
	resultFallback bool
	resultOut      string
)

var resultCmd = &cobra.Command{
	Use:   "result [worktree-id...]",
	Short: "Collect and print agent result artifacts, optionally scoped to given worktrees",
	RunE:  runResult,
}

func init() {
	resultCmd.Flags().BoolVar(&resultFallback, "fallback", false, "fall back to a pane-tail capture for terminal-failed agents without a result file")
	resultCmd.Flags().StringVar(&resultOut, "out", "", "write the report to this path instead of stdout")
}

func runResult(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	mf, err := e.Store.Read()
	if err != nil {
		return err
	}

	collector := result.NewCollector(e.Mux)
	entries, err := collector.Collect(cmd.Context(), mf, args, resultFallback)
	if err != nil {
		return err
	}

	return result.WriteTo(resultOut, entries)
}
