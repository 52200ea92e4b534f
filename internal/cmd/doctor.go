package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/tmux"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that external dependencies (tmux, gh) are available",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ok := true

	if tmux.New().IsAvailable() {
		fmt.Fprintln(out, "[ok]   tmux found on PATH")
	} else {
		fmt.Fprintln(out, "[fail] tmux not found on PATH")
		ok = false
	}

	if ghAvailable() {
		fmt.Fprintln(out, "[ok]   gh found on PATH")
	} else {
		fmt.Fprintln(out, "[warn] gh not found on PATH (only needed for PR-based workflows)")
	}

	if !ok {
		return fmt.Errorf("one or more required dependencies are missing")
	}
	return nil
}
