package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <agent-id> <text>",
	Short: "Send literal text to a running agent's pane",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.Agents.Send(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sent")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <agent-id>",
	Short: "Re-spawn a terminal agent in a fresh pane, reusing its prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		ag, err := e.Agents.Restart(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restarted agent %s on %s\n", ag.ID, ag.TmuxTarget)
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <agent-id>",
	Short: "Stop an agent: ctrl-c, then force-kill its pane after a grace window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.Agents.Kill(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "killed")
		return nil
	},
}

var killAllCmd = &cobra.Command{
	Use:   "kill-all <agent-id>...",
	Short: "Stop several agents in parallel",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.Agents.KillAll(cmd.Context(), args); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "killed", len(args), "agent(s)")
		return nil
	},
}
