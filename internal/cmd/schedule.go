package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the cron-driven schedule daemon for this project",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured schedule entries with their next-run time",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		d := scheduler.NewDaemon(e.Layout.ProjectRoot, e.Store, e.Agents, e.Cfg)
		entries, err := d.List()
		if err != nil {
			return err
		}
		for _, en := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  next=%s\n", en.Name, en.Kind, en.Cron, en.NextRun.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the schedule daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		st := scheduler.Probe(e.Layout.ProjectRoot)
		if st.Running {
			fmt.Fprintf(cmd.OutOrStdout(), "running (pid %d), log: %s\n", st.Pid, st.LogPath)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "not running, log: %s\n", st.LogPath)
		}
		return nil
	},
}

var scheduleStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running schedule daemon for this project",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		st := scheduler.Probe(e.Layout.ProjectRoot)
		if !st.Running {
			fmt.Fprintln(cmd.OutOrStdout(), "not running")
			return nil
		}
		proc, err := os.FindProcess(st.Pid)
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent to pid", st.Pid)
		return nil
	},
}

// scheduleStartCmd runs the daemon in the foreground; callers that want it
// backgrounded are expected to invoke it under a process supervisor or
// with a trailing shell `&`, matching the pidfile-based single-instance
// guard the daemon itself enforces.
var scheduleStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the schedule daemon in the foreground until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		d := scheduler.NewDaemon(e.Layout.ProjectRoot, e.Store, e.Agents, e.Cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintln(cmd.OutOrStdout(), "schedule daemon starting, state dir:", scheduler.GlobalDir())
		return d.Run(ctx)
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleListCmd, scheduleStatusCmd, scheduleStopCmd, scheduleStartCmd)
}
