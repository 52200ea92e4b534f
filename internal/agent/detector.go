// Package agent implements the agent lifecycle state machine and the
// five-signal status detector described in spec §4.6.
package agent

import (
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/tmux"
)

// DetectInput is the full set of observations the status detector
// consults. It is a pure function of (manifest, pane list, result-file
// existence) with no hidden dependence on time (spec §8).
type DetectInput struct {
	ResultFileExists bool
	PaneFound        bool
	PaneDead         bool
	DeadStatus       int
	CurrentCommand   string
	Interactive      bool
	// PriorKilled is true when the manifest already records this agent as
	// killed — a prior kill always wins over a dead-pane observation
	// (spec §4.6 step 3).
	PriorKilled bool
}

// Outcome is the result of running the detector once.
type Outcome struct {
	Status   manifest.AgentStatus
	ExitCode *int
}

// Detect runs the signal stack in priority order, first match wins:
//  1. result file present -> completed
//  2. pane gone -> lost
//  3. pane dead -> failed (exit = dead status), unless a prior kill is recorded
//  4. current command is a shell and the agent is interactive -> failed
//     (no result file, since step 1 already returned otherwise)
//  5. otherwise -> running
func Detect(in DetectInput) Outcome {
	if in.ResultFileExists {
		return Outcome{Status: manifest.AgentCompleted}
	}
	if !in.PaneFound {
		return Outcome{Status: manifest.AgentLost}
	}
	if in.PaneDead {
		if in.PriorKilled {
			return Outcome{Status: manifest.AgentKilled}
		}
		code := in.DeadStatus
		return Outcome{Status: manifest.AgentFailed, ExitCode: &code}
	}
	if in.Interactive && tmux.IsShellCommand(in.CurrentCommand) {
		return Outcome{Status: manifest.AgentFailed}
	}
	return Outcome{Status: manifest.AgentRunning}
}
