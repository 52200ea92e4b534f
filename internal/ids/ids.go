// Package ids mints the short, lowercase-alphanumeric identifiers used for
// worktrees and agents, and lays out the fixed on-disk directory structure
// that the rest of the orchestration engine reads and writes under.
package ids

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
)

// alphabet excludes visually ambiguous characters (0, 1, o, l, i).
const alphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const (
	// WorktreePrefix is prepended to minted worktree IDs.
	WorktreePrefix = "wt-"
	// AgentPrefix is prepended to minted agent IDs.
	AgentPrefix = "ag-"

	worktreeIDLen = 6
	agentIDLen    = 8
)

// randomSuffix returns n random characters drawn from alphabet.
func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// NewWorktreeID mints a candidate worktree ID. Callers are responsible for
// retrying on collision against the in-memory manifest.
func NewWorktreeID() (string, error) {
	s, err := randomSuffix(worktreeIDLen)
	if err != nil {
		return "", err
	}
	return WorktreePrefix + s, nil
}

// NewAgentID mints a candidate agent ID. Callers are responsible for
// retrying on collision against the in-memory manifest.
func NewAgentID() (string, error) {
	s, err := randomSuffix(agentIDLen)
	if err != nil {
		return "", err
	}
	return AgentPrefix + s, nil
}

// MintUnique generates IDs via gen until one is not present in taken,
// retrying up to maxAttempts times.
func MintUnique(gen func() (string, error), taken func(string) bool, maxAttempts int) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		id, err := gen()
		if err != nil {
			return "", err
		}
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not mint a unique id after %d attempts", maxAttempts)
}

// Layout describes the fixed filesystem layout rooted at a project directory.
type Layout struct {
	ProjectRoot string
}

// NewLayout returns a Layout rooted at projectRoot.
func NewLayout(projectRoot string) Layout {
	return Layout{ProjectRoot: projectRoot}
}

// StateDir is the conventional .ppg/ directory holding all durable state.
func (l Layout) StateDir() string { return filepath.Join(l.ProjectRoot, ".ppg") }

// ManifestPath is the path to the manifest document.
func (l Layout) ManifestPath() string { return filepath.Join(l.StateDir(), "manifest.json") }

// ManifestLockPath is the sidecar lock file for the manifest.
func (l Layout) ManifestLockPath() string { return l.ManifestPath() + ".lock" }

// ConfigPath is the path to the user configuration document.
func (l Layout) ConfigPath() string { return filepath.Join(l.StateDir(), "config.yaml") }

// SchedulesPath is the path to the schedule entries document.
func (l Layout) SchedulesPath() string { return filepath.Join(l.StateDir(), "schedules.yaml") }

// TemplateDir holds prompt templates.
func (l Layout) TemplateDir() string { return filepath.Join(l.StateDir(), "templates") }

// PromptDir holds rendered per-agent prompt files.
func (l Layout) PromptDir() string { return filepath.Join(l.StateDir(), "prompts") }

// PromptPath returns the rendered-prompt path for an agent.
func (l Layout) PromptPath(agentID string) string {
	return filepath.Join(l.PromptDir(), agentID+".md")
}

// ResultDir holds agent-written result artifacts.
func (l Layout) ResultDir() string { return filepath.Join(l.StateDir(), "results") }

// ResultPath returns the result-file path for an agent.
func (l Layout) ResultPath(agentID string) string {
	return filepath.Join(l.ResultDir(), agentID+".md")
}

// LogDir holds capture artifacts.
func (l Layout) LogDir() string { return filepath.Join(l.StateDir(), "logs") }

// AuthDir holds auth material.
func (l Layout) AuthDir() string { return filepath.Join(l.StateDir(), "auth") }

// WorktreesDir is the sibling directory containing git worktree checkouts.
func (l Layout) WorktreesDir() string { return filepath.Join(l.ProjectRoot, ".worktrees") }

// WorktreePath returns the checkout path for a worktree ID.
func (l Layout) WorktreePath(worktreeID string) string {
	return filepath.Join(l.WorktreesDir(), worktreeID)
}
