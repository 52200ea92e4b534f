// Package manifest defines the project manifest document — the single
// source of durable truth for worktrees and agents — and the exclusive
// read-modify-write discipline used to mutate it safely across concurrent
// CLI invocations.
package manifest

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the current manifest document version.
const SchemaVersion = 1

// WorktreeStatus is a closed enumeration of worktree lifecycle states.
type WorktreeStatus string

const (
	WorktreeActive   WorktreeStatus = "active"
	WorktreeMerging  WorktreeStatus = "merging"
	WorktreeMerged   WorktreeStatus = "merged"
	WorktreeCleaned  WorktreeStatus = "cleaned"
	WorktreeFailed   WorktreeStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s WorktreeStatus) Terminal() bool {
	switch s {
	case WorktreeMerged, WorktreeFailed, WorktreeCleaned:
		return true
	default:
		return false
	}
}

// AgentStatus is a closed enumeration of agent lifecycle states.
type AgentStatus string

const (
	AgentSpawning  AgentStatus = "spawning"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentKilled    AgentStatus = "killed"
	AgentLost      AgentStatus = "lost"
)

// Terminal reports whether the status admits no further transitions other
// than an explicit restart.
func (s AgentStatus) Terminal() bool {
	switch s {
	case AgentCompleted, AgentFailed, AgentKilled, AgentLost:
		return true
	default:
		return false
	}
}

// normalizeAgentStatus accepts legacy aliases on read, per the design note
// that tagged unions leak string aliases only at the serialization
// boundary: idle->running, exited->completed, gone->lost.
func normalizeAgentStatus(s string) AgentStatus {
	switch s {
	case "idle":
		return AgentRunning
	case "exited":
		return AgentCompleted
	case "gone":
		return AgentLost
	default:
		return AgentStatus(s)
	}
}

// Agent is a single running command-line program driven by a prompt,
// occupying one multiplexer pane.
type Agent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	AgentType   string      `json:"agentType"`
	Status      AgentStatus `json:"status"`
	TmuxTarget  string      `json:"tmuxTarget"`
	Prompt      string      `json:"prompt"`
	ResultFile  string      `json:"resultFile"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	ExitCode    *int        `json:"exitCode,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Worktree is an isolated git checkout on a dedicated branch.
type Worktree struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Path       string             `json:"path"`
	Branch     string             `json:"branch"`
	BaseBranch string             `json:"baseBranch"`
	Status     WorktreeStatus     `json:"status"`
	TmuxWindow string             `json:"tmuxWindow"`
	Agents     map[string]*Agent  `json:"agents"`
	CreatedAt  time.Time          `json:"createdAt"`
	MergedAt   *time.Time         `json:"mergedAt,omitempty"`
}

// Manifest is the canonical per-project state document.
type Manifest struct {
	Version     int                  `json:"version"`
	ProjectRoot string               `json:"projectRoot"`
	SessionName string               `json:"sessionName"`
	Worktrees   map[string]*Worktree `json:"worktrees"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// New creates an empty manifest for a project.
func New(projectRoot, sessionName string) *Manifest {
	now := time.Now().UTC()
	return &Manifest{
		Version:     SchemaVersion,
		ProjectRoot: projectRoot,
		SessionName: sessionName,
		Worktrees:   make(map[string]*Worktree),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// FindAgent locates an agent by ID across all worktrees, returning its
// owning worktree as well. Callers must not retain the returned pointers
// across an Update boundary — re-derive them from a fresh load instead, per
// the "arenas & indices" design note.
func (m *Manifest) FindAgent(agentID string) (*Worktree, *Agent, bool) {
	for _, wt := range m.Worktrees {
		if a, ok := wt.Agents[agentID]; ok {
			return wt, a, true
		}
	}
	return nil, nil, false
}

// FindWorktreeByName locates a worktree by its unique human name.
func (m *Manifest) FindWorktreeByName(name string) (*Worktree, bool) {
	for _, wt := range m.Worktrees {
		if wt.Name == name {
			return wt, true
		}
	}
	return nil, false
}

// BranchInUse reports whether a branch name is already claimed by a
// non-cleaned worktree.
func (m *Manifest) BranchInUse(branch string) bool {
	for _, wt := range m.Worktrees {
		if wt.Branch == branch && wt.Status != WorktreeCleaned {
			return true
		}
	}
	return false
}

// HasID reports whether id is already in use as either a worktree or agent
// ID, for ID-minting collision checks.
func (m *Manifest) HasID(id string) bool {
	if _, ok := m.Worktrees[id]; ok {
		return true
	}
	for _, wt := range m.Worktrees {
		if _, ok := wt.Agents[id]; ok {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts legacy status aliases on read (idle, exited, gone)
// so older manifests written by a prior schema revision still load cleanly.
func (a *Agent) UnmarshalJSON(data []byte) error {
	type alias Agent
	aux := &struct {
		Status string `json:"status"`
		*alias
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	a.Status = normalizeAgentStatus(aux.Status)
	return nil
}
