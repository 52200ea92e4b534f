package agent

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/config"
	"github.com/xcawolfe-amzn/ppg/internal/ids"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/template"
	"github.com/xcawolfe-amzn/ppg/internal/tmux"
)

const (
	defaultKillGraceWindow = 2 * time.Second
	defaultKillPollEvery   = 200 * time.Millisecond
	mintMaxAttempts        = 20
)

// Manager drives the agent lifecycle: spawn, restart, send, kill, and
// refresh-all (spec §4.6).
type Manager struct {
	Store  *manifest.Store
	Mux    tmux.Multiplexer
	Layout ids.Layout
	Cfg    *config.Config

	// KillGraceWindow and KillPollEvery govern Kill/KillAll's Ctrl-C-then-
	// force-kill timing. Tests shrink these; zero value falls back to the
	// production defaults.
	KillGraceWindow time.Duration
	KillPollEvery   time.Duration
}

// NewManager returns an agent Manager.
func NewManager(store *manifest.Store, mux tmux.Multiplexer, layout ids.Layout, cfg *config.Config) *Manager {
	return &Manager{
		Store:           store,
		Mux:             mux,
		Layout:          layout,
		Cfg:             cfg,
		KillGraceWindow: defaultKillGraceWindow,
		KillPollEvery:   defaultKillPollEvery,
	}
}

func (m *Manager) graceWindow() time.Duration {
	if m.KillGraceWindow > 0 {
		return m.KillGraceWindow
	}
	return defaultKillGraceWindow
}

func (m *Manager) pollEvery() time.Duration {
	if m.KillPollEvery > 0 {
		return m.KillPollEvery
	}
	return defaultKillPollEvery
}

// SpawnParams describes a new agent to launch inside an existing worktree.
type SpawnParams struct {
	WorktreeID string
	Name       string
	AgentType  string
	Prompt     string
	Variables  map[string]string
}

// Spawn mints an agent, writes its rendered prompt file, attaches it to a
// pane (reusing the window's initial pane if it is the worktree's first
// agent, else splitting), and launches its command.
func (m *Manager) Spawn(ctx context.Context, p SpawnParams) (*manifest.Agent, error) {
	agentType, ok := m.Cfg.AgentType(p.AgentType)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgs, fmt.Sprintf("unknown agent type %q", p.AgentType), nil)
	}

	cur, err := m.Store.Read()
	if err != nil {
		return nil, err
	}
	wt, ok := cur.Worktrees[p.WorktreeID]
	if !ok {
		return nil, apperr.New(apperr.CodeWorktreeNotFound, p.WorktreeID, nil)
	}

	agentID, err := ids.MintUnique(ids.NewAgentID, cur.HasID, mintMaxAttempts)
	if err != nil {
		return nil, err
	}

	resultFile := m.Layout.ResultPath(agentID)
	vars := template.Merge(
		template.BuiltinVars(wt.Path, wt.Branch, agentID, resultFile, m.Layout.ProjectRoot, p.Name, p.Prompt),
		p.Variables,
	)
	rendered := template.Render(p.Prompt, vars)

	if err := os.MkdirAll(m.Layout.PromptDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating prompt dir: %w", err)
	}
	if err := os.MkdirAll(m.Layout.ResultDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating result dir: %w", err)
	}
	promptPath := m.Layout.PromptPath(agentID)
	if err := os.WriteFile(promptPath, []byte(rendered), 0o644); err != nil {
		return nil, fmt.Errorf("writing prompt file: %w", err)
	}

	target, err := m.attachPane(ctx, cur.SessionName, wt)
	if err != nil {
		return nil, err
	}

	if err := m.launch(ctx, target, agentType, rendered, promptPath); err != nil {
		return nil, fmt.Errorf("launching agent: %w", err)
	}

	ag := &manifest.Agent{
		ID:         agentID,
		Name:       p.Name,
		AgentType:  p.AgentType,
		Status:     manifest.AgentRunning,
		TmuxTarget: target,
		Prompt:     template.Truncate(rendered, m.Cfg.PromptTruncateChars),
		ResultFile: resultFile,
		StartedAt:  time.Now().UTC(),
	}

	_, err = m.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		w, ok := mf.Worktrees[p.WorktreeID]
		if !ok {
			return nil, apperr.New(apperr.CodeWorktreeNotFound, p.WorktreeID, nil)
		}
		if w.TmuxWindow == "" {
			w.TmuxWindow = wt.TmuxWindow
		}
		if w.Agents == nil {
			w.Agents = make(map[string]*manifest.Agent)
		}
		w.Agents[agentID] = ag
		return mf, nil
	})
	if err != nil {
		return nil, err
	}
	return ag, nil
}

// attachPane returns the pane target for a new agent in wt. For the
// worktree's first agent it creates the window and returns the ID of that
// window's initial pane; otherwise it splits the existing window.
func (m *Manager) attachPane(ctx context.Context, session string, wt *manifest.Worktree) (string, error) {
	if wt.TmuxWindow == "" {
		if err := m.Mux.EnsureSession(ctx, session, m.Layout.ProjectRoot); err != nil {
			return "", fmt.Errorf("ensuring session: %w", err)
		}
		win, err := m.Mux.NewWindow(ctx, session, wt.Name, wt.Path)
		if err != nil {
			return "", fmt.Errorf("creating window: %w", err)
		}
		wt.TmuxWindow = win
		panes, err := m.Mux.ListPanes(ctx, session)
		if err != nil {
			return "", fmt.Errorf("listing panes: %w", err)
		}
		idx := win[strings.LastIndex(win, ":")+1:]
		for _, p := range panes {
			if strconv.Itoa(p.WindowIndex) == idx {
				return p.PaneID, nil
			}
		}
		return win, nil
	}
	pane, err := m.Mux.SplitWindow(ctx, wt.TmuxWindow, wt.Path)
	if err != nil {
		return "", fmt.Errorf("splitting pane: %w", err)
	}
	return pane, nil
}

// launch runs the agent's command in target. Interactive agents are
// launched bare and then immediately driven with their prompt over stdin;
// non-interactive agents receive the prompt file path via promptFlag.
func (m *Manager) launch(ctx context.Context, target string, at config.AgentType, rendered, promptPath string) error {
	var cmd string
	if at.Interactive {
		cmd = at.Command
	} else {
		cmd = fmt.Sprintf("%s %s %s", at.Command, at.PromptFlag, promptPath)
	}
	if err := m.Mux.SendLiteral(ctx, target, cmd); err != nil {
		return err
	}
	if err := m.Mux.SendEnter(ctx, target); err != nil {
		return err
	}
	if at.Interactive {
		if err := m.Mux.SendLiteral(ctx, target, rendered); err != nil {
			return err
		}
		if err := m.Mux.SendEnter(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// Send delivers literal text followed by Enter to a running agent's pane,
// for callers wanting to nudge a live agent. Spawn and Restart deliver the
// initial prompt through launch, not through Send.
func (m *Manager) Send(ctx context.Context, agentID, text string) error {
	cur, err := m.Store.Read()
	if err != nil {
		return err
	}
	_, ag, ok := cur.FindAgent(agentID)
	if !ok {
		return apperr.New(apperr.CodeAgentNotFound, agentID, nil)
	}
	if err := m.Mux.SendLiteral(ctx, ag.TmuxTarget, text); err != nil {
		return err
	}
	return m.Mux.SendEnter(ctx, ag.TmuxTarget)
}

// Restart returns a terminal agent to spawning with a freshly created
// pane, reusing its ID. Restarting an agent whose worktree has been
// cleaned fails with WORKTREE_NOT_FOUND (spec §9 open question).
func (m *Manager) Restart(ctx context.Context, agentID string) (*manifest.Agent, error) {
	cur, err := m.Store.Read()
	if err != nil {
		return nil, err
	}
	wt, ag, ok := cur.FindAgent(agentID)
	if !ok {
		return nil, apperr.New(apperr.CodeAgentNotFound, agentID, nil)
	}
	if wt.Status == manifest.WorktreeCleaned {
		return nil, apperr.New(apperr.CodeWorktreeNotFound, wt.ID, nil)
	}
	at, ok := m.Cfg.AgentType(ag.AgentType)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidArgs, fmt.Sprintf("unknown agent type %q", ag.AgentType), nil)
	}

	target, err := m.attachPane(ctx, cur.SessionName, wt)
	if err != nil {
		return nil, err
	}

	promptPath := m.Layout.PromptPath(agentID)
	renderedBytes, err := os.ReadFile(promptPath)
	rendered := string(renderedBytes)
	if err != nil {
		rendered = ag.Prompt
	}
	if err := m.launch(ctx, target, at, rendered, promptPath); err != nil {
		return nil, fmt.Errorf("relaunching agent: %w", err)
	}

	var updated *manifest.Agent
	_, err = m.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		w, ok := mf.Worktrees[wt.ID]
		if !ok {
			return nil, apperr.New(apperr.CodeWorktreeNotFound, wt.ID, nil)
		}
		a, ok := w.Agents[agentID]
		if !ok {
			return nil, apperr.New(apperr.CodeAgentNotFound, agentID, nil)
		}
		a.Status = manifest.AgentSpawning
		a.TmuxTarget = target
		a.StartedAt = time.Now().UTC()
		a.CompletedAt = nil
		a.ExitCode = nil
		a.Error = ""
		updated = a
		return mf, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Kill sends Ctrl-C to the agent's pane, polls liveness for up to the
// grace window, and force-kills the pane if it is still alive, then
// records the agent as killed.
func (m *Manager) Kill(ctx context.Context, agentID string) error {
	cur, err := m.Store.Read()
	if err != nil {
		return err
	}
	wt, ag, ok := cur.FindAgent(agentID)
	if !ok {
		return apperr.New(apperr.CodeAgentNotFound, agentID, nil)
	}

	if err := m.Mux.SendCtrlC(ctx, ag.TmuxTarget); err != nil {
		return err
	}
	if !m.waitForDeathOrTimeout(ctx, cur.SessionName, ag.TmuxTarget, m.graceWindow()) {
		_ = m.Mux.KillPane(ctx, ag.TmuxTarget)
	}

	_, err = m.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		w, ok := mf.Worktrees[wt.ID]
		if !ok {
			return nil, apperr.New(apperr.CodeWorktreeNotFound, wt.ID, nil)
		}
		a, ok := w.Agents[agentID]
		if !ok {
			return nil, apperr.New(apperr.CodeAgentNotFound, agentID, nil)
		}
		a.Status = manifest.AgentKilled
		now := time.Now().UTC()
		a.CompletedAt = &now
		return mf, nil
	})
	return err
}

// KillAll kills every agent ID in ids in parallel: Ctrl-C is sent to all
// targets concurrently, liveness is checked once after the shared grace
// window, and any survivors are force-killed concurrently (spec §4.6, §5 —
// kill-all wall time is independent of agent count).
func (m *Manager) KillAll(ctx context.Context, agentIDs []string) error {
	cur, err := m.Store.Read()
	if err != nil {
		return err
	}

	targets := make(map[string]string, len(agentIDs)) // agentID -> pane target
	for _, id := range agentIDs {
		_, ag, ok := cur.FindAgent(id)
		if !ok {
			continue
		}
		targets[id] = ag.TmuxTarget
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			return m.Mux.SendCtrlC(gctx, target)
		})
	}
	_ = g.Wait() // best-effort: a failed Ctrl-C still proceeds to the poll/force-kill stage

	deadline := time.Now().Add(m.graceWindow())
	time.Sleep(time.Until(deadline))

	panes, _ := m.Mux.ListPanes(ctx, cur.SessionName)
	alive := make(map[string]bool, len(panes))
	for _, p := range panes {
		alive[p.PaneID] = !p.Dead
	}

	g2, gctx2 := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		if !alive[target] {
			continue
		}
		g2.Go(func() error {
			return m.Mux.KillPane(gctx2, target)
		})
	}
	_ = g2.Wait()

	_, err = m.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		now := time.Now().UTC()
		for id := range targets {
			if _, ag, ok := mf.FindAgent(id); ok {
				ag.Status = manifest.AgentKilled
				ag.CompletedAt = &now
			}
		}
		return mf, nil
	})
	return err
}

// waitForDeathOrTimeout polls pane liveness at pollEvery() intervals,
// returning true once the pane is dead or gone, false if timeout elapses
// first.
func (m *Manager) waitForDeathOrTimeout(ctx context.Context, session, target string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		panes, _ := m.Mux.ListPanes(ctx, session)
		found := false
		for _, p := range panes {
			if p.PaneID == target {
				found = true
				if p.Dead {
					return true
				}
			}
		}
		if !found {
			return true
		}
		time.Sleep(m.pollEvery())
	}
	return false
}

// RefreshAll fetches one session-wide pane listing, checks each
// non-terminal agent's result file in parallel, applies the status
// detector, and marks worktrees whose directory has disappeared as
// cleaned (with their non-terminal agents lost). Subprocess and
// filesystem work happens outside the manifest lock; only the final
// commit is serialized (spec §4.6, §5).
func (m *Manager) RefreshAll(ctx context.Context) (*manifest.Manifest, error) {
	cur, err := m.Store.Read()
	if err != nil {
		return nil, err
	}

	panes, err := m.Mux.ListPanes(ctx, cur.SessionName)
	if err != nil {
		return nil, fmt.Errorf("listing panes: %w", err)
	}
	paneByID := make(map[string]tmux.Pane, len(panes))
	for _, p := range panes {
		paneByID[p.PaneID] = p
	}

	type update struct {
		worktreeID string
		agentID    string
		outcome    Outcome
	}
	var updates []update
	var agents []*manifest.Agent
	var worktreeDirsGone []string

	for _, wt := range cur.Worktrees {
		if !wt.Status.Terminal() {
			if _, statErr := os.Stat(wt.Path); os.IsNotExist(statErr) {
				worktreeDirsGone = append(worktreeDirsGone, wt.ID)
			}
		}
		for _, ag := range wt.Agents {
			if ag.Status.Terminal() {
				continue
			}
			updates = append(updates, update{worktreeID: wt.ID, agentID: ag.ID})
			agents = append(agents, ag)
		}
	}

	var g errgroup.Group
	for i, ag := range agents {
		i, ag := i, ag
		g.Go(func() error {
			resultExists := fileExists(ag.ResultFile)
			pane, found := paneByID[ag.TmuxTarget]
			at, _ := m.Cfg.AgentType(ag.AgentType)
			out := Detect(DetectInput{
				ResultFileExists: resultExists,
				PaneFound:        found,
				PaneDead:         pane.Dead,
				DeadStatus:       pane.DeadStatus,
				CurrentCommand:   pane.CurrentCommand,
				Interactive:      at.Interactive,
				PriorKilled:      ag.Status == manifest.AgentKilled,
			})
			// A shell-prompt failure (no exit code) re-checks the result file
			// once, in case the agent wrote it just after the first check.
			if out.Status == manifest.AgentFailed && out.ExitCode == nil && fileExists(ag.ResultFile) {
				out = Outcome{Status: manifest.AgentCompleted}
			}
			updates[i].outcome = out
			return nil
		})
	}
	_ = g.Wait()

	return m.Store.Update(false, func(mf *manifest.Manifest) (*manifest.Manifest, error) {
		for _, id := range worktreeDirsGone {
			w, ok := mf.Worktrees[id]
			if !ok {
				continue
			}
			w.Status = manifest.WorktreeCleaned
			for _, ag := range w.Agents {
				if !ag.Status.Terminal() {
					ag.Status = manifest.AgentLost
				}
			}
		}
		for _, u := range updates {
			w, ok := mf.Worktrees[u.worktreeID]
			if !ok {
				continue
			}
			ag, ok := w.Agents[u.agentID]
			if !ok || ag.Status.Terminal() {
				continue
			}
			ag.Status = u.outcome.Status
			ag.ExitCode = u.outcome.ExitCode
			if ag.Status.Terminal() {
				now := time.Now().UTC()
				ag.CompletedAt = &now
			}
		}
		return mf, nil
	})
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
