package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/agent"
	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
	"github.com/xcawolfe-amzn/ppg/internal/ids"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

var (
	spawnBaseBranch string
	spawnPrompt     string
	spawnPromptFile string
	spawnVars       []string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <worktree-name> <agent-type>",
	Short: "Create (or reuse) a worktree and spawn an agent inside it",
	Args:  cobra.ExactArgs(2),
	RunE:  runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnBaseBranch, "base", "", "base branch for a newly created worktree (defaults to the current branch)")
	spawnCmd.Flags().StringVar(&spawnPrompt, "prompt", "", "prompt text")
	spawnCmd.Flags().StringVar(&spawnPromptFile, "prompt-file", "", "path to a prompt template file")
	spawnCmd.Flags().StringArrayVar(&spawnVars, "var", nil, "KEY=VALUE template variable, may be repeated")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	name, agentType := args[0], args[1]

	e, err := newEnv()
	if err != nil {
		return err
	}

	prompt, err := resolvePrompt()
	if err != nil {
		return err
	}
	vars, err := parseVars(spawnVars)
	if err != nil {
		return err
	}

	wt, err := findOrCreateWorktree(cmd.Context(), e, name)
	if err != nil {
		return err
	}

	ag, err := e.Agents.Spawn(cmd.Context(), agent.SpawnParams{
		WorktreeID: wt.ID,
		Name:       agentNameFor(agentType),
		AgentType:  agentType,
		Prompt:     prompt,
		Variables:  vars,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "spawned agent %s (%s) in worktree %s (%s)\n", ag.ID, ag.Name, wt.ID, wt.Name)
	return nil
}

func resolvePrompt() (string, error) {
	if spawnPromptFile != "" {
		data, err := os.ReadFile(spawnPromptFile)
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		return string(data), nil
	}
	if spawnPrompt == "" {
		return "", apperr.New(apperr.CodeInvalidArgs, "one of --prompt or --prompt-file is required", nil)
	}
	return spawnPrompt, nil
}

func parseVars(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, apperr.New(apperr.CodeInvalidArgs, "--var must be KEY=VALUE, got: "+p, nil)
		}
		out[k] = v
	}
	return out, nil
}

func agentNameFor(agentType string) string {
	return fmt.Sprintf("%s-%d", agentType, time.Now().UnixNano()%100000)
}

// findOrCreateWorktree returns the existing worktree named name, or mints
// and creates a new one off spawnBaseBranch (or the project's current
// branch when unset).
func findOrCreateWorktree(ctx context.Context, e *env, name string) (*manifest.Worktree, error) {
	mf, err := e.Store.Read()
	if err != nil && !apperr.Is(err, apperr.CodeNotInitialized) {
		return nil, err
	}
	if mf != nil {
		if wt, ok := mf.FindWorktreeByName(name); ok {
			return wt, nil
		}
	}

	base := spawnBaseBranch
	if base == "" {
		branch, err := gitutil.NewGit(e.Layout.ProjectRoot).CurrentBranch(ctx)
		if err != nil {
			return nil, err
		}
		base = branch
	}

	var createdID string
	created, err := e.Store.Update(true, func(m *manifest.Manifest) (*manifest.Manifest, error) {
		id, err := ids.MintUnique(ids.NewWorktreeID, m.HasID, 20)
		if err != nil {
			return nil, err
		}
		createdID = id

		path := e.Layout.WorktreePath(id)
		branch := e.Cfg.BranchPrefix + "/" + name

		if err := e.Worktree.Create(ctx, worktree.Spec{Path: path, Branch: branch, BaseBranch: base}, worktree.ProvisionOptions{
			ProjectRoot:        e.Layout.ProjectRoot,
			EnvFiles:           e.Cfg.EnvFiles,
			SymlinkNodeModules: e.Cfg.SymlinkNodeModules,
		}); err != nil {
			return nil, err
		}

		m.Worktrees[id] = &manifest.Worktree{
			ID:         id,
			Name:       name,
			Path:       path,
			Branch:     branch,
			BaseBranch: base,
			Status:     manifest.WorktreeActive,
			Agents:     map[string]*manifest.Agent{},
			CreatedAt:  time.Now().UTC(),
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return created.Worktrees[createdID], nil
}
