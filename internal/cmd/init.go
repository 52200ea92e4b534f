package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/config"
	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
	"github.com/xcawolfe-amzn/ppg/internal/ids"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ppg state for the current project",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root := projectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		root = wd
	}

	if !gitutil.NewGit(root).IsRepo() {
		return apperr.New(apperr.CodeNotGitRepo, "not a git repository: "+root, nil)
	}

	layout := ids.NewLayout(root)
	if _, err := os.Stat(layout.ManifestPath()); err == nil {
		return apperr.New(apperr.CodeInvalidArgs, "already initialized: "+layout.ManifestPath(), nil)
	}

	for _, dir := range []string{layout.StateDir(), layout.TemplateDir(), layout.PromptDir(), layout.ResultDir(), layout.LogDir(), layout.AuthDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	cfg := &config.Config{}
	if err := config.Save(layout.ConfigPath(), cfg); err != nil {
		return err
	}

	store := manifest.NewStore(root)
	if _, err := store.Update(true, func(m *manifest.Manifest) (*manifest.Manifest, error) {
		return m, nil
	}); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "initialized ppg state in", layout.StateDir())
	return nil
}
