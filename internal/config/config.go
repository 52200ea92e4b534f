// Package config loads the per-project YAML configuration and schedule
// documents read at startup (see spec §6, §4.10). Parsing is a thin,
// read-once concern; the interesting behavior it drives lives in the
// orchestration packages that consume the resulting values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPromptTruncateChars resolves the open question in spec §9: the
// exact truncation length for stored prompts. Configurable via
// PromptTruncateChars.
const DefaultPromptTruncateChars = 500

const (
	DefaultBranchPrefix    = "ppg"
	DefaultWorktreeBase    = ".worktrees"
	DefaultTemplateDir     = "templates"
	DefaultResultDir       = "results"
	DefaultLogDir          = "logs"
)

// AgentType is a configuration-driven strategy describing how to launch one
// kind of agent — no inheritance, entirely data-driven per the "dynamic
// dispatch over agent types" design note.
type AgentType struct {
	Name               string `yaml:"name"`
	Command            string `yaml:"command"`
	PromptFlag         string `yaml:"promptFlag,omitempty"`
	Interactive        bool   `yaml:"interactive,omitempty"`
	ResultInstructions string `yaml:"resultInstructions,omitempty"`
}

// Config is the user configuration document (config.yaml).
type Config struct {
	SessionName         string      `yaml:"sessionName,omitempty"`
	DefaultAgent         string      `yaml:"defaultAgent,omitempty"`
	Agents               []AgentType `yaml:"agents,omitempty"`
	WorktreeBase         string      `yaml:"worktreeBase,omitempty"`
	TemplateDir          string      `yaml:"templateDir,omitempty"`
	ResultDir            string      `yaml:"resultDir,omitempty"`
	LogDir               string      `yaml:"logDir,omitempty"`
	EnvFiles             []string    `yaml:"envFiles,omitempty"`
	SymlinkNodeModules   bool        `yaml:"symlinkNodeModules,omitempty"`
	BranchPrefix         string      `yaml:"branchPrefix,omitempty"`
	PromptTruncateChars  int         `yaml:"promptTruncateChars,omitempty"`
}

// applyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) applyDefaults(projectRoot string) {
	if c.SessionName == "" {
		c.SessionName = filepath.Base(projectRoot)
	}
	if c.WorktreeBase == "" {
		c.WorktreeBase = DefaultWorktreeBase
	}
	if c.TemplateDir == "" {
		c.TemplateDir = DefaultTemplateDir
	}
	if c.ResultDir == "" {
		c.ResultDir = DefaultResultDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = DefaultBranchPrefix
	}
	if c.PromptTruncateChars == 0 {
		c.PromptTruncateChars = DefaultPromptTruncateChars
	}
}

// AgentType looks up a configured agent type by name.
func (c *Config) AgentType(name string) (AgentType, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentType{}, false
}

// Load reads and validates config.yaml at path, applying defaults for any
// field the document leaves unset.
func Load(path, projectRoot string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c := &Config{}
		c.applyDefaults(projectRoot)
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.applyDefaults(projectRoot)
	return &c, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent entry missing name")
		}
		if a.Command == "" {
			return fmt.Errorf("agent %q missing command", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent type %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// Save writes c to path as YAML.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
