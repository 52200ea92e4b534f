package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ScheduleKind selects which action a schedule entry invokes.
type ScheduleKind string

const (
	ScheduleSwarm  ScheduleKind = "swarm"
	SchedulePrompt ScheduleKind = "prompt"
)

// ScheduleEntry is a single cron-triggered action, separate from the
// manifest (spec §3).
type ScheduleEntry struct {
	Name        string            `yaml:"name"`
	Cron        string            `yaml:"cron"`
	Kind        ScheduleKind      `yaml:"kind"`
	Invoke      string            `yaml:"invoke"`
	Variables   map[string]string `yaml:"variables,omitempty"`
	ProjectPath string            `yaml:"projectPath"`
}

// Schedules is the schedules.yaml document: a flat list of entries.
type Schedules struct {
	Entries []ScheduleEntry `yaml:"schedules"`
}

// LoadSchedules reads schedules.yaml at path. A missing file yields an
// empty document, not an error.
func LoadSchedules(path string) (*Schedules, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Schedules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading schedules: %w", err)
	}
	var s Schedules
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schedules: %w", err)
	}
	for _, e := range s.Entries {
		if e.Kind != ScheduleSwarm && e.Kind != SchedulePrompt {
			return nil, fmt.Errorf("schedule %q: invalid kind %q", e.Name, e.Kind)
		}
	}
	return &s, nil
}

// SaveSchedules writes s to path as YAML.
func SaveSchedules(path string, s *Schedules) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating schedules dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling schedules: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Upsert adds or replaces the entry with the given name.
func (s *Schedules) Upsert(e ScheduleEntry) {
	for i, existing := range s.Entries {
		if existing.Name == e.Name {
			s.Entries[i] = e
			return
		}
	}
	s.Entries = append(s.Entries, e)
}

// Remove deletes the entry with the given name, reporting whether it existed.
func (s *Schedules) Remove(name string) bool {
	for i, e := range s.Entries {
		if e.Name == name {
			s.Entries = append(s.Entries[:i], s.Entries[i+1:]...)
			return true
		}
	}
	return false
}
