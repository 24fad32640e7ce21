// Package plan turns raw workflow definitions into normalized execution plans.
package plan

import "errors"

// Defaults applied to steps that do not specify their own values.
const (
	DefaultWorkingDir     = "/workspace"
	DefaultTimeoutSeconds = 300
)

// ErrEmptyPlan marks a definition that yields neither steps nor setup
// commands. Such a plan is not executable and the run is aborted before any
// sandbox resources are consumed.
var ErrEmptyPlan = errors.New("plan has no steps or setup commands")

// Step is one executable unit of a plan. Steps run strictly in order.
type Step struct {
	Name            string `json:"name" yaml:"name"`
	Command         string `json:"command" yaml:"command"`
	WorkingDir      string `json:"working_dir" yaml:"working_dir"`
	ContinueOnError bool   `json:"continue_on_error" yaml:"continue_on_error"`
	TimeoutSeconds  int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Plan is the normalized, validated form of a workflow definition, ready for
// execution. It is immutable once produced.
type Plan struct {
	Name            string            `json:"name" yaml:"name"`
	Trigger         string            `json:"trigger" yaml:"trigger"`
	Environment     map[string]string `json:"environment" yaml:"environment"`
	SetupCommands   []string          `json:"setup_commands" yaml:"setup_commands"`
	Steps           []Step            `json:"steps" yaml:"steps"`
	CleanupCommands []string          `json:"cleanup_commands" yaml:"cleanup_commands"`
	CachePaths      []string          `json:"cache_paths" yaml:"cache_paths"`
}

// normalize fills in defaults and validates that the plan is executable.
func (p *Plan) normalize(name string) error {
	if p.Name == "" {
		p.Name = name
	}
	if p.Environment == nil {
		p.Environment = map[string]string{}
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if s.WorkingDir == "" {
			s.WorkingDir = DefaultWorkingDir
		}
		if s.TimeoutSeconds <= 0 {
			s.TimeoutSeconds = DefaultTimeoutSeconds
		}
		if s.Name == "" {
			s.Name = truncate(s.Command, 40)
		}
	}

	if len(p.Steps) == 0 && len(p.SetupCommands) == 0 {
		return ErrEmptyPlan
	}
	return nil
}

// addCachePath appends a cache hint, skipping empty values and duplicates.
func (p *Plan) addCachePath(path string) {
	if path == "" {
		return
	}
	for _, existing := range p.CachePaths {
		if existing == path {
			return
		}
	}
	p.CachePaths = append(p.CachePaths, path)
}

// truncate shortens s to at most max runes, never splitting a multibyte
// character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
