package plan

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// fallbackDoc covers the two definition shapes the deterministic parser
// understands: the plan-native shape (setup_commands/steps/... at top level)
// and the common Actions-like shape (on/jobs/steps/run).
type fallbackDoc struct {
	Name            string            `yaml:"name"`
	On              yaml.Node         `yaml:"on"`
	Env             map[string]string `yaml:"env"`
	Environment     map[string]string `yaml:"environment"`
	SetupCommands   []string          `yaml:"setup_commands"`
	Steps           []fallbackStep    `yaml:"steps"`
	CleanupCommands []string          `yaml:"cleanup_commands"`
	CachePaths      []string          `yaml:"cache_paths"`
	Jobs            map[string]struct {
		Steps []fallbackStep `yaml:"steps"`
	} `yaml:"jobs"`
}

type fallbackStep struct {
	Name             string                 `yaml:"name"`
	Run              string                 `yaml:"run"`
	Command          string                 `yaml:"command"`
	Uses             string                 `yaml:"uses"`
	With             map[string]interface{} `yaml:"with"`
	WorkingDirectory string                 `yaml:"working-directory"`
	WorkingDir       string                 `yaml:"working_dir"`
	ContinueOnError  bool                   `yaml:"continue-on-error"`
	ContinueOnErr    bool                   `yaml:"continue_on_error"`
	TimeoutMinutes   int                    `yaml:"timeout-minutes"`
	TimeoutSeconds   int                    `yaml:"timeout_seconds"`
}

// ParseFallback is the deterministic structural parser. It extracts only the
// commands a definition already encodes literally, applying the package
// defaults for timeout and working directory.
func ParseFallback(raw []byte, name string) (*Plan, error) {
	var doc fallbackDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("definition is not valid yaml: %w", err)
	}

	p := &Plan{
		Name:            doc.Name,
		Trigger:         firstTrigger(&doc.On),
		Environment:     doc.Environment,
		SetupCommands:   doc.SetupCommands,
		CleanupCommands: doc.CleanupCommands,
		CachePaths:      doc.CachePaths,
	}
	if p.Environment == nil {
		p.Environment = doc.Env
	}

	// Plan-native steps first, then job steps in sorted-key order (the yaml
	// map decode order is not stable, so sort for determinism).
	convertSteps(doc.Steps, p)
	for _, jobName := range sortedKeys(doc.Jobs) {
		convertSteps(doc.Jobs[jobName].Steps, p)
	}

	if err := p.normalize(name); err != nil {
		return nil, err
	}
	return p, nil
}

func convertSteps(in []fallbackStep, p *Plan) {
	for _, fs := range in {
		command := fs.Run
		if command == "" {
			command = fs.Command
		}
		if command == "" && fs.Uses != "" {
			commands, cachePaths, ok := translateAction(fs.Uses, fs.With)
			if !ok {
				log.Printf("fallback parser: skipping unknown action %q (no shell translation)", fs.Uses)
				continue
			}
			for _, cp := range cachePaths {
				p.addCachePath(cp)
			}
			command = strings.Join(commands, " && ")
		}
		if command == "" {
			continue
		}

		// Multi-line run blocks become one command chain.
		if strings.Contains(command, "\n") {
			var lines []string
			for _, l := range strings.Split(command, "\n") {
				if l = strings.TrimSpace(l); l != "" {
					lines = append(lines, l)
				}
			}
			command = strings.Join(lines, " && ")
		}

		timeout := fs.TimeoutSeconds
		if timeout == 0 && fs.TimeoutMinutes > 0 {
			timeout = fs.TimeoutMinutes * 60
		}

		workingDir := fs.WorkingDir
		if workingDir == "" {
			workingDir = fs.WorkingDirectory
		}

		p.Steps = append(p.Steps, Step{
			Name:            fs.Name,
			Command:         command,
			WorkingDir:      workingDir,
			ContinueOnError: fs.ContinueOnError || fs.ContinueOnErr,
			TimeoutSeconds:  timeout,
		})
	}
}

// firstTrigger extracts a representative trigger name from the "on" node,
// which may be a scalar, a sequence, or a mapping.
func firstTrigger(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Value
	case yaml.SequenceNode:
		if len(node.Content) > 0 {
			return node.Content[0].Value
		}
	case yaml.MappingNode:
		if len(node.Content) > 0 {
			return node.Content[0].Value
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
