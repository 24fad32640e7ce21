// Package discovery scans a workflow-definition directory and selects the
// definitions whose triggers match an inbound event.
package discovery

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vulcanci/vulcan-core/internal/webhook"
)

// Trigger is one declared activation condition of a workflow definition.
// An empty RefPattern matches any ref.
type Trigger struct {
	Kind       webhook.EventKind
	RefPattern string
}

// Definition is a workflow file with its extracted triggers. The raw bytes
// are carried along so the parser does not re-read the file.
type Definition struct {
	Path     string
	Name     string // base file name, used as the default plan name
	Triggers []Trigger
	Raw      []byte
}

// Matches reports whether at least one trigger has the event's kind and
// either no ref pattern or a glob match against the event's ref.
func (d *Definition) Matches(ev *webhook.Event) bool {
	for _, tr := range d.Triggers {
		if tr.Kind != ev.Kind {
			continue
		}
		if tr.RefPattern == "" {
			return true
		}
		if ok, err := path.Match(tr.RefPattern, ev.RefName); err == nil && ok {
			return true
		}
	}
	return false
}

// Discover enumerates *.yml / *.yaml files under root in deterministic
// lexical order and returns the definitions matching ev. A file that fails
// to parse is skipped with a warning; it never blocks the other definitions.
// An unreadable root is an error.
func Discover(root string, ev *webhook.Event) ([]*Definition, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("workflow directory: %w", err)
	}

	var matched []*Definition
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		def, err := loadDefinition(p)
		if err != nil {
			log.Printf("discovery: skipping %s: %v", p, err)
			return nil
		}

		if def.Matches(ev) {
			matched = append(matched, def)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workflow directory walk: %w", err)
	}

	return matched, nil
}

// triggerDoc is the minimal shape needed to extract trigger conditions.
type triggerDoc struct {
	On yaml.Node `yaml:"on"`
}

func loadDefinition(p string) (*Definition, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var doc triggerDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	return &Definition{
		Path:     p,
		Name:     filepath.Base(p),
		Triggers: extractTriggers(&doc.On),
		Raw:      raw,
	}, nil
}

// extractTriggers handles the three encodings of the "on" key: a scalar
// ("on: push"), a sequence ("on: [push, pull_request]"), and a mapping with
// optional branch patterns.
func extractTriggers(node *yaml.Node) []Trigger {
	var triggers []Trigger

	switch node.Kind {
	case yaml.ScalarNode:
		if k := KindFromTriggerName(node.Value); k != "" {
			triggers = append(triggers, Trigger{Kind: k})
		}

	case yaml.SequenceNode:
		for _, item := range node.Content {
			if k := KindFromTriggerName(item.Value); k != "" {
				triggers = append(triggers, Trigger{Kind: k})
			}
		}

	case yaml.MappingNode:
		// Content alternates key, value.
		for i := 0; i+1 < len(node.Content); i += 2 {
			kind := KindFromTriggerName(node.Content[i].Value)
			if kind == "" {
				continue
			}

			patterns := branchPatterns(node.Content[i+1])
			if len(patterns) == 0 {
				triggers = append(triggers, Trigger{Kind: kind})
				continue
			}
			for _, pat := range patterns {
				triggers = append(triggers, Trigger{Kind: kind, RefPattern: pat})
			}
		}
	}

	return triggers
}

// branchPatterns pulls the "branches" list out of one trigger's config node.
func branchPatterns(node *yaml.Node) []string {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "branches" {
			continue
		}
		val := node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			return []string{val.Value}
		case yaml.SequenceNode:
			var out []string
			for _, item := range val.Content {
				out = append(out, item.Value)
			}
			return out
		}
	}
	return nil
}

// KindFromTriggerName maps a trigger key in a definition to an event kind.
// Unknown trigger names yield "" and are ignored during matching.
func KindFromTriggerName(name string) webhook.EventKind {
	switch name {
	case "push":
		return webhook.EventPush
	case "pull_request":
		return webhook.EventPullRequest
	case "workflow_dispatch":
		return webhook.EventManualDispatch
	default:
		return ""
	}
}
