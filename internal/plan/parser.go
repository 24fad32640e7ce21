package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/vulcanci/vulcan-core/internal/learning"
	"github.com/vulcanci/vulcan-core/internal/llm"
)

// systemPrompt is the fixed instruction for the model-assisted parse. The
// model's output is treated as untrusted and always validated before use.
const systemPrompt = `You are an expert CI workflow parser. Analyze the given
workflow definition and translate it into executable shell commands.

1. Identify the trigger conditions (push, pull_request, workflow_dispatch)
2. Extract environment variables
3. List the steps in order as shell commands
4. Identify caching opportunities

Output a single JSON object, nothing else:
{
  "name": "workflow name",
  "trigger": "push|pull_request|workflow_dispatch",
  "environment": {"VAR": "value"},
  "setup_commands": ["commands to run before main steps"],
  "steps": [
    {
      "name": "step name",
      "command": "shell command to execute",
      "working_dir": "/workspace",
      "continue_on_error": false,
      "timeout_seconds": 300
    }
  ],
  "cleanup_commands": ["commands to run after all steps"],
  "cache_paths": ["paths worth caching between runs"]
}

Be precise and executable. Use standard shell commands only; translate any
CI-platform action syntax to shell equivalents.`

// Parser converts raw workflow definitions into Plans. The model-assisted
// path is attempted first when a chat backend is configured; the
// deterministic fallback always remains available.
type Parser struct {
	chat     llm.Chatter     // nil disables the model-assisted path
	store    *learning.Store // nil disables history-based suggestions
	chatWait time.Duration
}

// NewParser creates a parser. Either dependency may be nil.
func NewParser(chat llm.Chatter, store *learning.Store) *Parser {
	return &Parser{
		chat:     chat,
		store:    store,
		chatWait: 30 * time.Second,
	}
}

// Parse produces an execution plan for one raw workflow definition. It never
// blocks indefinitely on the model backend: the chat call is bounded, and any
// model failure (transport, extraction, validation) falls back to the
// deterministic parser. Failures of both parsers abort the run before any
// sandbox resources are consumed.
func (p *Parser) Parse(ctx context.Context, raw []byte, name string) (*Plan, error) {
	if p.chat != nil {
		plan, err := p.parseWithModel(ctx, raw, name)
		if err == nil {
			log.Printf("parser: model-assisted parse of %s (%d steps)", name, len(plan.Steps))
			p.applySuggestions(plan)
			return plan, nil
		}
		log.Printf("parser: model parse of %s failed, using fallback: %v", name, err)
	}

	plan, err := ParseFallback(raw, name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	log.Printf("parser: fallback parse of %s (%d steps)", name, len(plan.Steps))
	p.applySuggestions(plan)
	return plan, nil
}

func (p *Parser) parseWithModel(ctx context.Context, raw []byte, name string) (*Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, p.chatWait)
	defer cancel()

	user := fmt.Sprintf("Parse this workflow definition into executable commands:\n\n```yaml\n%s\n```", raw)
	response, err := p.chat.Chat(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("chat failed: %w", err)
	}

	jsonText, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := json.Unmarshal([]byte(jsonText), &plan); err != nil {
		return nil, fmt.Errorf("model output is not a valid plan: %w", err)
	}
	if err := plan.normalize(name); err != nil {
		return nil, err
	}
	return &plan, nil
}

// applySuggestions pre-populates timeouts and cache paths from execution
// history. Advisory only: it never removes or reorders steps, and only
// overrides timeouts a definition left at the default.
func (p *Parser) applySuggestions(plan *Plan) {
	if p.store == nil {
		return
	}

	seen := make(map[string]bool, len(plan.CachePaths))
	for _, cp := range plan.CachePaths {
		seen[cp] = true
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		sg, err := p.store.Suggest(learning.Signature(step.Command))
		if err != nil {
			log.Printf("parser: suggestion lookup failed for %q: %v", step.Name, err)
			continue
		}
		if sg == nil {
			continue
		}

		if step.TimeoutSeconds == DefaultTimeoutSeconds && sg.TimeoutSeconds > 0 {
			step.TimeoutSeconds = sg.TimeoutSeconds
		}
		for _, cp := range sg.CachePaths {
			if !seen[cp] {
				seen[cp] = true
				plan.CachePaths = append(plan.CachePaths, cp)
			}
		}
	}
}

// extractJSON pulls the JSON object out of a model response, tolerating
// markdown code fences and surrounding prose.
func extractJSON(response string) (string, error) {
	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end]), nil
		}
	}

	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx+3:]
		// Skip a language identifier on the fence line.
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end]), nil
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON object in model response")
	}

	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object in model response")
}
