package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// actionPattern is one builtin action-to-shell translation. Command
// templates carry {{input}} placeholders filled from the step's with: block.
type actionPattern struct {
	commands   []string
	cachePaths []string // {{input}} placeholders allowed
}

// builtinActions maps well-known action references (version tag stripped) to
// shell translations. Anything not listed here is skipped by the fallback
// parser with a warning.
var builtinActions = map[string]actionPattern{
	"actions/checkout": {
		commands: []string{
			"git clone --depth 1 $GITHUB_SERVER_URL/$GITHUB_REPOSITORY .",
			"git fetch origin $GITHUB_REF",
			"git checkout FETCH_HEAD",
		},
	},
	"actions/setup-node": {
		commands: []string{
			"curl -fsSL https://nodejs.org/dist/v{{node-version}}/node-v{{node-version}}-linux-x64.tar.gz | tar -xz -C /usr/local --strip-components=1",
			"node --version",
		},
	},
	"actions/setup-python": {
		commands: []string{
			"apt-get update && apt-get install -y python{{python-version}}",
			"python{{python-version}} --version",
		},
	},
	// Caching is declarative here: the action contributes its path as a
	// cache hint instead of running anything.
	"actions/cache": {
		cachePaths: []string{"{{path}}"},
	},
	"actions/upload-artifact": {
		commands: []string{
			"tar -czf /tmp/artifact-{{name}}.tar.gz {{path}}",
		},
	},
	"actions/download-artifact": {
		commands: []string{
			"tar -xzf /tmp/artifact-{{name}}.tar.gz -C {{path}}",
		},
	},
	"docker/build-push-action": {
		commands: []string{
			"docker build -t {{tags}} -f {{file}} {{context}}",
			"docker push {{tags}}",
		},
	},
	"docker/login-action": {
		commands: []string{
			"echo '{{password}}' | docker login {{registry}} -u {{username}} --password-stdin",
		},
	},
}

var placeholderRe = regexp.MustCompile(`\{\{([a-z0-9-]+)\}\}`)

// translateAction converts a uses: reference plus its with: inputs into
// shell commands and cache-path hints. The second return is false for
// actions with no builtin translation.
func translateAction(uses string, with map[string]interface{}) ([]string, []string, bool) {
	name := uses
	if at := strings.Index(uses, "@"); at != -1 {
		name = uses[:at]
	}

	pattern, ok := builtinActions[name]
	if !ok {
		return nil, nil, false
	}

	commands := make([]string, 0, len(pattern.commands))
	for _, tmpl := range pattern.commands {
		commands = append(commands, fillInputs(tmpl, with))
	}

	var cachePaths []string
	for _, tmpl := range pattern.cachePaths {
		if p := fillInputs(tmpl, with); !strings.Contains(p, "$INPUT_") {
			cachePaths = append(cachePaths, p)
		}
	}

	return commands, cachePaths, true
}

// fillInputs substitutes {{input}} placeholders with the step's with:
// values. Placeholders with no supplied value become $INPUT_* environment
// references, so the command stays runnable.
func fillInputs(tmpl string, with map[string]interface{}) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := with[key]; ok {
			return fmt.Sprint(v)
		}
		return "$INPUT_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	})
}
