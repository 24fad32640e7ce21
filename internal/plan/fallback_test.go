package plan

import (
	"errors"
	"strings"
	"testing"
)

func TestParseFallbackSetupOnly(t *testing.T) {
	raw := []byte("setup_commands: [\"echo hi\"]\n")

	p, err := ParseFallback(raw, "minimal.yml")
	if err != nil {
		t.Fatalf("ParseFallback failed: %v", err)
	}

	if len(p.SetupCommands) != 1 || p.SetupCommands[0] != "echo hi" {
		t.Errorf("setup commands = %v, want [echo hi]", p.SetupCommands)
	}
	if len(p.Steps) != 0 {
		t.Errorf("steps = %v, want empty", p.Steps)
	}
	if p.Name != "minimal.yml" {
		t.Errorf("name = %q, want file name default", p.Name)
	}
}

func TestParseFallbackActionsShape(t *testing.T) {
	raw := []byte(`name: CI
on:
  push:
    branches: [main]
env:
  CARGO_TERM_COLOR: always
jobs:
  build:
    steps:
      - name: Checkout
        uses: actions/checkout@v4
      - name: Build
        run: cargo build
        timeout-minutes: 10
      - name: Lint
        run: cargo clippy
        continue-on-error: true
`)

	p, err := ParseFallback(raw, "ci.yml")
	if err != nil {
		t.Fatalf("ParseFallback failed: %v", err)
	}

	if p.Name != "CI" {
		t.Errorf("name = %q, want CI", p.Name)
	}
	if p.Trigger != "push" {
		t.Errorf("trigger = %q, want push", p.Trigger)
	}
	if p.Environment["CARGO_TERM_COLOR"] != "always" {
		t.Errorf("environment = %v", p.Environment)
	}

	// The uses: step is skipped; two run: steps survive in order.
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(p.Steps))
	}
	if p.Steps[0].Command != "cargo build" {
		t.Errorf("step 0 command = %q", p.Steps[0].Command)
	}
	if p.Steps[0].TimeoutSeconds != 600 {
		t.Errorf("step 0 timeout = %d, want 600", p.Steps[0].TimeoutSeconds)
	}
	if p.Steps[0].WorkingDir != DefaultWorkingDir {
		t.Errorf("step 0 working dir = %q, want default", p.Steps[0].WorkingDir)
	}
	if !p.Steps[1].ContinueOnError {
		t.Error("step 1 should continue on error")
	}
	if p.Steps[1].TimeoutSeconds != DefaultTimeoutSeconds {
		t.Errorf("step 1 timeout = %d, want default", p.Steps[1].TimeoutSeconds)
	}
}

func TestParseFallbackMultilineRun(t *testing.T) {
	raw := []byte(`jobs:
  test:
    steps:
      - run: |
          echo one
          echo two
`)

	p, err := ParseFallback(raw, "multi.yml")
	if err != nil {
		t.Fatalf("ParseFallback failed: %v", err)
	}

	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(p.Steps))
	}
	if p.Steps[0].Command != "echo one && echo two" {
		t.Errorf("command = %q", p.Steps[0].Command)
	}
}

func TestParseFallbackBuiltinActions(t *testing.T) {
	// A workflow made only of well-known uses: steps must still yield an
	// executable plan.
	raw := []byte(`name: node-ci
jobs:
  build:
    steps:
      - name: Checkout
        uses: actions/checkout@v4
      - name: Node
        uses: actions/setup-node@v4
        with:
          node-version: 20
      - name: Deps cache
        uses: actions/cache@v4
        with:
          path: node_modules
          key: npm-cache
      - name: Mystery
        uses: acme/unknown-action@v1
`)

	p, err := ParseFallback(raw, "node.yml")
	if err != nil {
		t.Fatalf("ParseFallback failed: %v", err)
	}

	// checkout + setup-node translate; cache is declarative; unknown skipped.
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d, want 2: %+v", len(p.Steps), p.Steps)
	}
	if !strings.Contains(p.Steps[0].Command, "git clone --depth 1") {
		t.Errorf("checkout command = %q", p.Steps[0].Command)
	}
	if !strings.Contains(p.Steps[1].Command, "nodejs.org/dist/v20/node-v20") {
		t.Errorf("setup-node inputs not substituted: %q", p.Steps[1].Command)
	}
	if len(p.CachePaths) != 1 || p.CachePaths[0] != "node_modules" {
		t.Errorf("cache paths = %v, want [node_modules]", p.CachePaths)
	}
}

func TestParseFallbackActionMissingInputs(t *testing.T) {
	raw := []byte(`jobs:
  build:
    steps:
      - uses: actions/upload-artifact@v4
`)

	p, err := ParseFallback(raw, "artifact.yml")
	if err != nil {
		t.Fatalf("ParseFallback failed: %v", err)
	}
	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(p.Steps))
	}
	// Unsupplied inputs become environment references.
	if !strings.Contains(p.Steps[0].Command, "$INPUT_NAME") || !strings.Contains(p.Steps[0].Command, "$INPUT_PATH") {
		t.Errorf("command = %q, want $INPUT_* placeholders", p.Steps[0].Command)
	}
}

func TestParseFallbackEmpty(t *testing.T) {
	_, err := ParseFallback([]byte("name: nothing here\n"), "empty.yml")
	if !errors.Is(err, ErrEmptyPlan) {
		t.Errorf("err = %v, want ErrEmptyPlan", err)
	}
}

func TestParseFallbackInvalidYAML(t *testing.T) {
	_, err := ParseFallback([]byte(":\n  - ]["), "broken.yml")
	if err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestParseFallbackPlanNativeSteps(t *testing.T) {
	raw := []byte(`name: native
steps:
  - name: Say hi
    command: echo hi
    working_dir: /tmp
    timeout_seconds: 30
`)

	p, err := ParseFallback(raw, "native.yml")
	if err != nil {
		t.Fatalf("ParseFallback failed: %v", err)
	}

	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(p.Steps))
	}
	if p.Steps[0].WorkingDir != "/tmp" {
		t.Errorf("working dir = %q", p.Steps[0].WorkingDir)
	}
	if p.Steps[0].TimeoutSeconds != 30 {
		t.Errorf("timeout = %d", p.Steps[0].TimeoutSeconds)
	}
}
