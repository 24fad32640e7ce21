package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vulcanci/vulcan-core/internal/discovery"
	"github.com/vulcanci/vulcan-core/internal/plan"
	"github.com/vulcanci/vulcan-core/internal/session"
	"github.com/vulcanci/vulcan-core/internal/vm"
	"github.com/vulcanci/vulcan-core/internal/webhook"
)

func testRunner(t *testing.T, executor vm.Executor) (*Runner, *vm.MockProvider) {
	t.Helper()
	provider := vm.NewMockProvider()
	sessions := session.NewManager(provider, session.Options{
		MaxConcurrent: 2,
		Sleep:         func(ctx context.Context, d time.Duration) error { return nil },
	})
	r := New(plan.NewParser(nil, nil), sessions, executor, nil, Options{})
	return r, provider
}

func testDef(raw string) *discovery.Definition {
	return &discovery.Definition{Name: "ci.yml", Raw: []byte(raw)}
}

func pushEvent() *webhook.Event {
	return &webhook.Event{Kind: webhook.EventPush, RefName: "main"}
}

const threeStepPlan = `name: build
setup_commands: ["apt-get update"]
steps:
  - name: A
    command: echo a
  - name: B
    command: make broken
  - name: C
    command: echo c
cleanup_commands: ["rm -rf /tmp/scratch"]
`

func TestRunSuccess(t *testing.T) {
	exec := vm.NewMockExecutor()
	r, provider := testRunner(t, exec)

	report := r.Run(context.Background(), testDef(threeStepPlan), pushEvent())

	if report.Status != StatusSucceeded {
		t.Fatalf("status = %s: %s", report.Status, report.Summary)
	}
	// setup + 3 steps + cleanup
	if len(report.Results) != 5 {
		t.Errorf("results = %d, want 5", len(report.Results))
	}
	if report.SessionID == "" {
		t.Error("report missing session id")
	}
	if provider.LiveCount() != 0 {
		t.Errorf("vm leaked: %d live", provider.LiveCount())
	}
	if !strings.Contains(report.Summary, "succeeded") {
		t.Errorf("summary = %q", report.Summary)
	}
}

func TestRunFailFastSkipsLaterSteps(t *testing.T) {
	exec := vm.NewMockExecutor()
	exec.FailCommands("make broken")
	r, provider := testRunner(t, exec)

	report := r.Run(context.Background(), testDef(threeStepPlan), pushEvent())

	if report.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", report.Status)
	}

	executed := exec.Executed()
	for _, cmd := range executed {
		if cmd == "echo c" {
			t.Error("step after failure should not run")
		}
	}
	// Cleanup still runs after the failure.
	found := false
	for _, cmd := range executed {
		if cmd == "rm -rf /tmp/scratch" {
			found = true
		}
	}
	if !found {
		t.Error("cleanup did not run after failure")
	}
	if provider.LiveCount() != 0 {
		t.Errorf("vm leaked after failed run: %d live", provider.LiveCount())
	}
}

func TestRunContinueOnError(t *testing.T) {
	raw := `name: lint
steps:
  - name: Lint
    command: run lint
    continue_on_error: true
  - name: Test
    command: run test
`
	exec := vm.NewMockExecutor()
	exec.FailCommands("run lint")
	r, _ := testRunner(t, exec)

	report := r.Run(context.Background(), testDef(raw), pushEvent())

	// The tolerated failure does not stop the later step, and a run where
	// only tolerated steps failed still succeeds.
	executed := exec.Executed()
	if len(executed) != 2 || executed[1] != "run test" {
		t.Errorf("executed = %v, want both steps", executed)
	}
	if report.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", report.Status)
	}
}

func TestRunTimeoutIsFailure(t *testing.T) {
	raw := `name: slow
steps:
  - name: Hang
    command: sleep forever
  - name: Next
    command: echo next
`
	exec := vm.NewMockExecutor()
	exec.TimeoutCommands("sleep forever")
	r, _ := testRunner(t, exec)

	report := r.Run(context.Background(), testDef(raw), pushEvent())

	if report.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", report.Status)
	}
	if report.Results[0].ExitCode != vm.TimeoutExitCode {
		t.Errorf("exit code = %d, want %d", report.Results[0].ExitCode, vm.TimeoutExitCode)
	}
	for _, cmd := range exec.Executed() {
		if cmd == "echo next" {
			t.Error("step after timeout should not run")
		}
	}
}

func TestRunAbortedOnUnparseableDefinition(t *testing.T) {
	exec := vm.NewMockExecutor()
	r, provider := testRunner(t, exec)

	report := r.Run(context.Background(), testDef("name: nothing here"), pushEvent())

	if report.Status != StatusAborted {
		t.Fatalf("status = %s, want aborted", report.Status)
	}
	// No sandbox resources are consumed for an unparseable definition.
	if provider.Allocations() != 0 {
		t.Errorf("allocations = %d, want 0", provider.Allocations())
	}
	if report.Error == "" {
		t.Error("aborted report should carry the error")
	}
}

func TestRunFailedSetupSkipsSteps(t *testing.T) {
	exec := vm.NewMockExecutor()
	exec.FailCommands("apt-get update")
	r, _ := testRunner(t, exec)

	report := r.Run(context.Background(), testDef(threeStepPlan), pushEvent())

	if report.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", report.Status)
	}
	for _, cmd := range exec.Executed() {
		if cmd == "echo a" {
			t.Error("steps should not run after failed setup")
		}
	}
}

func TestRunCancelledReleasesSession(t *testing.T) {
	raw := `name: slow
steps:
  - name: Long build
    command: make everything
cleanup_commands: ["rm -rf /tmp/scratch"]
`
	exec := vm.NewMockExecutor()
	exec.SetLatency(10 * time.Second)
	r, provider := testRunner(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	report := r.Run(ctx, testDef(raw), pushEvent())

	// Cancellation aborts the in-flight step promptly rather than waiting
	// out its latency.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run took %v after cancellation", elapsed)
	}
	if report.Status != StatusFailed {
		t.Errorf("status = %s, want a terminal failed status", report.Status)
	}
	// The session-release path still runs: no VM may leak.
	if provider.LiveCount() != 0 {
		t.Errorf("vm leaked after cancellation: %d live", provider.LiveCount())
	}
	if provider.Releases() != 1 {
		t.Errorf("releases = %d, want 1", provider.Releases())
	}
}

func TestRunPassesEnvironment(t *testing.T) {
	raw := `name: env
environment:
  CARGO_TERM_COLOR: always
steps:
  - name: Build
    command: cargo build
`
	exec := vm.NewMockExecutor()
	r, _ := testRunner(t, exec)

	report := r.Run(context.Background(), testDef(raw), pushEvent())
	if report.Status != StatusSucceeded {
		t.Fatalf("status = %s", report.Status)
	}
	if env := exec.LastEnv(); env["CARGO_TERM_COLOR"] != "always" {
		t.Errorf("env = %v, want CARGO_TERM_COLOR delivered to the executor", env)
	}
}

func TestRunAll(t *testing.T) {
	exec := vm.NewMockExecutor()
	r, provider := testRunner(t, exec)

	defs := []*discovery.Definition{
		testDef("steps: [{name: A, command: echo one}]"),
		testDef("steps: [{name: B, command: echo two}]"),
		testDef("steps: [{name: C, command: echo three}]"),
	}

	reports := r.RunAll(context.Background(), defs, pushEvent())

	if len(reports) != 3 {
		t.Fatalf("reports = %d, want 3", len(reports))
	}
	for i, report := range reports {
		if report == nil || report.Status != StatusSucceeded {
			t.Errorf("report %d = %+v", i, report)
		}
	}
	if provider.LiveCount() != 0 {
		t.Errorf("vms leaked: %d live", provider.LiveCount())
	}
}
