// Package runner orchestrates one workflow run end to end: parse the
// definition, admit a session, execute the plan inside the sandbox, and
// record outcomes for future suggestions.
package runner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vulcanci/vulcan-core/internal/discovery"
	"github.com/vulcanci/vulcan-core/internal/learning"
	"github.com/vulcanci/vulcan-core/internal/plan"
	"github.com/vulcanci/vulcan-core/internal/session"
	"github.com/vulcanci/vulcan-core/internal/vm"
	"github.com/vulcanci/vulcan-core/internal/webhook"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusAborted means the run never reached execution: the definition
	// did not parse or no session could be admitted.
	StatusAborted Status = "aborted"
)

// RunReport summarizes one completed workflow run.
type RunReport struct {
	WorkflowName  string             `json:"workflow_name"`
	Status        Status             `json:"status"`
	SessionID     string             `json:"session_id,omitempty"`
	Results       []vm.CommandResult `json:"results"`
	TotalDuration time.Duration      `json:"total_duration"`
	Summary       string             `json:"summary"`
	Error         string             `json:"error,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
}

// Options configures a Runner.
type Options struct {
	VMType      string // sandbox flavor requested per run, default "standard"
	MaxParallel int    // ceiling for RunAll, default 4
}

// Runner wires the parser, session manager, and executor together. The
// learning store is optional; when present, every executed step's outcome is
// recorded.
type Runner struct {
	parser   *plan.Parser
	sessions *session.Manager
	executor vm.Executor
	store    *learning.Store
	opts     Options
}

// New creates a runner. store may be nil to disable outcome recording.
func New(parser *plan.Parser, sessions *session.Manager, executor vm.Executor, store *learning.Store, opts Options) *Runner {
	if opts.VMType == "" {
		opts.VMType = "standard"
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	return &Runner{
		parser:   parser,
		sessions: sessions,
		executor: executor,
		store:    store,
		opts:     opts,
	}
}

// Run executes one workflow definition for the triggering event. The session
// is released on every path once admitted, and cleanup commands run even
// when a step fails.
func (r *Runner) Run(ctx context.Context, def *discovery.Definition, ev *webhook.Event) *RunReport {
	report := &RunReport{
		WorkflowName: def.Name,
		Status:       StatusAborted,
		StartedAt:    time.Now(),
	}
	defer func() {
		report.TotalDuration = time.Since(report.StartedAt)
		report.Summary = summarize(report)
	}()

	p, err := r.parser.Parse(ctx, def.Raw, def.Name)
	if err != nil {
		report.Error = err.Error()
		log.Printf("runner: %s aborted: %v", def.Name, err)
		return report
	}
	if p.Name != "" {
		report.WorkflowName = p.Name
	}

	sess, err := r.sessions.Acquire(ctx, r.opts.VMType)
	if err != nil {
		report.Error = err.Error()
		log.Printf("runner: %s aborted: %v", report.WorkflowName, err)
		return report
	}
	defer sess.Release(context.WithoutCancel(ctx))
	report.SessionID = sess.ID

	sess.SetState(session.StateExecuting)
	failed := r.executePlan(ctx, sess, p, report)

	if failed {
		report.Status = StatusFailed
		sess.SetState(session.StateFailed)
	} else {
		report.Status = StatusSucceeded
		sess.SetState(session.StateSucceeded)
	}

	log.Printf("runner: %s %s (%d steps, %s)",
		report.WorkflowName, report.Status, len(report.Results),
		report.TotalDuration.Round(time.Millisecond))
	return report
}

// executePlan runs setup, steps, and cleanup in order. It reports whether
// any non-tolerated failure occurred. Cleanup always runs.
func (r *Runner) executePlan(ctx context.Context, sess *session.Session, p *plan.Plan, report *RunReport) bool {
	failed := false

	for i, cmd := range p.SetupCommands {
		res := r.runStep(ctx, sess, plan.Step{
			Name:           fmt.Sprintf("setup %d", i+1),
			Command:        cmd,
			WorkingDir:     plan.DefaultWorkingDir,
			TimeoutSeconds: plan.DefaultTimeoutSeconds,
		}, p.Environment, report)
		if res == nil || !res.Succeeded() {
			failed = true
			break
		}
	}

	if !failed {
		for _, step := range p.Steps {
			res := r.runStep(ctx, sess, step, p.Environment, report)
			if res != nil && res.Succeeded() {
				continue
			}
			if step.ContinueOnError {
				log.Printf("runner: step %q failed, continuing by policy", step.Name)
				continue
			}
			failed = true
			break
		}
	}

	// Cleanup is best effort and never changes the run outcome.
	for i, cmd := range p.CleanupCommands {
		res := r.runStep(ctx, sess, plan.Step{
			Name:           fmt.Sprintf("cleanup %d", i+1),
			Command:        cmd,
			WorkingDir:     plan.DefaultWorkingDir,
			TimeoutSeconds: plan.DefaultTimeoutSeconds,
		}, p.Environment, report)
		if res == nil || !res.Succeeded() {
			log.Printf("runner: cleanup command %d failed", i+1)
		}
	}

	if r.store != nil && len(p.CachePaths) > 0 && len(p.Steps) > 0 {
		sig := learning.Signature(p.Steps[0].Command)
		if err := r.store.RecordCachePaths(sig, p.CachePaths); err != nil {
			log.Printf("runner: recording cache paths failed: %v", err)
		}
	}

	return failed
}

// runStep executes one step and records its outcome. An infrastructure
// error (nil result) counts as a failure of the step.
func (r *Runner) runStep(ctx context.Context, sess *session.Session, step plan.Step, env map[string]string, report *RunReport) *vm.CommandResult {
	res, err := r.executor.Execute(ctx, sess.VMID, step, env)
	if err != nil {
		log.Printf("runner: step %q execution error: %v", step.Name, err)
		report.Results = append(report.Results, vm.CommandResult{
			StepName: step.Name,
			ExitCode: -1,
			Stderr:   err.Error(),
		})
		return nil
	}

	report.Results = append(report.Results, *res)
	r.record(step.Command, res)
	return res
}

func (r *Runner) record(command string, res *vm.CommandResult) {
	if r.store == nil {
		return
	}
	outcome := learning.OutcomeSuccess
	if !res.Succeeded() {
		outcome = learning.OutcomeFailure
	}
	if err := r.store.Record(learning.Signature(command), outcome, res.Duration); err != nil {
		log.Printf("runner: recording outcome failed: %v", err)
	}
}

// RunAll executes every definition with bounded parallelism and returns the
// reports in the definitions' order.
func (r *Runner) RunAll(ctx context.Context, defs []*discovery.Definition, ev *webhook.Event) []*RunReport {
	reports := make([]*RunReport, len(defs))
	sem := make(chan struct{}, r.opts.MaxParallel)

	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Add(1)
		go func(i int, def *discovery.Definition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[i] = r.Run(ctx, def, ev)
		}(i, def)
	}
	wg.Wait()

	return reports
}

// summarize renders a short human-readable account of the run.
func summarize(report *RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", report.WorkflowName, report.Status)

	if len(report.Results) > 0 {
		passed := 0
		for _, res := range report.Results {
			if res.ExitCode == 0 {
				passed++
			}
		}
		fmt.Fprintf(&b, ", %d/%d steps passed", passed, len(report.Results))
	}

	fmt.Fprintf(&b, " in %s", humanizeDuration(report.TotalDuration))

	if report.Error != "" {
		fmt.Fprintf(&b, " (%s)", report.Error)
	}
	return b.String()
}

func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return strings.TrimSpace(humanize.RelTime(time.Now().Add(-d), time.Now(), "", ""))
}
