package vm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vulcanci/vulcan-core/internal/plan"
)

// TimeoutExitCode is the synthetic exit code reported when a step exceeds
// its timeout, mirroring the shell convention for killed-by-timeout.
const TimeoutExitCode = 124

// CommandResult is the outcome of one executed step.
type CommandResult struct {
	StepName string        `json:"step_name"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Succeeded reports whether the step exited cleanly.
func (r *CommandResult) Succeeded() bool {
	return r.ExitCode == 0
}

// Executor runs one plan step inside an allocated VM, exporting env into
// the step's shell. Implementations enforce the step's timeout and report a
// timeout as a result with TimeoutExitCode rather than an error: a timed-out
// step is a failed step, not an infrastructure fault.
type Executor interface {
	Execute(ctx context.Context, vmID string, step plan.Step, env map[string]string) (*CommandResult, error)
}

// HTTPExecutor executes commands via the control plane's execute endpoint.
type HTTPExecutor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPExecutor creates an executor against the control plane at baseURL.
func NewHTTPExecutor(baseURL, apiKey string) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Per-request deadlines come from the step timeout via ctx; the
		// client itself stays unbounded.
		httpClient: &http.Client{},
	}
}

// Execute posts the step's command to the VM and waits for completion, up to
// the step's timeout. On timeout it returns a synthetic failed result.
func (e *HTTPExecutor) Execute(ctx context.Context, vmID string, step plan.Step, env map[string]string) (*CommandResult, error) {
	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	payload := map[string]interface{}{
		"vm_id":           vmID,
		"code":            step.Command,
		"working_dir":     step.WorkingDir,
		"timeout_seconds": step.TimeoutSeconds,
	}
	if len(env) > 0 {
		payload["env"] = env
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/vms/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timeoutResult(step, time.Since(start)), nil
		}
		return nil, fmt.Errorf("execute step %q: %w", step.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("execute step %q: control plane returned %d: %s", step.Name, resp.StatusCode, string(respBody))
	}

	var result struct {
		ExitCode int    `json:"exit_code"`
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("execute step %q: invalid response: %w", step.Name, err)
	}

	return &CommandResult{
		StepName: step.Name,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		Duration: time.Since(start),
	}, nil
}

func timeoutResult(step plan.Step, elapsed time.Duration) *CommandResult {
	return &CommandResult{
		StepName: step.Name,
		ExitCode: TimeoutExitCode,
		Stderr:   fmt.Sprintf("step timed out after %d seconds", step.TimeoutSeconds),
		Duration: elapsed,
		TimedOut: true,
	}
}
