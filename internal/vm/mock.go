package vm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vulcanci/vulcan-core/internal/plan"
)

// MockProvider is an in-memory Provider for tests and dry runs. It tracks
// live allocations and can be told to fail the first N allocations.
type MockProvider struct {
	mu           sync.Mutex
	nextID       int
	live         map[string]bool
	failuresLeft int
	allocations  int
	releases     int
}

// NewMockProvider creates a provider that always succeeds.
func NewMockProvider() *MockProvider {
	return &MockProvider{live: make(map[string]bool)}
}

// FailNext makes the next n Allocate calls return ErrAllocationFailed.
func (m *MockProvider) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failuresLeft = n
}

func (m *MockProvider) Allocate(ctx context.Context, vmType string) (string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocations++
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return "", 0, fmt.Errorf("%w: induced failure", ErrAllocationFailed)
	}

	m.nextID++
	id := fmt.Sprintf("mock-vm-%d", m.nextID)
	m.live[id] = true
	return id, time.Millisecond, nil
}

func (m *MockProvider) Release(ctx context.Context, vmID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releases++
	delete(m.live, vmID)
	return nil
}

// LiveCount returns the number of currently allocated VMs.
func (m *MockProvider) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Allocations returns the total Allocate calls, including failed ones.
func (m *MockProvider) Allocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocations
}

// Releases returns the total Release calls.
func (m *MockProvider) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// MockExecutor is an in-memory Executor. Commands containing any configured
// failure substring exit non-zero; everything else succeeds instantly.
type MockExecutor struct {
	mu          sync.Mutex
	failOn      []string
	timeoutOn   []string
	executed    []string
	lastEnv     map[string]string
	perCallWait time.Duration
}

// NewMockExecutor creates an executor where every command succeeds.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// FailCommands marks commands containing any of the substrings as failing
// with exit code 1.
func (m *MockExecutor) FailCommands(substrings ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = append(m.failOn, substrings...)
}

// TimeoutCommands marks commands containing any of the substrings as timing
// out.
func (m *MockExecutor) TimeoutCommands(substrings ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeoutOn = append(m.timeoutOn, substrings...)
}

// SetLatency makes every execution take d of wall time.
func (m *MockExecutor) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perCallWait = d
}

// Executed returns the commands run so far, in order.
func (m *MockExecutor) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}

// LastEnv returns the environment passed with the most recent execution.
func (m *MockExecutor) LastEnv() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEnv
}

func (m *MockExecutor) Execute(ctx context.Context, vmID string, step plan.Step, env map[string]string) (*CommandResult, error) {
	m.mu.Lock()
	m.executed = append(m.executed, step.Command)
	m.lastEnv = env
	failOn := m.failOn
	timeoutOn := m.timeoutOn
	wait := m.perCallWait
	m.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, s := range timeoutOn {
		if strings.Contains(step.Command, s) {
			return timeoutResult(step, wait), nil
		}
	}
	for _, s := range failOn {
		if strings.Contains(step.Command, s) {
			return &CommandResult{
				StepName: step.Name,
				ExitCode: 1,
				Stderr:   "induced failure",
				Duration: wait,
			}, nil
		}
	}

	return &CommandResult{
		StepName: step.Name,
		ExitCode: 0,
		Stdout:   "ok",
		Duration: wait,
	}, nil
}
