// Package session manages the lifecycle of sandbox execution sessions and
// enforces the global concurrency ceiling.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vulcanci/vulcan-core/internal/vm"
)

// ErrResourceExhausted is returned when a session cannot be admitted within
// the maximum queue wait. Callers surface it as a retriable condition.
var ErrResourceExhausted = errors.New("session capacity exhausted")

// State tracks where a session is in its lifecycle.
type State string

const (
	StateAllocating State = "allocating"
	StateAllocated  State = "allocated"
	StateExecuting  State = "executing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateReleasing  State = "releasing"
	StateReleased   State = "released"
)

// Session is one admitted unit of workflow execution bound to a VM. All
// methods are safe for concurrent use.
type Session struct {
	ID          string
	VMID        string
	AllocatedAt time.Time
	AllocWait   time.Duration // time spent provisioning the VM

	mu       sync.Mutex
	state    State
	released bool
	manager  *Manager
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState records a lifecycle transition. Transitions on a released session
// are ignored.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.state = state
}

// Release tears down the session's VM and frees its concurrency slot.
// Idempotent: the second and later calls are no-ops, so it is safe to defer
// Release and also call it on an error path.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.state = StateReleasing
	s.mu.Unlock()

	err := s.manager.provider.Release(ctx, s.VMID)

	s.mu.Lock()
	s.state = StateReleased
	s.mu.Unlock()

	s.manager.free(s.ID)

	if err != nil {
		return fmt.Errorf("release session %s: %w", s.ID, err)
	}
	return nil
}

// Options configures a Manager.
type Options struct {
	MaxConcurrent int           // concurrency ceiling, default 5
	MaxQueueWait  time.Duration // admission wait bound, default 30s
	AllocRetries  int           // attempts per allocation, default 3
	RetryDelay    time.Duration // pause between attempts, default 2s

	// Sleep is called between allocation retries. Tests inject a fake;
	// nil means time.Sleep honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager admits sessions up to a fixed concurrency ceiling. Waiters are
// served in arrival order.
type Manager struct {
	provider vm.Provider
	opts     Options
	slots    chan struct{}

	mu     sync.Mutex
	active map[string]*Session
}

// NewManager creates a manager over the given provider.
func NewManager(provider vm.Provider, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.MaxQueueWait <= 0 {
		opts.MaxQueueWait = 30 * time.Second
	}
	if opts.AllocRetries <= 0 {
		opts.AllocRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return &Manager{
		provider: provider,
		opts:     opts,
		slots:    make(chan struct{}, opts.MaxConcurrent),
		active:   make(map[string]*Session),
	}
}

// Acquire admits a new session, waiting for a free slot up to MaxQueueWait,
// then allocates a VM with bounded retries. On any failure the slot is
// returned so waiters are not starved.
func (m *Manager) Acquire(ctx context.Context, vmType string) (*Session, error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.opts.MaxQueueWait)
	defer cancel()

	select {
	case m.slots <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: waited %s for a free slot", ErrResourceExhausted, m.opts.MaxQueueWait)
	}

	s := &Session{
		ID:      uuid.NewString(),
		state:   StateAllocating,
		manager: m,
	}
	m.mu.Lock()
	m.active[s.ID] = s
	m.mu.Unlock()

	vmID, wait, err := m.allocate(ctx, vmType)
	if err != nil {
		m.mu.Lock()
		delete(m.active, s.ID)
		m.mu.Unlock()
		<-m.slots
		return nil, err
	}

	s.mu.Lock()
	s.VMID = vmID
	s.AllocatedAt = time.Now()
	s.AllocWait = wait
	s.state = StateAllocated
	s.mu.Unlock()

	log.Printf("session %s: allocated vm %s in %s", s.ID, vmID, wait)
	return s, nil
}

// ActiveSessions returns a snapshot of sessions holding a slot, including
// ones still allocating their VM.
func (m *Manager) ActiveSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s)
	}
	return out
}

func (m *Manager) allocate(ctx context.Context, vmType string) (string, time.Duration, error) {
	var lastErr error
	for attempt := 1; attempt <= m.opts.AllocRetries; attempt++ {
		vmID, wait, err := m.provider.Allocate(ctx, vmType)
		if err == nil {
			return vmID, wait, nil
		}
		lastErr = err
		log.Printf("session: allocation attempt %d/%d failed: %v", attempt, m.opts.AllocRetries, err)

		if attempt < m.opts.AllocRetries {
			if err := m.opts.Sleep(ctx, m.opts.RetryDelay); err != nil {
				return "", 0, err
			}
		}
	}
	return "", 0, fmt.Errorf("allocation gave up after %d attempts: %w", m.opts.AllocRetries, lastErr)
}

// free returns one slot. Called exactly once per admitted session, from
// Session.Release.
func (m *Manager) free(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	<-m.slots
}

// ActiveCount returns the number of sessions currently holding a slot.
func (m *Manager) ActiveCount() int {
	return len(m.slots)
}
