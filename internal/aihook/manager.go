package aihook

import (
	"context"
	"fmt"
	"time"
)

// Manager wraps a single configured Hook with request throttling and a
// per-call timeout, the two concerns the action workflow needs from its
// optional LLM collaborator regardless of which provider is wired in.
// Unlike the teacher's AIManager, this does not maintain a
// priority-sorted fallback chain across multiple providers - the spec
// calls for exactly one pluggable hook per repository (§4.7 step 5), not
// a fallback cascade.
type Manager struct {
	hook    Hook
	limiter *RateLimiter
	timeout time.Duration
}

// NewManager wraps hook with a rate limiter (requests per window) and a
// per-call timeout. A nil hook is replaced with Disabled().
func NewManager(hook Hook, requestsPerWindow int, window, timeout time.Duration) *Manager {
	if hook == nil {
		hook = Disabled()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		hook:    hook,
		limiter: NewRateLimiter(requestsPerWindow, window),
		timeout: timeout,
	}
}

// Name returns the wrapped hook's provider name.
func (m *Manager) Name() string { return m.hook.Name() }

// ReviewChanges asks the wrapped hook whether the working diff should
// be committed, enforcing the rate limiter before making the call.
func (m *Manager) ReviewChanges(ctx context.Context, diff string) (*ReviewResult, error) {
	if !m.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", m.hook.Name(), ErrRateLimited)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.hook.ReviewChanges(callCtx, diff)
	if err != nil {
		return nil, fmt.Errorf("%s: review_changes: %w", m.hook.Name(), err)
	}
	return result, nil
}

// GenerateCommitMessage asks the wrapped hook for a commit message,
// enforcing the rate limiter before making the call.
func (m *Manager) GenerateCommitMessage(ctx context.Context, diff string) (string, error) {
	if !m.limiter.Allow() {
		return "", fmt.Errorf("%s: %w", m.hook.Name(), ErrRateLimited)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg, err := m.hook.GenerateCommitMessage(callCtx, diff)
	if err != nil {
		return "", fmt.Errorf("%s: generate_commit_message: %w", m.hook.Name(), err)
	}
	return msg, nil
}
