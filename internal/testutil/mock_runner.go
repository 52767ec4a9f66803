package testutil

import (
	"context"
	"strings"
	"sync"
)

// MockRunner implements command.Runner with canned responses for testing.
// All methods are safe for concurrent use.
type MockRunner struct {
	mu      sync.Mutex
	replies map[string]Reply // joined args -> reply
	calls   []string

	// Default is returned for unmatched invocations.
	Default Reply
}

// Reply is one canned command result.
type Reply struct {
	Output string
	Code   int
}

// NewMockRunner returns a MockRunner whose unmatched invocations fail with
// code 1 and empty output.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		replies: make(map[string]Reply),
		Default: Reply{Code: 1},
	}
}

// On registers the reply for one exact argument list.
func (m *MockRunner) On(args ...string) *replyBuilder {
	return &replyBuilder{m: m, key: strings.Join(args, " ")}
}

type replyBuilder struct {
	m   *MockRunner
	key string
}

// Return sets the canned output and code.
func (b *replyBuilder) Return(output string, code int) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	b.m.replies[b.key] = Reply{Output: output, Code: code}
}

// Run returns the canned reply for args and records the call.
func (m *MockRunner) Run(ctx context.Context, args ...string) (string, int) {
	key := strings.Join(args, " ")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, key)
	if r, ok := m.replies[key]; ok {
		return r.Output, r.Code
	}
	return m.Default.Output, m.Default.Code
}

// Calls returns the recorded invocations, oldest first.
func (m *MockRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
