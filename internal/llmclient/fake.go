package llmclient

import (
	"context"
	"sync"

	"github.com/flowstack/sessioncore/pkg/models"
)

// FakeClient is a scripted, in-memory Client for tests and local
// development without API credentials, grounded on the teacher's
// providers package tests that drive AnthropicProvider off canned
// responses rather than live API calls.
type FakeClient struct {
	mu        sync.Mutex
	responses []models.MemoryMessage
	calls     []Request
	err       error
}

// NewFakeClient returns a FakeClient that replies with responses in
// order, one per Ask call, repeating the last one once exhausted.
func NewFakeClient(responses ...models.MemoryMessage) *FakeClient {
	return &FakeClient{responses: responses}
}

// FailWith makes every subsequent Ask call return err.
func (f *FakeClient) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Ask implements Client.
func (f *FakeClient) Ask(ctx context.Context, req Request) (models.MemoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return models.MemoryMessage{}, f.err
	}
	if len(f.responses) == 0 {
		return models.MemoryMessage{Role: models.RoleAssistant, Content: "{}"}, nil
	}
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// Calls returns every request Ask has observed, in order.
func (f *FakeClient) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}
