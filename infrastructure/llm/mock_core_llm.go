package llm

import (
	"context"
	"sync"
)

// DefaultMockResponse is a well-formed judge reply.
const DefaultMockResponse = `{"score": 80, "reason": "Covers the target closely."}`

// MockCoreLLM is a scriptable CoreLLM for tests. Responses and Errors are
// consumed one per call; when exhausted, Response and Error apply.
type MockCoreLLM struct {
	mu sync.Mutex

	Response  string
	Error     error
	TokensIn  int
	TokensOut int
	Model     string

	Responses []string
	Errors    []error

	// Block, when set, makes DoRequest wait on it or on ctx.
	Block chan struct{}

	CallCount  int
	LastPrompt string
	LastOpts   map[string]any
}

// NewMockCoreLLM returns a mock that answers with DefaultMockResponse.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  DefaultMockResponse,
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// DoRequest implements CoreLLM.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastPrompt = prompt
	m.LastOpts = opts
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx := call - 1; idx < len(m.Errors) && m.Errors[idx] != nil {
		return "", 0, 0, m.Errors[idx]
	}
	if idx := call - 1; idx < len(m.Responses) {
		return m.Responses[idx], m.TokensIn, m.TokensOut, nil
	}
	if m.Error != nil {
		return "", 0, 0, m.Error
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

// GetModel implements CoreLLM.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel implements CoreLLM.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// Calls returns the number of DoRequest calls so far.
func (m *MockCoreLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
