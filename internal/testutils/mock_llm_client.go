// Package testutils holds hand-written doubles shared by package tests.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/gavel-arena/internal/ports"
)

// MockLLMClient implements ports.LLMClient with deterministic responses
// chosen by substring match on the prompt. It lets judge and pipeline
// tests drive the real prompt path without a provider.
type MockLLMClient struct {
	mu sync.Mutex
	// model is the mock model identifier.
	model string
	// responses is checked in insertion order; the first pattern found in
	// the prompt wins.
	responses []MockResponse
	// fallback is returned when nothing matches.
	fallback string
	// prompts records every prompt received.
	prompts []string
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt.
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// Err, when set, is returned instead of Response.
	Err error
}

// DefaultMockVerdict is returned when no pattern matches.
const DefaultMockVerdict = `{"score": 50, "reason": "Partially matches the intended prompt."}`

// NewMockLLMClient creates a client that answers every prompt with
// DefaultMockVerdict until patterns are added.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{model: model, fallback: DefaultMockVerdict}
}

// AddResponse appends a response pattern.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
}

// AddVerdict is AddResponse for the common JSON verdict case.
func (m *MockLLMClient) AddVerdict(pattern string, score float64, reason string) {
	m.AddResponse(MockResponse{
		Pattern:  pattern,
		Response: fmt.Sprintf(`{"score": %g, "reason": %q}`, score, reason),
	})
}

// Complete returns the first matching response.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			if r.Err != nil {
				return "", r.Err
			}
			return r.Response, nil
		}
	}
	return m.fallback, nil
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(1, len(text)/4), nil
}

// GetModel returns the mock model identifier.
func (m *MockLLMClient) GetModel() string { return m.model }

// Prompts returns a copy of the prompts received so far.
func (m *MockLLMClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

var _ ports.LLMClient = (*MockLLMClient)(nil)
