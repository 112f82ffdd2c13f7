package llm

import (
	"sync"
)

// BaseProvider holds the model name behind a lock so SetModel is safe
// while requests are in flight.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model for subsequent requests.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the provider-neutral form of a request's option map.
type RequestOptions struct {
	MaxTokens int
	Model     string
	// Temperature is nil when the provider default should be used.
	Temperature *float64
	TopP        *float64
	System      string
	// JSONMode asks the provider to constrain output to a JSON object.
	JSONMode bool
}

// ParseRequestOptions reads the recognized keys of opts, falling back to
// defaults for missing or invalid values. The system prompt may be given
// as "system" or "system_prompt"; JSON mode is requested with
// "response_format": {"type": "json_object"}.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: ExtractOptionalInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:     ExtractOptionalString(opts, "model", defaultModel, IsNonEmptyString),
		System:    ExtractOptionalString(opts, "system", "", nil),
		JSONMode:  wantsJSON(opts),
	}
	if options.System == "" {
		options.System = ExtractOptionalString(opts, "system_prompt", "", nil)
	}

	if temp := ExtractOptionalFloat64(opts, "temperature", -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}
	if topP := ExtractOptionalFloat64(opts, "top_p", -1, IsValidTopP); topP != -1 {
		options.TopP = &topP
	}

	return options
}

func wantsJSON(opts map[string]any) bool {
	switch rf := opts["response_format"].(type) {
	case map[string]string:
		return rf["type"] == "json_object"
	case map[string]any:
		return rf["type"] == "json_object"
	case string:
		return rf == "json_object"
	}
	return false
}

// ExtractOptionalInt returns opts[key] when it is an int accepted by
// validator, otherwise defaultVal.
func ExtractOptionalInt(opts map[string]any, key string, defaultVal int, validator func(int) bool) int {
	v, ok := opts[key].(int)
	if !ok || (validator != nil && !validator(v)) {
		return defaultVal
	}
	return v
}

// ExtractOptionalString returns opts[key] when it is a string accepted by
// validator, otherwise defaultVal.
func ExtractOptionalString(opts map[string]any, key string, defaultVal string, validator func(string) bool) string {
	v, ok := opts[key].(string)
	if !ok || (validator != nil && !validator(v)) {
		return defaultVal
	}
	return v
}

// ExtractOptionalFloat64 returns opts[key] when it is a float64 (or a
// float32) accepted by validator, otherwise defaultVal.
func ExtractOptionalFloat64(opts map[string]any, key string, defaultVal float64, validator func(float64) bool) float64 {
	var v float64
	switch raw := opts[key].(type) {
	case float64:
		v = raw
	case float32:
		v = float64(raw)
	default:
		return defaultVal
	}
	if validator != nil && !validator(v) {
		return defaultVal
	}
	return v
}

// TokenCounter estimates token counts when a provider omits usage data.
type TokenCounter struct {
	// CharactersPerToken is the average characters per token.
	CharactersPerToken float64
}

// NewTokenCounter returns a counter using four characters per token.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens returns the estimated token count of text, rounding up.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := int(float64(len(text))/tc.CharactersPerToken + 0.999)
	if n < 1 {
		n = 1
	}
	return n
}

// GetTokenCount prefers a positive actual count and estimates otherwise.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}
