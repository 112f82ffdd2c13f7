package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassifier_ClassifyHTTPError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "groq"}

	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{401, ErrorTypeAuthentication, false},
		{403, ErrorTypeAuthentication, false},
		{404, ErrorTypeNotFound, false},
		{408, ErrorTypeTimeout, true},
		{422, ErrorTypeBadRequest, false},
		{429, ErrorTypeRateLimit, true},
		{500, ErrorTypeServerError, true},
		{503, ErrorTypeServerError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("HTTP %d", tt.status), func(t *testing.T) {
			pe := ec.ClassifyHTTPError(tt.status, "boom", nil)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
			assert.False(t, pe.IsTransport())
			assert.Contains(t, pe.Error(), fmt.Sprintf("HTTP %d", tt.status))
		})
	}
}

func TestErrorClassifier_ClassifyTransportError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "groq"}

	refused := &url.Error{Op: "Post", URL: "http://127.0.0.1:1", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}

	tests := []struct {
		name     string
		err      error
		wantOK   bool
		wantType ErrorType
	}{
		{name: "connection refused", err: refused, wantOK: true, wantType: ErrorTypeNetwork},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), wantOK: true, wantType: ErrorTypeTimeout},
		{name: "canceled", err: context.Canceled, wantOK: true, wantType: ErrorTypeNetwork},
		{name: "plain error", err: errors.New("decode failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe, ok := ec.ClassifyTransportError(tt.err)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantType, pe.Type)
			assert.True(t, pe.IsTransport())
			assert.ErrorIs(t, pe, tt.err)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(NewProviderError("groq", ErrorTypeNetwork, 0, "", context.Canceled)))
	assert.False(t, IsRetryable(NewProviderError("groq", ErrorTypeBadRequest, 400, "", nil)))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", NewProviderError("groq", ErrorTypeRateLimit, 429, "", nil))))
	assert.True(t, IsRetryable(NewProviderError("groq", ErrorTypeNetwork, 0, "", errors.New("reset"))))
}
