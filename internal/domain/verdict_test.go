package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedVerdict(t *testing.T) {
	tests := []struct {
		kind       FailureKind
		wantReason string
	}{
		{FailureAPIKey, "API Key Missing"},
		{FailureService, "AI Service Error"},
		{FailureNetwork, "Network Error"},
		{FailureMalformed, "AI Parse Error"},
		{FailureCopiedPrompt, "Copied challenge text."},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			v := FailedVerdict(tt.kind)
			assert.Zero(t, v.Score)
			assert.Equal(t, tt.wantReason, v.Reason)
			assert.True(t, v.Failed())
		})
	}

	assert.False(t, Verdict{Score: 50, Reason: "ok"}.Failed())
}

func TestIsCopy(t *testing.T) {
	assert.True(t, IsCopy("  The sky is blue.  ", "The sky is blue."))
	assert.False(t, IsCopy("The sky is blue", "The sky is blue."))
	assert.False(t, IsCopy("", ""), "empty challenge never counts as copied")
}

func TestParseQuestionID(t *testing.T) {
	for _, in := range []string{"q1", "Q2", "3", " 1 "} {
		_, err := ParseQuestionID(in)
		assert.NoError(t, err, in)
	}

	_, err := ParseQuestionID("q4")
	require.ErrorIs(t, err, ErrInvalidQuestion)
}

func TestParseRound(t *testing.T) {
	r, err := ParseRound("ROUND2")
	require.NoError(t, err)
	assert.Equal(t, RoundImage, r)
	assert.Equal(t, TaskImage, TaskFor(r))
	assert.Equal(t, TaskText, TaskFor(RoundText))

	_, err = ParseRound("final")
	assert.ErrorIs(t, err, ErrInvalidRound)
}
