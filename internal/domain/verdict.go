package domain

import "strings"

// Score bounds accepted from a judge.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// TaskType tells the judge what kind of output the hidden prompt produced.
type TaskType string

const (
	TaskText  TaskType = "TEXT GENERATION"
	TaskImage TaskType = "IMAGE GENERATION"
)

// TaskFor maps a scored round to its task type.
func TaskFor(r Round) TaskType {
	if r == RoundImage {
		return TaskImage
	}
	return TaskText
}

// JudgeRequest carries everything the judge sees for one answer.
type JudgeRequest struct {
	// Task is the round's task type.
	Task TaskType

	// Submission is the participant's prompt.
	Submission string

	// Target is the hidden prompt the submission is compared against.
	Target string

	// Reference is the result shown to participants (text round) or the
	// fixed comparison instruction (image round).
	Reference string
}

// FailureKind classifies why a judge produced no usable score.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureAPIKey       FailureKind = "api_key_missing"
	FailureService      FailureKind = "service_error"
	FailureNetwork      FailureKind = "network_error"
	FailureMalformed    FailureKind = "malformed_response"
	FailureCopiedPrompt FailureKind = "copied_challenge_text"
)

// Reason returns the participant-facing reason for a failure.
func (k FailureKind) Reason() string {
	switch k {
	case FailureAPIKey:
		return "API Key Missing"
	case FailureService:
		return "AI Service Error"
	case FailureNetwork:
		return "Network Error"
	case FailureMalformed:
		return "AI Parse Error"
	case FailureCopiedPrompt:
		return "Copied challenge text."
	}
	return ""
}

// Verdict is the outcome of judging one answer.
type Verdict struct {
	Score   float64     `json:"score"`
	Reason  string      `json:"reason"`
	Failure FailureKind `json:"failure,omitempty"`
}

// Failed reports whether the verdict stands in for a judge failure.
func (v Verdict) Failed() bool { return v.Failure != FailureNone }

// FailedVerdict returns the zero-score verdict for a failure kind.
func FailedVerdict(kind FailureKind) Verdict {
	return Verdict{Score: 0, Reason: kind.Reason(), Failure: kind}
}

// IsCopy reports whether the submission is the displayed challenge text.
func IsCopy(submission, challenge string) bool {
	c := strings.TrimSpace(challenge)
	return c != "" && strings.TrimSpace(submission) == c
}
