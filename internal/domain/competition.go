package domain

import (
	"time"
)

// Warning is an administrator message shown to participants.
type Warning struct {
	Message  string    `json:"message"`
	IssuedAt time.Time `json:"issuedAt"`
}

// valid reports whether the warning carries a message.
func (w *Warning) valid() bool { return w != nil && w.Message != "" }

// TextRoundContent is the content of the text round. Q1..Q3 are the result
// texts shown to participants; Answer1..Answer3 are the hidden target prompts.
type TextRoundContent struct {
	Q1           string `json:"q1"`
	Q2           string `json:"q2"`
	Q3           string `json:"q3"`
	Answer1      string `json:"q1Ans"`
	Answer2      string `json:"q2Ans"`
	Answer3      string `json:"q3Ans"`
	TimerMinutes int    `json:"timerDuration"`
}

// Question returns the displayed text of q.
func (c TextRoundContent) Question(q QuestionID) string {
	switch q {
	case Q1:
		return c.Q1
	case Q2:
		return c.Q2
	case Q3:
		return c.Q3
	}
	return ""
}

// AnswerKey returns the hidden target prompt of q.
func (c TextRoundContent) AnswerKey(q QuestionID) string {
	switch q {
	case Q1:
		return c.Answer1
	case Q2:
		return c.Answer2
	case Q3:
		return c.Answer3
	}
	return ""
}

// ImageRoundContent is the content of the image round. Image1..Image3 are
// image locations; Answer1..Answer3 the prompts that generated them.
type ImageRoundContent struct {
	Image1       string `json:"q1Img"`
	Image2       string `json:"q2Img"`
	Image3       string `json:"q3Img"`
	Answer1      string `json:"q1Ans"`
	Answer2      string `json:"q2Ans"`
	Answer3      string `json:"q3Ans"`
	TimerMinutes int    `json:"timerDuration"`
}

// Image returns the image location of q.
func (c ImageRoundContent) Image(q QuestionID) string {
	switch q {
	case Q1:
		return c.Image1
	case Q2:
		return c.Image2
	case Q3:
		return c.Image3
	}
	return ""
}

// AnswerKey returns the hidden prompt of q.
func (c ImageRoundContent) AnswerKey(q QuestionID) string {
	switch q {
	case Q1:
		return c.Answer1
	case Q2:
		return c.Answer2
	case Q3:
		return c.Answer3
	}
	return ""
}

// CompetitionConfig is the single live competition aggregate. Writers must
// replace it through a compare-and-swap on Version.
type CompetitionConfig struct {
	Version        uint64            `json:"version"`
	SecretHash     string            `json:"-"`
	Rounds         RoundFlags        `json:"rounds"`
	Round1         TextRoundContent  `json:"textRoundConfig"`
	Round2         ImageRoundContent `json:"imgRoundConfig"`
	Round1Deadline *time.Time        `json:"round1EndTime"`
	Round2Deadline *time.Time        `json:"round2EndTime"`
	GlobalWarning  *Warning          `json:"globalWarning"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// NewCompetitionConfig returns the lazily created default: lobby active, no
// content, no deadlines.
func NewCompetitionConfig(secretHash string, now time.Time) CompetitionConfig {
	return CompetitionConfig{
		Version:    1,
		SecretHash: secretHash,
		Rounds:     Activate(RoundLobby),
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (c CompetitionConfig) Clone() CompetitionConfig {
	out := c
	out.Round1Deadline = cloneTime(c.Round1Deadline)
	out.Round2Deadline = cloneTime(c.Round2Deadline)
	if c.GlobalWarning != nil {
		w := *c.GlobalWarning
		out.GlobalWarning = &w
	}
	return out
}

// Transition applies an exclusive round transition at now.
//
// Turning a round on sets its flag and clears the others. A positive timer
// starts that round's deadline and clears the other round's; a zero timer
// clears its own deadline. Turning on the lobby clears both deadlines.
// Turning a round off clears only that flag and that round's deadline.
func (c *CompetitionConfig) Transition(r Round, on bool, now time.Time) error {
	if _, err := ParseRound(string(r)); err != nil {
		return err
	}

	if !on {
		c.Rounds.clear(r)
		switch r {
		case RoundText:
			c.Round1Deadline = nil
		case RoundImage:
			c.Round2Deadline = nil
		}
		return nil
	}

	c.Rounds = Activate(r)
	switch r {
	case RoundText:
		if d := c.Round1.TimerMinutes; d > 0 {
			c.Round1Deadline = deadlineAt(now, d)
			c.Round2Deadline = nil
		} else {
			c.Round1Deadline = nil
		}
	case RoundImage:
		if d := c.Round2.TimerMinutes; d > 0 {
			c.Round2Deadline = deadlineAt(now, d)
			c.Round1Deadline = nil
		} else {
			c.Round2Deadline = nil
		}
	default:
		c.Round1Deadline = nil
		c.Round2Deadline = nil
	}
	return nil
}

// Deadline returns the deadline of a scored round.
func (c CompetitionConfig) Deadline(r Round) *time.Time {
	switch r {
	case RoundText:
		return c.Round1Deadline
	case RoundImage:
		return c.Round2Deadline
	}
	return nil
}

// AcceptsSubmissions reports whether round r accepts answers at now.
// A round must be active, and if it carries a deadline now must not be
// past it.
func (c CompetitionConfig) AcceptsSubmissions(r Round, now time.Time) error {
	if !r.Scored() {
		return NewRoundClosedError(r, "round does not accept submissions")
	}
	if !c.Rounds.IsActive(r) {
		return NewRoundClosedError(r, "round is not active")
	}
	if d := c.Deadline(r); d != nil && now.After(*d) {
		return NewRoundClosedError(r, "deadline passed")
	}
	return nil
}

// EffectiveWarning resolves which warning a participant sees. The
// participant's own warning wins only if issued strictly after the global
// warning; on equal timestamps the global warning is kept.
func EffectiveWarning(global, individual *Warning) *Warning {
	var active *Warning
	if global.valid() {
		active = global
	}
	if individual.valid() {
		if active == nil || individual.IssuedAt.After(active.IssuedAt) {
			active = individual
		}
	}
	if active == nil {
		return nil
	}
	w := *active
	return &w
}

func deadlineAt(now time.Time, minutes int) *time.Time {
	t := now.Add(time.Duration(minutes) * time.Minute)
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
