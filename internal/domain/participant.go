package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuestionScores holds the best score per question of one round.
type QuestionScores struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
	Q3 float64 `json:"q3"`
}

// Get returns the score stored for q.
func (s QuestionScores) Get(q QuestionID) float64 {
	switch q {
	case Q1:
		return s.Q1
	case Q2:
		return s.Q2
	case Q3:
		return s.Q3
	}
	return 0
}

func (s *QuestionScores) set(q QuestionID, v float64) {
	switch q {
	case Q1:
		s.Q1 = v
	case Q2:
		s.Q2 = v
	case Q3:
		s.Q3 = v
	}
}

// Sum returns the round total.
func (s QuestionScores) Sum() float64 { return s.Q1 + s.Q2 + s.Q3 }

// RoundTotals holds the derived per-round totals.
type RoundTotals struct {
	Round1 float64 `json:"round1"`
	Round2 float64 `json:"round2"`
}

// Participant is the permanent record of one competitor. TotalScore and
// Totals are derived; only Recompute writes them.
type Participant struct {
	ID            uuid.UUID         `json:"id"`
	Username      string            `json:"username"`
	Seq           int64             `json:"seq"`
	IPAddress     string            `json:"ipAddress"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastSeenAt    time.Time         `json:"lastSeen"`
	Kicked        bool              `json:"kicked"`
	Round1Scores  QuestionScores    `json:"questionScores"`
	Round2Scores  QuestionScores    `json:"imgScores"`
	Totals        RoundTotals       `json:"scores"`
	TotalScore    float64           `json:"totalScore"`
	Round1Answers map[string]string `json:"answers"`
	Round2Answers map[string]string `json:"imgAnswers"`
	Warning       *Warning          `json:"warning,omitempty"`
}

// NewParticipant creates a record with zeroed scores. Seq is assigned by
// the store.
func NewParticipant(username string, now time.Time) Participant {
	return Participant{
		ID:            uuid.New(),
		Username:      username,
		CreatedAt:     now,
		LastSeenAt:    now,
		Round1Answers: map[string]string{},
		Round2Answers: map[string]string{},
	}
}

// Scores returns the per-question bests of round r.
func (p Participant) Scores(r Round) QuestionScores {
	if r == RoundImage {
		return p.Round2Scores
	}
	return p.Round1Scores
}

// ApplyScore retains max(previous best, attempt) for q in round r, records
// the answer text and recomputes the derived totals. It returns the stored
// best. Applying the same attempt twice changes nothing.
func (p *Participant) ApplyScore(r Round, q QuestionID, attempt float64, answer string) float64 {
	scores := &p.Round1Scores
	answers := &p.Round1Answers
	if r == RoundImage {
		scores = &p.Round2Scores
		answers = &p.Round2Answers
	}

	best := scores.Get(q)
	if attempt > best {
		best = attempt
		scores.set(q, best)
	}
	if answer != "" {
		if *answers == nil {
			*answers = map[string]string{}
		}
		(*answers)[string(q)] = answer
	}

	p.Recompute()
	return best
}

// Recompute derives the round totals and TotalScore from the per-question
// bests.
func (p *Participant) Recompute() {
	p.Totals.Round1 = p.Round1Scores.Sum()
	p.Totals.Round2 = p.Round2Scores.Sum()
	p.TotalScore = p.Totals.Round1 + p.Totals.Round2
}

// Reset zeroes every score and answer. Identity, heartbeat, kick state and
// warning are kept.
func (p *Participant) Reset() {
	p.Round1Scores = QuestionScores{}
	p.Round2Scores = QuestionScores{}
	p.Round1Answers = map[string]string{}
	p.Round2Answers = map[string]string{}
	p.Recompute()
}

// IsOnline reports whether the last heartbeat falls inside window.
func (p Participant) IsOnline(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastSeenAt) < window
}

// Clone returns a deep copy.
func (p Participant) Clone() Participant {
	out := p
	out.Round1Answers = cloneAnswers(p.Round1Answers)
	out.Round2Answers = cloneAnswers(p.Round2Answers)
	if p.Warning != nil {
		w := *p.Warning
		out.Warning = &w
	}
	return out
}

func cloneAnswers(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
