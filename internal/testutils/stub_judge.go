package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// StubJudge returns fixed verdicts keyed by submission text and records
// every request it sees.
type StubJudge struct {
	mu       sync.Mutex
	verdicts map[string]domain.Verdict
	fallback domain.Verdict
	requests []domain.JudgeRequest
	hook     func(domain.JudgeRequest)
}

// NewStubJudge returns a judge that scores unknown submissions with
// fallback.
func NewStubJudge(fallback domain.Verdict) *StubJudge {
	return &StubJudge{verdicts: make(map[string]domain.Verdict), fallback: fallback}
}

// On sets the verdict for a trimmed submission.
func (s *StubJudge) On(submission string, v domain.Verdict) *StubJudge {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[strings.TrimSpace(submission)] = v
	return s
}

// BeforeScore runs fn at the start of every Score call, outside the lock.
func (s *StubJudge) BeforeScore(fn func(domain.JudgeRequest)) *StubJudge {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
	return s
}

// Score implements ports.Judge.
func (s *StubJudge) Score(_ context.Context, req domain.JudgeRequest) domain.Verdict {
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if v, ok := s.verdicts[strings.TrimSpace(req.Submission)]; ok {
		return v
	}
	return s.fallback
}

// Name implements ports.Judge.
func (s *StubJudge) Name() string { return "stub" }

// Requests returns a copy of every request scored so far.
func (s *StubJudge) Requests() []domain.JudgeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.JudgeRequest(nil), s.requests...)
}

var _ ports.Judge = (*StubJudge)(nil)
