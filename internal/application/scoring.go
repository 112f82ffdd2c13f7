package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// Fallback judge inputs used when the admin left a field blank.
const (
	NoTextAnswerKey   = "No specific answer key provided."
	NoImageAnswerKey  = "No answer key"
	ImageJudgeContext = "Compare the user's description of an image with the actual prompt " +
		"used to generate it. Rate similarity out of 100."
)

// Submission is one participant submit call. Answers is keyed by question
// identifier; QuestionID, when set, keeps only that question.
type Submission struct {
	Username   string
	Answers    map[string]string
	QuestionID string
}

// QuestionResult is the outcome for one question. Score is the retained
// best; AttemptScore is what this attempt earned.
type QuestionResult struct {
	Score        float64 `json:"score"`
	AttemptScore float64 `json:"attemptScore"`
	Reason       string  `json:"reason"`
}

// SubmissionResult is the response to a submit call.
type SubmissionResult struct {
	Results    map[domain.QuestionID]QuestionResult
	TotalScore float64
}

// ScoringConfig tunes the pipeline.
type ScoringConfig struct {
	// MaxConcurrency bounds in-flight judge calls per submission.
	MaxConcurrency int
	// SaveAttempts is the number of tries per question save.
	SaveAttempts int
	// SaveBackoff is the base of the exponential backoff between tries.
	SaveBackoff time.Duration
	// MergeAttempts is the number of tries for the final merge after a
	// question save is exhausted.
	MergeAttempts int
}

// DefaultScoringConfig returns the production settings.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		MaxConcurrency: DefaultJudgeConcurrency,
		SaveAttempts:   3,
		SaveBackoff:    100 * time.Millisecond,
		MergeAttempts:  2,
	}
}

// ScoringPipeline judges submissions and persists best scores.
type ScoringPipeline struct {
	rounds       *RoundController
	participants ports.ParticipantStore
	judge        ports.Judge
	metrics      ports.MetricsCollector
	clock        clockwork.Clock
	config       ScoringConfig
}

// NewScoringPipeline wires the pipeline. metrics may be nil.
func NewScoringPipeline(
	rounds *RoundController,
	participants ports.ParticipantStore,
	judge ports.Judge,
	metrics ports.MetricsCollector,
	clock clockwork.Clock,
	config ScoringConfig,
) *ScoringPipeline {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = 1
	}
	if config.SaveAttempts < 1 {
		config.SaveAttempts = 1
	}
	return &ScoringPipeline{
		rounds:       rounds,
		participants: participants,
		judge:        judge,
		metrics:      metrics,
		clock:        clock,
		config:       config,
	}
}

// SubmitText scores a text round submission.
func (s *ScoringPipeline) SubmitText(ctx context.Context, sub Submission) (SubmissionResult, error) {
	return s.submit(ctx, domain.RoundText, sub)
}

// SubmitImage scores an image round submission.
func (s *ScoringPipeline) SubmitImage(ctx context.Context, sub Submission) (SubmissionResult, error) {
	return s.submit(ctx, domain.RoundImage, sub)
}

// scoredAnswer is one question on its way from the judge to the store.
type scoredAnswer struct {
	question domain.QuestionID
	answer   string
	request  domain.JudgeRequest
	verdict  domain.Verdict
	skipJury bool
}

func (s *ScoringPipeline) submit(ctx context.Context, round domain.Round, sub Submission) (SubmissionResult, error) {
	ctx, span := otel.Tracer("gavel-arena/scoring").Start(ctx, "scoring.submit")
	defer span.End()
	span.SetAttributes(attribute.String("round", round.String()))

	start := s.clock.Now()
	result, err := s.run(ctx, round, sub)
	s.metrics.RecordLatency("submit_"+strings.ToLower(round.String()), s.clock.Since(start), nil)
	s.metrics.RecordCounter(ports.MetricSubmissions, 1, map[string]string{
		"round":   round.String(),
		"outcome": outcome(err),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *ScoringPipeline) run(ctx context.Context, round domain.Round, sub Submission) (SubmissionResult, error) {
	username := strings.TrimSpace(sub.Username)
	answers, err := validateSubmission(username, sub)
	if err != nil {
		return SubmissionResult{}, err
	}

	cfg, err := s.rounds.Config(ctx)
	if err != nil {
		return SubmissionResult{}, err
	}
	if err := s.rounds.EnsureOpen(cfg, round, s.clock.Now()); err != nil {
		return SubmissionResult{}, err
	}

	participant, err := s.participants.Upsert(ctx, username, nil)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("create participant %q: %w", username, err)
	}

	jobs := buildJobs(cfg, round, answers)
	if err := s.judgeAll(ctx, round, jobs); err != nil {
		return SubmissionResult{}, err
	}

	result := SubmissionResult{
		Results:    make(map[domain.QuestionID]QuestionResult, len(jobs)),
		TotalScore: participant.TotalScore,
	}
	for i := range jobs {
		job := &jobs[i]
		var best float64
		p, attempts, err := s.save(ctx, "submit_"+strings.ToLower(round.String()), username, func(p *domain.Participant) error {
			best = p.ApplyScore(round, job.question, job.verdict.Score, job.answer)
			return nil
		})
		if err != nil {
			s.mergePending(ctx, round, username, jobs[i:])
			return SubmissionResult{}, domain.NewPersistenceError(
				fmt.Sprintf("save %s %s for %s", round, job.question, username), attempts, err)
		}
		result.Results[job.question] = QuestionResult{
			Score:        best,
			AttemptScore: job.verdict.Score,
			Reason:       job.verdict.Reason,
		}
		result.TotalScore = p.TotalScore
	}
	return result, nil
}

// validateSubmission normalises question ids and drops blank answers.
func validateSubmission(username string, sub Submission) (map[domain.QuestionID]string, error) {
	verr := domain.NewValidationError("submission")
	if username == "" {
		verr.AddError("username is required")
	}

	var only domain.QuestionID
	if sub.QuestionID != "" {
		q, err := domain.ParseQuestionID(sub.QuestionID)
		if err != nil {
			verr.AddError(err.Error())
		}
		only = q
	}

	answers := make(map[domain.QuestionID]string, len(sub.Answers))
	for key, text := range sub.Answers {
		q, err := domain.ParseQuestionID(key)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		if only != "" && q != only {
			continue
		}
		answers[q] = text
	}
	if len(answers) == 0 {
		verr.AddError("at least one non-empty answer is required")
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return answers, nil
}

// buildJobs lays out the questions to score in qid order.
func buildJobs(cfg domain.CompetitionConfig, round domain.Round, answers map[domain.QuestionID]string) []scoredAnswer {
	jobs := make([]scoredAnswer, 0, len(answers))
	for _, q := range domain.Questions {
		answer, ok := answers[q]
		if !ok {
			continue
		}

		job := scoredAnswer{question: q, answer: answer}
		switch round {
		case domain.RoundText:
			question := cfg.Round1.Question(q)
			if strings.TrimSpace(question) == "" {
				continue
			}
			if domain.IsCopy(answer, question) {
				job.verdict = domain.FailedVerdict(domain.FailureCopiedPrompt)
				job.skipJury = true
			}
			job.request = domain.JudgeRequest{
				Task:       domain.TaskText,
				Submission: answer,
				Target:     orDefault(cfg.Round1.AnswerKey(q), NoTextAnswerKey),
				Reference:  question,
			}
		case domain.RoundImage:
			job.request = domain.JudgeRequest{
				Task:       domain.TaskImage,
				Submission: answer,
				Target:     orDefault(cfg.Round2.AnswerKey(q), NoImageAnswerKey),
				Reference:  ImageJudgeContext,
			}
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// judgeAll scores every job concurrently. Judges never fail, so the group
// only returns the context error.
func (s *ScoringPipeline) judgeAll(ctx context.Context, round domain.Round, jobs []scoredAnswer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrency)

	for i := range jobs {
		if jobs[i].skipJury {
			s.countVerdict(round, jobs[i].verdict)
			continue
		}
		g.Go(func() error {
			v := s.judge.Score(gctx, jobs[i].request)
			v.Score = clampScore(v.Score)
			jobs[i].verdict = v
			s.countVerdict(round, v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// save runs one atomic update with bounded retries and exponential
// backoff on the injected clock.
func (s *ScoringPipeline) save(
	ctx context.Context,
	op, username string,
	fn func(*domain.Participant) error,
) (domain.Participant, int, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.SaveAttempts; attempt++ {
		if attempt > 0 {
			s.metrics.RecordCounter(ports.MetricPersistRetries, 1, map[string]string{"operation": op})
			delay := s.config.SaveBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return domain.Participant{}, attempt, ctx.Err()
			case <-s.clock.After(delay):
			}
		}

		p, err := s.participants.Update(ctx, username, fn)
		if err == nil {
			return p, attempt + 1, nil
		}
		lastErr = err

		var nf *domain.NotFoundError
		if errors.As(err, &nf) || ctx.Err() != nil {
			return domain.Participant{}, attempt + 1, err
		}
		log.Warn().
			Err(err).
			Str("operation", op).
			Str("username", username).
			Int("attempt", attempt+1).
			Msg("participant save failed")
	}
	return domain.Participant{}, s.config.SaveAttempts, lastErr
}

// mergePending makes a last best-effort save of every question not yet
// persisted. Best-score merging is idempotent, so replaying a question
// that did land is harmless.
func (s *ScoringPipeline) mergePending(ctx context.Context, round domain.Round, username string, pending []scoredAnswer) {
	for attempt := 1; attempt <= s.config.MergeAttempts; attempt++ {
		_, err := s.participants.Update(ctx, username, func(p *domain.Participant) error {
			for _, job := range pending {
				p.ApplyScore(round, job.question, job.verdict.Score, job.answer)
			}
			return nil
		})
		if err == nil {
			log.Info().Str("username", username).Int("questions", len(pending)).Msg("final merge saved pending scores")
			return
		}
		log.Error().
			Err(err).
			Str("username", username).
			Int("attempt", attempt).
			Msg("final merge failed")
	}
}

func (s *ScoringPipeline) countVerdict(round domain.Round, v domain.Verdict) {
	s.metrics.RecordCounter(ports.MetricJudgeVerdicts, 1, map[string]string{
		"round":   round.String(),
		"failure": string(v.Failure),
	})
}

func clampScore(v float64) float64 {
	return max(domain.MinScore, min(domain.MaxScore, v))
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func outcome(err error) string {
	var (
		verr   *domain.ValidationError
		closed *domain.RoundClosedError
		perr   *domain.PersistenceError
	)
	switch {
	case err == nil:
		return "scored"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &closed):
		return "closed"
	case errors.As(err, &perr):
		return "persist_failed"
	}
	return "error"
}
