package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/testutils"
)

func TestScoringPipeline_ResubmitKeepsBest(t *testing.T) {
	// Given: an open text round and a judge that scores 40, 70, then 50.
	h := newHarness(t)
	h.openTextRound(t, 0)
	h.judge.On("first try", domain.Verdict{Score: 40, Reason: "Some overlap."}).
		On("second try", domain.Verdict{Score: 70, Reason: "Close."}).
		On("third try", domain.Verdict{Score: 50, Reason: "Drifted."})
	ctx := context.Background()

	steps := []struct {
		answer      string
		wantAttempt float64
		wantBest    float64
	}{
		{"first try", 40, 40},
		{"second try", 70, 70},
		{"third try", 50, 70},
	}

	for _, step := range steps {
		// When: the participant submits q1 again.
		res, err := h.pipeline.SubmitText(ctx, Submission{
			Username: "ada",
			Answers:  map[string]string{"q1": step.answer},
		})
		require.NoError(t, err)

		// Then: the best score never drops.
		got := res.Results[domain.Q1]
		assert.Equal(t, step.wantAttempt, got.AttemptScore)
		assert.Equal(t, step.wantBest, got.Score)
		assert.Equal(t, step.wantBest, res.TotalScore)
	}

	p, err := h.participants.Get(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, 70.0, p.Round1Scores.Q1)
	assert.Equal(t, "third try", p.Round1Answers["q1"])
}

func TestScoringPipeline_BatchTotalsAndRequests(t *testing.T) {
	h := newHarness(t)
	h.openTextRound(t, 0)
	h.judge.On("haiku attempt", domain.Verdict{Score: 80, Reason: "Good."}).
		On("limerick attempt", domain.Verdict{Score: 30, Reason: "Weak."})

	res, err := h.pipeline.SubmitText(context.Background(), Submission{
		Username: "  bob  ",
		Answers: map[string]string{
			"q1": "haiku attempt",
			"q2": "limerick attempt",
			"q3": "   ",
			"q9": "ignored",
		},
	})
	require.NoError(t, err)

	assert.Len(t, res.Results, 2)
	assert.Equal(t, 110.0, res.TotalScore)

	p, err := h.participants.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, p.Totals.Round1+p.Totals.Round2, p.TotalScore)
	assert.Equal(t, p.Round1Scores.Sum(), p.Totals.Round1)

	reqs := h.judge.Requests()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, domain.TaskText, r.Task)
		if r.Submission == "haiku attempt" {
			assert.Equal(t, "write a haiku about autumn rain", r.Target)
			assert.Equal(t, "A haiku about autumn rain", r.Reference)
		}
	}
}

func TestScoringPipeline_MissingAnswerKeyFallsBack(t *testing.T) {
	h := newHarness(t)
	h.openTextRound(t, 0)

	_, err := h.pipeline.SubmitText(context.Background(), Submission{
		Username: "cy", Answers: map[string]string{"q3": "launch tweet"},
	})
	require.NoError(t, err)

	reqs := h.judge.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, NoTextAnswerKey, reqs[0].Target)
}

func TestScoringPipeline_CopyDetection(t *testing.T) {
	h := newHarness(t)
	h.openTextRound(t, 0)

	res, err := h.pipeline.SubmitText(context.Background(), Submission{
		Username: "dee",
		Answers:  map[string]string{"q1": "  A haiku about autumn rain "},
	})
	require.NoError(t, err)

	got := res.Results[domain.Q1]
	assert.Zero(t, got.AttemptScore)
	assert.Equal(t, domain.FailureCopiedPrompt.Reason(), got.Reason)
	assert.Empty(t, h.judge.Requests(), "copied text must not reach the judge")
}

func TestScoringPipeline_ImageRound(t *testing.T) {
	h := newHarness(t)
	h.openImageRound(t)

	res, err := h.pipeline.SubmitImage(context.Background(), Submission{
		Username: "eve",
		Answers:  map[string]string{"1": "fox in the snow", "2": "something", "3": "lighthouse"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)

	p, err := h.participants.Get(context.Background(), "eve")
	require.NoError(t, err)
	assert.Equal(t, 150.0, p.Totals.Round2)
	assert.Equal(t, "fox in the snow", p.Round2Answers["q1"])

	for _, r := range h.judge.Requests() {
		assert.Equal(t, domain.TaskImage, r.Task)
		assert.Equal(t, ImageJudgeContext, r.Reference)
		if r.Submission == "something" {
			assert.Equal(t, NoImageAnswerKey, r.Target)
		}
	}
}

func TestScoringPipeline_QuestionFilter(t *testing.T) {
	h := newHarness(t)
	h.openImageRound(t)

	res, err := h.pipeline.SubmitImage(context.Background(), Submission{
		Username:   "fay",
		Answers:    map[string]string{"1": "fox", "3": "lighthouse"},
		QuestionID: "3",
	})
	require.NoError(t, err)

	assert.Len(t, res.Results, 1)
	assert.Contains(t, res.Results, domain.Q3)
}

func TestScoringPipeline_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*testing.T, *harness)
		sub    Submission
		assert func(*testing.T, error)
	}{
		{
			name: "blank username",
			sub:  Submission{Username: " ", Answers: map[string]string{"q1": "x"}},
			assert: func(t *testing.T, err error) {
				var verr *domain.ValidationError
				assert.ErrorAs(t, err, &verr)
			},
		},
		{
			name: "only blank answers",
			sub:  Submission{Username: "gus", Answers: map[string]string{"q1": "", "q2": "  "}},
			assert: func(t *testing.T, err error) {
				var verr *domain.ValidationError
				assert.ErrorAs(t, err, &verr)
			},
		},
		{
			name: "single question with empty text",
			sub:  Submission{Username: "gus", Answers: map[string]string{"q1": "", "q2": "text"}, QuestionID: "q1"},
			assert: func(t *testing.T, err error) {
				var verr *domain.ValidationError
				assert.ErrorAs(t, err, &verr)
			},
		},
		{
			name: "round not active",
			sub:  Submission{Username: "gus", Answers: map[string]string{"q1": "text"}},
			assert: func(t *testing.T, err error) {
				var closed *domain.RoundClosedError
				assert.ErrorAs(t, err, &closed)
			},
		},
		{
			name: "deadline passed",
			setup: func(t *testing.T, h *harness) {
				h.openTextRound(t, 1)
				h.clock.Advance(time.Minute + time.Millisecond)
			},
			sub: Submission{Username: "gus", Answers: map[string]string{"q1": "text"}},
			assert: func(t *testing.T, err error) {
				var closed *domain.RoundClosedError
				require.ErrorAs(t, err, &closed)
				assert.Equal(t, domain.RoundText, closed.Round)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(t, h)
			}

			_, err := h.pipeline.SubmitText(context.Background(), tt.sub)
			tt.assert(t, err)

			// Nothing is created for a rejected submission.
			ps, lerr := h.participants.List(context.Background())
			require.NoError(t, lerr)
			assert.Empty(t, ps)
		})
	}
}

func TestScoringPipeline_JudgeFailureScoresZero(t *testing.T) {
	h := newHarness(t)
	h.openTextRound(t, 0)
	h.judge.On("garbled", domain.FailedVerdict(domain.FailureMalformed)).
		On("offline", domain.FailedVerdict(domain.FailureNetwork))

	res, err := h.pipeline.SubmitText(context.Background(), Submission{
		Username: "hal",
		Answers:  map[string]string{"q1": "garbled", "q2": "offline"},
	})
	require.NoError(t, err)

	assert.Zero(t, res.Results[domain.Q1].Score)
	assert.Equal(t, "AI Parse Error", res.Results[domain.Q1].Reason)
	assert.Equal(t, "Network Error", res.Results[domain.Q2].Reason)
	assert.Zero(t, res.TotalScore)
}

func TestScoringPipeline_ClampsOutOfRangeScores(t *testing.T) {
	h := newHarness(t)
	h.openTextRound(t, 0)
	h.judge.On("greedy", domain.Verdict{Score: 250, Reason: "?"})

	res, err := h.pipeline.SubmitText(context.Background(), Submission{
		Username: "ivy", Answers: map[string]string{"q1": "greedy"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxScore, res.Results[domain.Q1].Score)
}

func TestScoringPipeline_PersistenceFailure(t *testing.T) {
	// Given: q1 saves, then every later save fails.
	h := newHarness(t)
	h.openTextRound(t, 0)
	h.participants.FailUpdates(2, -1)

	type outcome struct {
		res SubmissionResult
		err error
	}
	done := make(chan outcome, 1)

	// When: a two question batch is submitted.
	go func() {
		res, err := h.pipeline.SubmitText(context.Background(), Submission{
			Username: "jon",
			Answers:  map[string]string{"q1": "one", "q2": "two"},
		})
		done <- outcome{res, err}
	}()

	// Then: the retries wait 100ms and 200ms on the clock.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, d := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond} {
		require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
		h.clock.Advance(d)
	}

	var got outcome
	select {
	case got = <-done:
	case <-ctx.Done():
		t.Fatal("submission did not finish")
	}

	var perr *domain.PersistenceError
	require.ErrorAs(t, got.err, &perr)
	assert.Equal(t, 3, perr.Attempts)
	assert.ErrorIs(t, got.err, testutils.ErrInjected)

	// One save for q1, three for q2, two for the final merge.
	assert.Equal(t, 6, h.participants.Updates())

	p, err := h.participants.Get(context.Background(), "jon")
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.Round1Scores.Q1, "earlier saves stay committed")
	assert.Zero(t, p.Round1Scores.Q2)
}

func TestScoringPipeline_FinalMergeRecovers(t *testing.T) {
	// Given: the three q2 saves fail but the merge that follows succeeds.
	h := newHarness(t)
	h.openTextRound(t, 0)
	h.participants.FailUpdates(2, 3)

	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline.SubmitText(context.Background(), Submission{
			Username: "kai",
			Answers:  map[string]string{"q1": "one", "q2": "two"},
		})
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, d := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond} {
		require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
		h.clock.Advance(d)
	}

	var perr *domain.PersistenceError
	assert.ErrorAs(t, <-done, &perr)

	// Then: the request still fails but q2 landed through the merge.
	p, err := h.participants.Get(context.Background(), "kai")
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.Round1Scores.Q2)
	assert.Equal(t, 100.0, p.TotalScore)
}

func TestScoringPipeline_ConcurrentSubmissionsConverge(t *testing.T) {
	h := newHarness(t)
	h.openTextRound(t, 0)
	scores := []float64{10, 90, 35, 60, 75, 20}
	for i, s := range scores {
		h.judge.On(string(rune('a'+i)), domain.Verdict{Score: s, Reason: "ok"})
	}

	var wg sync.WaitGroup
	for i := range scores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.pipeline.SubmitText(context.Background(), Submission{
				Username: "lee",
				Answers:  map[string]string{"q1": string(rune('a' + i))},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := h.participants.Get(context.Background(), "lee")
	require.NoError(t, err)
	assert.Equal(t, 90.0, p.Round1Scores.Q1)
	assert.Equal(t, 90.0, p.TotalScore)
}

func TestScoringPipeline_IdempotentReplay(t *testing.T) {
	h := newHarness(t)
	h.openTextRound(t, 0)
	sub := Submission{Username: "max", Answers: map[string]string{"q1": "same", "q2": "same"}}

	first, err := h.pipeline.SubmitText(context.Background(), sub)
	require.NoError(t, err)
	second, err := h.pipeline.SubmitText(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Equal(t, first.Results, second.Results)
}

func TestNewScoringPipeline_Defaults(t *testing.T) {
	h := newHarness(t)
	p := NewScoringPipeline(h.rounds, h.participants, h.judge, nil, clockwork.NewFakeClock(), ScoringConfig{})
	assert.Equal(t, 1, p.config.MaxConcurrency)
	assert.Equal(t, 1, p.config.SaveAttempts)
}
