package judges

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

var (
	_ ports.Judge = (*FuzzyJudge)(nil)

	foldCaser = cases.Fold()
)

// MaxFuzzyInput bounds the rune length compared; the edit distance is
// quadratic in it.
const MaxFuzzyInput = 4096

// FuzzyJudgeConfig tunes FuzzyJudge.
type FuzzyJudgeConfig struct {
	// Threshold is the similarity in [0,1] below which the score is 0.
	Threshold     float64 `validate:"min=0,max=1"`
	CaseSensitive bool
}

// DefaultFuzzyJudgeConfig returns a lenient case-insensitive config.
func DefaultFuzzyJudgeConfig() FuzzyJudgeConfig {
	return FuzzyJudgeConfig{Threshold: 0.2}
}

// FuzzyJudge scores a submission by its Levenshtein similarity to the
// target prompt. It is deterministic and never fails.
type FuzzyJudge struct {
	config FuzzyJudgeConfig
	tracer trace.Tracer
}

// NewFuzzyJudge validates config and returns the judge.
func NewFuzzyJudge(config FuzzyJudgeConfig) (*FuzzyJudge, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("fuzzy judge configuration validation failed: %w", err)
	}
	return &FuzzyJudge{config: config, tracer: otel.Tracer("arena-judge")}, nil
}

func (f *FuzzyJudge) Name() string { return "fuzzy" }

// Score returns similarity*100, rounded to one decimal.
func (f *FuzzyJudge) Score(ctx context.Context, req domain.JudgeRequest) domain.Verdict {
	_, span := f.tracer.Start(ctx, "FuzzyJudge.Score",
		trace.WithAttributes(attribute.String("judge.task", string(req.Task))),
	)
	defer span.End()

	similarity := f.similarity(f.prepare(req.Submission), f.prepare(req.Target))
	score := math.Round(similarity*1000) / 10

	verdict := domain.Verdict{Score: score, Reason: fuzzyReason(score)}
	if similarity < f.config.Threshold {
		verdict = domain.Verdict{Score: 0, Reason: "Too far from the intended prompt. Think more about it."}
	}

	span.SetAttributes(
		attribute.Float64("judge.score", verdict.Score),
		attribute.Bool("no_llm_cost", true),
	)
	return verdict
}

func (f *FuzzyJudge) prepare(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > MaxFuzzyInput {
		s = string([]rune(s)[:MaxFuzzyInput])
	}
	if !f.config.CaseSensitive {
		s = foldCaser.String(s)
	}
	return s
}

// similarity is 1 - distance/maxRuneLen, in [0,1].
func (f *FuzzyJudge) similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	s := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	if s < 0 {
		return 0
	}
	return s
}

func fuzzyReason(score float64) string {
	switch {
	case score >= 80:
		return "Very close to the intended prompt."
	case score >= 40:
		return "Captures part of the idea but misses detail. Try again."
	default:
		return "Lacks description. Think more about it."
	}
}
