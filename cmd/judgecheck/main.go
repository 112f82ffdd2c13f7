// Command judgecheck scores one submission against a target prompt with
// every judge provider that has credentials, so organisers can compare
// providers before a competition.
//
//	judgecheck -target "write a haiku about autumn rain" -submission "haiku, rain, fall"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/gavel-arena/infrastructure/judges"
	"github.com/ahrav/gavel-arena/infrastructure/llm"
	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// providerKeys maps each provider to the variable holding its API key.
var providerKeys = map[string]string{
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

type row struct {
	judge   string
	verdict domain.Verdict
	elapsed time.Duration
}

func main() {
	var (
		target     = flag.String("target", "", "Hidden target prompt")
		submission = flag.String("submission", "", "Contestant prompt to score")
		reference  = flag.String("reference", "", "Result text shown to contestants; empty for an image task")
		timeout    = flag.Duration("timeout", 20*time.Second, "Per-judge timeout")
	)
	flag.Parse()

	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *target == "" || *submission == "" {
		flag.Usage()
		os.Exit(2)
	}

	req := domain.JudgeRequest{
		Task:       domain.TaskImage,
		Target:     *target,
		Submission: *submission,
		Reference:  *reference,
	}
	if *reference != "" {
		req.Task = domain.TaskText
	}

	rows, err := scoreAll(context.Background(), availableJudges(*timeout), req)
	if err != nil {
		log.Fatal().Err(err).Msg("scoring failed")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JUDGE\tSCORE\tFAILURE\tTIME\tREASON")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\t%s\n",
			r.judge, r.verdict.Score, r.verdict.Failure, r.elapsed.Round(time.Millisecond), r.verdict.Reason)
	}
	_ = w.Flush()
}

// availableJudges always includes the fuzzy judge, plus one LLM judge per
// provider with a key in the environment.
func availableJudges(timeout time.Duration) []ports.Judge {
	fuzzy, err := judges.NewFuzzyJudge(judges.DefaultFuzzyJudgeConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("fuzzy judge")
	}
	out := []ports.Judge{fuzzy}

	for provider, env := range providerKeys {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		client, err := llm.NewClient(provider, llm.ClientConfig{
			APIKey:     key,
			Timeout:    timeout,
			Middleware: []llm.Middleware{llm.TimeoutMiddleware(timeout)},
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", provider).Msg("skipping provider")
			continue
		}
		judge, err := judges.NewLLMJudge(client, judges.DefaultLLMJudgeConfig())
		if err != nil {
			log.Warn().Err(err).Str("provider", provider).Msg("skipping provider")
			continue
		}
		out = append(out, judge)
	}
	return out
}

func scoreAll(ctx context.Context, js []ports.Judge, req domain.JudgeRequest) ([]row, error) {
	rows := make([]row, len(js))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range js {
		g.Go(func() error {
			start := time.Now()
			v := j.Score(gctx, req)
			rows[i] = row{judge: j.Name(), verdict: v, elapsed: time.Since(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].judge < rows[b].judge })
	return rows, nil
}
