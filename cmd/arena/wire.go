package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ahrav/gavel-arena/infrastructure/events"
	"github.com/ahrav/gavel-arena/infrastructure/judges"
	"github.com/ahrav/gavel-arena/infrastructure/llm"
	"github.com/ahrav/gavel-arena/infrastructure/middleware"
	"github.com/ahrav/gavel-arena/infrastructure/secrets"
	"github.com/ahrav/gavel-arena/infrastructure/store"
	"github.com/ahrav/gavel-arena/infrastructure/store/memstore"
	"github.com/ahrav/gavel-arena/infrastructure/store/pgstore"
	"github.com/ahrav/gavel-arena/internal/application"
	"github.com/ahrav/gavel-arena/internal/httpapi"
	"github.com/ahrav/gavel-arena/internal/ports"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// app is the assembled process.
type app struct {
	Handler   http.Handler
	JudgeName string

	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	configs      ports.ConfigStore
	participants ports.ParticipantStore
	admins       ports.AdminStore
}

func build(ctx context.Context, cfg *application.AppConfig) (*app, error) {
	a := &app{}
	clock := clockwork.NewRealClock()
	metrics := middleware.NewPrometheusMetrics()

	hasher := secrets.NewBcryptHasher(cfg.Competition.BcryptCost)
	defaults, err := hashDefaults(hasher, cfg.Competition)
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, a, cfg.Store, clock, defaults)
	if err != nil {
		return nil, err
	}

	hub := events.NewHub()
	var publisher ports.EventPublisher = hub
	if cfg.NATS.URL != "" {
		natsCfg := events.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Subject = cfg.NATS.Subject
		bridge, err := events.ConnectNATS(natsCfg, hub)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, bridge.Close)
		publisher = bridge
	}

	judge, err := buildJudge(cfg.Judge, metrics, clock)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.JudgeName = judge.Name()

	rounds := application.NewRoundController(st.configs, publisher, clock)
	presence := application.NewPresenceTracker(st.participants, clock, cfg.Competition.HeartbeatWindow, metrics)
	board := application.NewLeaderboard(st.participants)

	scoring := application.DefaultScoringConfig()
	scoring.MaxConcurrency = cfg.Judge.MaxConcurrency

	a.Handler = httpapi.NewRouter(httpapi.Deps{
		Gateway:  application.NewParticipantGateway(rounds, st.participants, presence, hasher, clock),
		Pipeline: application.NewScoringPipeline(rounds, st.participants, judge, metrics, clock, scoring),
		Control: application.NewControlPlane(application.ControlPlaneDeps{
			Admins:       st.admins,
			Hasher:       hasher,
			Rounds:       rounds,
			Participants: st.participants,
			Presence:     presence,
			Leaderboard:  board,
			Events:       publisher,
			Clock:        clock,
		}),
		Events:         hub,
		Clock:          clock,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
		CORSOrigins:    cfg.Server.CORSOrigins,
		Stream:         httpapi.StreamConfig{Interval: cfg.Server.StreamInterval},
	})
	return a, nil
}

func hashDefaults(hasher ports.SecretHasher, cfg application.CompetitionConfig) (store.Defaults, error) {
	comp, err := hasher.Hash(cfg.DefaultSecret)
	if err != nil {
		return store.Defaults{}, fmt.Errorf("hash default competition secret: %w", err)
	}
	admin, err := hasher.Hash(cfg.DefaultAdminSecret)
	if err != nil {
		return store.Defaults{}, fmt.Errorf("hash default admin secret: %w", err)
	}
	return store.Defaults{CompetitionSecretHash: comp, AdminSecretHash: admin}, nil
}

func openStores(
	ctx context.Context,
	a *app,
	cfg application.StoreConfig,
	clock clockwork.Clock,
	defaults store.Defaults,
) (stores, error) {
	if cfg.Driver != "postgres" {
		return stores{
			configs:      memstore.NewConfigStore(clock, defaults),
			participants: memstore.NewParticipantStore(clock),
			admins:       memstore.NewAdminStore(clock, defaults),
		}, nil
	}

	pool, err := pgstore.Connect(ctx, cfg.DSN, cfg.MaxConns)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, pool.Close)
	return stores{
		configs:      pgstore.NewConfigRepository(pool, clock, defaults),
		participants: pgstore.NewParticipantRepository(pool, clock),
		admins:       pgstore.NewAdminRepository(pool, clock, defaults),
	}, nil
}

// buildJudge returns the LLM judge, or the fuzzy judge when the provider is
// "fuzzy" or no API key is configured.
func buildJudge(cfg application.JudgeConfig, metrics ports.MetricsCollector, clock clockwork.Clock) (ports.Judge, error) {
	if cfg.Provider == "fuzzy" || cfg.APIKey == "" {
		if cfg.Provider != "fuzzy" {
			log.Warn().Str("provider", cfg.Provider).Msg("no judge API key configured, falling back to fuzzy judge")
		}
		fuzzy := judges.DefaultFuzzyJudgeConfig()
		fuzzy.Threshold = cfg.FuzzyThreshold
		return judges.NewFuzzyJudge(fuzzy)
	}

	mws := []llm.Middleware{
		llm.TracingMiddleware("arena-judge"),
		llm.MetricsMiddleware(metrics, cfg.Provider),
		llm.CircuitBreakerMiddleware(cfg.BreakerFailures, cfg.BreakerCooldown, clock),
		llm.RetryMiddleware(cfg.MaxRetries, retryBaseDelay, retryMaxDelay, clock),
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, llm.RateLimitMiddleware(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1)))
	}
	mws = append(mws, llm.TimeoutMiddleware(cfg.Timeout))

	client, err := llm.NewClient(cfg.Provider, llm.ClientConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout + time.Second,
		Middleware: mws,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	judgeCfg := judges.DefaultLLMJudgeConfig()
	judgeCfg.Temperature = cfg.Temperature
	judgeCfg.MaxTokens = cfg.MaxTokens
	return judges.NewLLMJudge(client, judgeCfg)
}
