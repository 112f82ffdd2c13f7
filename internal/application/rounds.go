package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// maxCASAttempts bounds the compare-and-swap loop on the config document.
const maxCASAttempts = 5

// PublicTextContent is the text round as participants see it: result
// texts and timer, never the answer keys.
type PublicTextContent struct {
	Q1           string `json:"q1"`
	Q2           string `json:"q2"`
	Q3           string `json:"q3"`
	TimerMinutes int    `json:"timerDuration"`
}

// PublicImageContent is the image round without answer keys.
type PublicImageContent struct {
	Image1       string `json:"q1Img"`
	Image2       string `json:"q2Img"`
	Image3       string `json:"q3Img"`
	TimerMinutes int    `json:"timerDuration"`
}

// RoundStatus is the participant view of the competition.
type RoundStatus struct {
	Version        uint64
	Rounds         domain.RoundFlags
	Round1Deadline *time.Time
	Round2Deadline *time.Time
	Text           PublicTextContent
	Image          PublicImageContent
	Warning        *domain.Warning
}

// RoundController owns every mutation of the competition config.
type RoundController struct {
	configs ports.ConfigStore
	events  ports.EventPublisher
	clock   clockwork.Clock
}

// NewRoundController creates a controller. events may be nil.
func NewRoundController(configs ports.ConfigStore, events ports.EventPublisher, clock clockwork.Clock) *RoundController {
	return &RoundController{configs: configs, events: events, clock: clock}
}

// Config returns the current config.
func (c *RoundController) Config(ctx context.Context) (domain.CompetitionConfig, error) {
	cfg, err := c.configs.Load(ctx)
	if err != nil {
		return domain.CompetitionConfig{}, fmt.Errorf("load competition config: %w", err)
	}
	return cfg, nil
}

// TransitionTo turns round r on or off.
func (c *RoundController) TransitionTo(ctx context.Context, r domain.Round, on bool) (domain.CompetitionConfig, error) {
	if _, err := domain.ParseRound(string(r)); err != nil {
		return domain.CompetitionConfig{}, err
	}
	cfg, err := c.mutate(ctx, "transition", func(cfg *domain.CompetitionConfig, now time.Time) error {
		return cfg.Transition(r, on, now)
	})
	if err != nil {
		return domain.CompetitionConfig{}, err
	}

	log.Info().
		Str("round", r.String()).
		Bool("on", on).
		Uint64("version", cfg.Version).
		Msg("round transition")
	return cfg, nil
}

// UpdateTextContent replaces the text round content. Flags and running
// deadlines are untouched.
func (c *RoundController) UpdateTextContent(ctx context.Context, content domain.TextRoundContent) (domain.CompetitionConfig, error) {
	if content.TimerMinutes < 0 {
		return domain.CompetitionConfig{}, negativeTimer("text round")
	}
	return c.mutate(ctx, "update_text_round", func(cfg *domain.CompetitionConfig, _ time.Time) error {
		cfg.Round1 = content
		return nil
	})
}

// UpdateImageContent replaces the image round content.
func (c *RoundController) UpdateImageContent(ctx context.Context, content domain.ImageRoundContent) (domain.CompetitionConfig, error) {
	if content.TimerMinutes < 0 {
		return domain.CompetitionConfig{}, negativeTimer("image round")
	}
	return c.mutate(ctx, "update_image_round", func(cfg *domain.CompetitionConfig, _ time.Time) error {
		cfg.Round2 = content
		return nil
	})
}

// SetSecretHash stores a new competition secret hash.
func (c *RoundController) SetSecretHash(ctx context.Context, hash string) error {
	_, err := c.mutate(ctx, "set_secret", func(cfg *domain.CompetitionConfig, _ time.Time) error {
		cfg.SecretHash = hash
		return nil
	})
	return err
}

// SetGlobalWarning replaces the warning every participant sees.
func (c *RoundController) SetGlobalWarning(ctx context.Context, message string) (domain.Warning, error) {
	var issued domain.Warning
	_, err := c.mutate(ctx, "global_warning", func(cfg *domain.CompetitionConfig, now time.Time) error {
		issued = domain.Warning{Message: message, IssuedAt: now}
		w := issued
		cfg.GlobalWarning = &w
		return nil
	})
	return issued, err
}

// Status builds the participant view. p may be nil for anonymous polls.
func (c *RoundController) Status(ctx context.Context, p *domain.Participant) (RoundStatus, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return RoundStatus{}, err
	}
	return statusFrom(cfg, p), nil
}

// EnsureOpen rejects submissions to round r unless it is active and its
// deadline, if any, has not passed.
func (c *RoundController) EnsureOpen(cfg domain.CompetitionConfig, r domain.Round, now time.Time) error {
	return cfg.AcceptsSubmissions(r, now)
}

func statusFrom(cfg domain.CompetitionConfig, p *domain.Participant) RoundStatus {
	var individual *domain.Warning
	if p != nil {
		individual = p.Warning
	}
	return RoundStatus{
		Version:        cfg.Version,
		Rounds:         cfg.Rounds,
		Round1Deadline: cfg.Round1Deadline,
		Round2Deadline: cfg.Round2Deadline,
		Text:           publicText(cfg.Round1),
		Image:          publicImage(cfg.Round2),
		Warning:        domain.EffectiveWarning(cfg.GlobalWarning, individual),
	}
}

func publicText(c domain.TextRoundContent) PublicTextContent {
	return PublicTextContent{Q1: c.Q1, Q2: c.Q2, Q3: c.Q3, TimerMinutes: c.TimerMinutes}
}

func publicImage(c domain.ImageRoundContent) PublicImageContent {
	return PublicImageContent{Image1: c.Image1, Image2: c.Image2, Image3: c.Image3, TimerMinutes: c.TimerMinutes}
}

// mutate applies fn to a fresh copy of the config and stores it with a
// compare-and-swap, reloading on conflict.
func (c *RoundController) mutate(
	ctx context.Context,
	op string,
	fn func(*domain.CompetitionConfig, time.Time) error,
) (domain.CompetitionConfig, error) {
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		current, err := c.Config(ctx)
		if err != nil {
			return domain.CompetitionConfig{}, err
		}

		now := c.clock.Now()
		next := current.Clone()
		if err := fn(&next, now); err != nil {
			return domain.CompetitionConfig{}, err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = now

		err = c.configs.CompareAndSwap(ctx, current.Version, next)
		if err == nil {
			c.publish(ctx, ports.Event{Kind: ports.EventConfigChanged, Version: next.Version, At: now})
			return next, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.CompetitionConfig{}, fmt.Errorf("%s: %w", op, err)
		}
		log.Debug().Str("operation", op).Int("attempt", attempt).Msg("config version conflict, retrying")
	}
	return domain.CompetitionConfig{}, fmt.Errorf("%s after %d attempts: %w", op, maxCASAttempts, domain.ErrVersionConflict)
}

func (c *RoundController) publish(ctx context.Context, ev ports.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("failed to publish event")
	}
}

func negativeTimer(entity string) error {
	verr := domain.NewValidationError(entity)
	verr.AddError("timer duration must not be negative")
	return verr
}
