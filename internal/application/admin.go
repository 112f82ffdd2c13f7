package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// DefaultWarningMessage is used when an admin warns without a message.
const DefaultWarningMessage = "ADMIN WARNING ISSUED"

// Dashboard is the admin overview.
type Dashboard struct {
	Connected   int
	Clients     []PresenceEntry
	Leaderboard []domain.Standing
	Config      domain.CompetitionConfig
}

// ControlPlane runs admin operations. Every operation verifies the admin
// secret first and changes nothing when it does not match.
type ControlPlane struct {
	admins       ports.AdminStore
	hasher       ports.SecretHasher
	rounds       *RoundController
	participants ports.ParticipantStore
	presence     *PresenceTracker
	leaderboard  *Leaderboard
	events       ports.EventPublisher
	clock        clockwork.Clock
}

// ControlPlaneDeps groups the collaborators of a ControlPlane.
type ControlPlaneDeps struct {
	Admins       ports.AdminStore
	Hasher       ports.SecretHasher
	Rounds       *RoundController
	Participants ports.ParticipantStore
	Presence     *PresenceTracker
	Leaderboard  *Leaderboard
	Events       ports.EventPublisher
	Clock        clockwork.Clock
}

// NewControlPlane creates a control plane.
func NewControlPlane(deps ControlPlaneDeps) *ControlPlane {
	return &ControlPlane{
		admins:       deps.Admins,
		hasher:       deps.Hasher,
		rounds:       deps.Rounds,
		participants: deps.Participants,
		presence:     deps.Presence,
		leaderboard:  deps.Leaderboard,
		events:       deps.Events,
		clock:        deps.Clock,
	}
}

// Login checks an admin username and secret.
func (c *ControlPlane) Login(ctx context.Context, username, secret string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		username = domain.DefaultAdminUsername
	}
	admin, err := c.admins.Load(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return domain.NewAuthorizationError("admin_login")
		}
		return fmt.Errorf("load admin: %w", err)
	}
	if !c.verify(admin, secret) {
		return domain.NewAuthorizationError("admin_login")
	}
	log.Info().Str("username", username).Msg("admin logged in")
	return nil
}

// ToggleRound turns a round on or off.
func (c *ControlPlane) ToggleRound(ctx context.Context, secret string, r domain.Round, on bool) (domain.CompetitionConfig, error) {
	if err := c.authorize(ctx, secret, "toggle_round"); err != nil {
		return domain.CompetitionConfig{}, err
	}
	return c.rounds.TransitionTo(ctx, r, on)
}

// UpdateTextRound replaces the text round content.
func (c *ControlPlane) UpdateTextRound(ctx context.Context, secret string, content domain.TextRoundContent) error {
	if err := c.authorize(ctx, secret, "update_text_round"); err != nil {
		return err
	}
	_, err := c.rounds.UpdateTextContent(ctx, content)
	return err
}

// UpdateImageRound replaces the image round content.
func (c *ControlPlane) UpdateImageRound(ctx context.Context, secret string, content domain.ImageRoundContent) error {
	if err := c.authorize(ctx, secret, "update_image_round"); err != nil {
		return err
	}
	_, err := c.rounds.UpdateImageContent(ctx, content)
	return err
}

// SetCompetitionSecret replaces the secret participants join with.
func (c *ControlPlane) SetCompetitionSecret(ctx context.Context, secret, newSecret string) error {
	if err := c.authorize(ctx, secret, "set_competition_secret"); err != nil {
		return err
	}
	if err := requireSecret("competition secret", newSecret); err != nil {
		return err
	}
	hash, err := c.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("hash competition secret: %w", err)
	}
	if err := c.rounds.SetSecretHash(ctx, hash); err != nil {
		return err
	}
	log.Info().Msg("competition secret updated")
	return nil
}

// ChangeAdminSecret replaces the admin secret after checking the current
// one.
func (c *ControlPlane) ChangeAdminSecret(ctx context.Context, current, next string) error {
	admin, err := c.admins.Load(ctx, domain.DefaultAdminUsername)
	if err != nil {
		return fmt.Errorf("load admin: %w", err)
	}
	if !c.verify(admin, current) {
		return domain.NewAuthorizationError("change_admin_secret")
	}
	if err := requireSecret("admin secret", next); err != nil {
		return err
	}

	hash, err := c.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash admin secret: %w", err)
	}
	admin.SecretHash = hash
	admin.UpdatedAt = c.clock.Now()
	if err := c.admins.Save(ctx, admin); err != nil {
		return fmt.Errorf("save admin: %w", err)
	}
	log.Info().Str("username", admin.Username).Msg("admin secret changed")
	return nil
}

// Warn issues a warning. With a username it targets that participant,
// otherwise every participant. It reports whether the target existed.
func (c *ControlPlane) Warn(ctx context.Context, secret, username, message string) (bool, error) {
	if err := c.authorize(ctx, secret, "warn"); err != nil {
		return false, err
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultWarningMessage
	}

	username = strings.TrimSpace(username)
	if username == "" {
		if _, err := c.rounds.SetGlobalWarning(ctx, message); err != nil {
			return false, err
		}
		return true, nil
	}

	now := c.clock.Now()
	return c.updateParticipant(ctx, username, "warn", func(p *domain.Participant) error {
		p.Warning = &domain.Warning{Message: message, IssuedAt: now}
		return nil
	})
}

// Kick marks a participant as kicked.
func (c *ControlPlane) Kick(ctx context.Context, secret, username string) (bool, error) {
	if err := c.authorize(ctx, secret, "kick"); err != nil {
		return false, err
	}
	return c.updateParticipant(ctx, username, "kick", func(p *domain.Participant) error {
		p.Kicked = true
		return nil
	})
}

// Reset zeroes a participant's scores and answers.
func (c *ControlPlane) Reset(ctx context.Context, secret, username string) (bool, error) {
	if err := c.authorize(ctx, secret, "reset"); err != nil {
		return false, err
	}
	return c.updateParticipant(ctx, username, "reset", func(p *domain.Participant) error {
		p.Reset()
		return nil
	})
}

// Delete removes a participant permanently.
func (c *ControlPlane) Delete(ctx context.Context, secret, username string) (bool, error) {
	if err := c.authorize(ctx, secret, "delete"); err != nil {
		return false, err
	}
	username, err := requireUsername(username)
	if err != nil {
		return false, err
	}

	if err := c.participants.Delete(ctx, username); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete participant %q: %w", username, err)
	}
	log.Info().Str("username", username).Msg("participant deleted")
	c.publishParticipant(ctx, username)
	return true, nil
}

// Dashboard returns presence, leaderboard and the full config.
func (c *ControlPlane) Dashboard(ctx context.Context, secret string) (Dashboard, error) {
	if err := c.authorize(ctx, secret, "dashboard"); err != nil {
		return Dashboard{}, err
	}
	snap, err := c.presence.Snapshot(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	standings, err := c.leaderboard.Rank(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	cfg, err := c.rounds.Config(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Connected:   snap.Connected,
		Clients:     snap.Participants,
		Leaderboard: standings,
		Config:      cfg,
	}, nil
}

// AllTimeLeaderboard returns the permanent ranking.
func (c *ControlPlane) AllTimeLeaderboard(ctx context.Context, secret string) (AllTimeBoard, error) {
	if err := c.authorize(ctx, secret, "all_time_leaderboard"); err != nil {
		return AllTimeBoard{}, err
	}
	return c.leaderboard.AllTime(ctx)
}

func (c *ControlPlane) authorize(ctx context.Context, secret, action string) error {
	admin, err := c.admins.Load(ctx, domain.DefaultAdminUsername)
	if err != nil {
		return fmt.Errorf("load admin: %w", err)
	}
	if !c.verify(admin, secret) {
		log.Warn().Str("action", action).Msg("admin authorization failed")
		return domain.NewAuthorizationError(action)
	}
	return nil
}

func (c *ControlPlane) verify(admin domain.Admin, secret string) bool {
	return secret != "" && c.hasher.Verify(admin.SecretHash, secret)
}

// updateParticipant applies fn and maps a missing participant to found
// false.
func (c *ControlPlane) updateParticipant(
	ctx context.Context,
	username, op string,
	fn func(*domain.Participant) error,
) (bool, error) {
	username, err := requireUsername(username)
	if err != nil {
		return false, err
	}
	if _, err := c.participants.Update(ctx, username, fn); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s participant %q: %w", op, username, err)
	}
	log.Info().Str("operation", op).Str("username", username).Msg("participant updated")
	c.publishParticipant(ctx, username)
	return true, nil
}

func (c *ControlPlane) publishParticipant(ctx context.Context, username string) {
	if c.events == nil {
		return
	}
	ev := ports.Event{Kind: ports.EventParticipantChanged, Username: username, At: c.clock.Now()}
	if err := c.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("failed to publish event")
	}
}

func requireUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		verr := domain.NewValidationError("participant")
		verr.AddError("username is required")
		return "", verr
	}
	return username, nil
}

func requireSecret(entity, secret string) error {
	if strings.TrimSpace(secret) == "" {
		verr := domain.NewValidationError(entity)
		verr.AddError("new secret must not be empty")
		return verr
	}
	return nil
}
