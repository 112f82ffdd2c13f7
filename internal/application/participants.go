package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// MaxUsernameLength bounds participant usernames, in runes.
const MaxUsernameLength = 64

// JoinResult is returned to a participant on join.
type JoinResult struct {
	Participant domain.Participant
	Status      RoundStatus
}

// ParticipantGateway serves the participant-facing join and status calls.
type ParticipantGateway struct {
	rounds       *RoundController
	participants ports.ParticipantStore
	presence     *PresenceTracker
	hasher       ports.SecretHasher
	clock        clockwork.Clock
}

// NewParticipantGateway creates a gateway.
func NewParticipantGateway(
	rounds *RoundController,
	participants ports.ParticipantStore,
	presence *PresenceTracker,
	hasher ports.SecretHasher,
	clock clockwork.Clock,
) *ParticipantGateway {
	return &ParticipantGateway{
		rounds:       rounds,
		participants: participants,
		presence:     presence,
		hasher:       hasher,
		clock:        clock,
	}
}

// Join verifies the competition secret and creates or refreshes the
// participant. Joining does not clear a kick; the next status poll
// reports it.
func (g *ParticipantGateway) Join(ctx context.Context, username, secret, ip string) (JoinResult, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return JoinResult{}, err
	}

	cfg, err := g.rounds.Config(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	if secret == "" || !g.hasher.Verify(cfg.SecretHash, secret) {
		return JoinResult{}, domain.NewAuthorizationError("join")
	}

	now := g.clock.Now()
	p, err := g.participants.Upsert(ctx, username, func(p *domain.Participant) error {
		p.LastSeenAt = now
		if ip != "" {
			p.IPAddress = ip
		}
		return nil
	})
	if err != nil {
		return JoinResult{}, fmt.Errorf("join %q: %w", username, err)
	}

	log.Info().Str("username", username).Str("ip", ip).Msg("participant joined")
	return JoinResult{Participant: p, Status: statusFrom(cfg, &p)}, nil
}

// Status returns the participant view. With a username it also records a
// heartbeat; a kicked participant gets domain.ErrKicked. An unknown
// username is served the anonymous view.
func (g *ParticipantGateway) Status(ctx context.Context, username, ip string) (RoundStatus, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return g.rounds.Status(ctx, nil)
	}

	p, err := g.presence.Heartbeat(ctx, username, ip)
	switch {
	case err == nil:
		return g.rounds.Status(ctx, &p)
	case errors.Is(err, domain.ErrParticipantNotFound):
		return g.rounds.Status(ctx, nil)
	default:
		return RoundStatus{}, err
	}
}

func validateUsername(username string) error {
	verr := domain.NewValidationError("participant")
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		verr.AddError("username is required")
	case n > MaxUsernameLength:
		verr.AddError(fmt.Sprintf("username must be at most %d characters", MaxUsernameLength))
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
