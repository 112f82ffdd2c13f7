package application

import (
	"context"
	"fmt"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// AllTimeBoard is the permanent ranking of every stored participant.
type AllTimeBoard struct {
	Total     int
	Standings []domain.Standing
}

// Leaderboard ranks participants from the store on every call.
type Leaderboard struct {
	participants ports.ParticipantStore
}

// NewLeaderboard creates a leaderboard over participants.
func NewLeaderboard(participants ports.ParticipantStore) *Leaderboard {
	return &Leaderboard{participants: participants}
}

// Rank returns every participant, online or not, by total score.
func (l *Leaderboard) Rank(ctx context.Context) ([]domain.Standing, error) {
	ps, err := l.participants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return domain.RankParticipants(ps), nil
}

// AllTime returns the ranking with its size.
func (l *Leaderboard) AllTime(ctx context.Context) (AllTimeBoard, error) {
	standings, err := l.Rank(ctx)
	if err != nil {
		return AllTimeBoard{}, err
	}
	return AllTimeBoard{Total: len(standings), Standings: standings}, nil
}
