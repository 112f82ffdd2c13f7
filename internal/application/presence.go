package application

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// PresenceEntry is one participant with its online flag.
type PresenceEntry struct {
	Participant domain.Participant
	Online      bool
}

// PresenceSnapshot lists every participant and how many are online.
type PresenceSnapshot struct {
	Connected    int
	Participants []PresenceEntry
}

// PresenceTracker classifies participants as online when their last
// heartbeat falls inside the window. It never deletes records.
type PresenceTracker struct {
	participants ports.ParticipantStore
	clock        clockwork.Clock
	window       time.Duration
	metrics      ports.MetricsCollector
}

// NewPresenceTracker creates a tracker. A non-positive window falls back
// to DefaultHeartbeatWindow.
func NewPresenceTracker(
	participants ports.ParticipantStore,
	clock clockwork.Clock,
	window time.Duration,
	metrics ports.MetricsCollector,
) *PresenceTracker {
	if window <= 0 {
		window = DefaultHeartbeatWindow
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &PresenceTracker{participants: participants, clock: clock, window: window, metrics: metrics}
}

// Heartbeat refreshes LastSeenAt and the address of an existing
// participant. A kicked participant gets domain.ErrKicked and nothing is
// written; an unknown one gets a *domain.NotFoundError.
func (t *PresenceTracker) Heartbeat(ctx context.Context, username, ip string) (domain.Participant, error) {
	now := t.clock.Now()
	return t.participants.Update(ctx, username, func(p *domain.Participant) error {
		if p.Kicked {
			return domain.ErrKicked
		}
		p.LastSeenAt = now
		if ip != "" {
			p.IPAddress = ip
		}
		return nil
	})
}

// IsOnline reports whether p heartbeated within the window before now.
func (t *PresenceTracker) IsOnline(p domain.Participant, now time.Time) bool {
	return p.IsOnline(now, t.window)
}

// Window returns the heartbeat window.
func (t *PresenceTracker) Window() time.Duration { return t.window }

// Snapshot classifies every stored participant.
func (t *PresenceTracker) Snapshot(ctx context.Context) (PresenceSnapshot, error) {
	ps, err := t.participants.List(ctx)
	if err != nil {
		return PresenceSnapshot{}, fmt.Errorf("list participants: %w", err)
	}

	now := t.clock.Now()
	snap := PresenceSnapshot{Participants: make([]PresenceEntry, len(ps))}
	for i, p := range ps {
		online := t.IsOnline(p, now)
		if online {
			snap.Connected++
		}
		snap.Participants[i] = PresenceEntry{Participant: p, Online: online}
	}
	t.metrics.RecordGauge(ports.MetricOnline, float64(snap.Connected), nil)
	return snap, nil
}
