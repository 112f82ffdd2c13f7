package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ahrav/gavel-arena/infrastructure/events"
	"github.com/ahrav/gavel-arena/infrastructure/secrets"
	"github.com/ahrav/gavel-arena/infrastructure/store"
	"github.com/ahrav/gavel-arena/infrastructure/store/memstore"
	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
	"github.com/ahrav/gavel-arena/internal/testutils"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

const (
	testCompetitionSecret = "default_password"
	testAdminSecret       = "admin123"
)

// harness wires every service over in-memory stores and a fake clock.
type harness struct {
	clock        *clockwork.FakeClock
	configs      ports.ConfigStore
	participants *testutils.FlakyParticipantStore
	admins       *memstore.AdminStore
	hasher       *secrets.BcryptHasher
	hub          *events.Hub
	judge        *testutils.StubJudge

	rounds   *RoundController
	presence *PresenceTracker
	board    *Leaderboard
	pipeline *ScoringPipeline
	control  *ControlPlane
	gateway  *ParticipantGateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfigs(t, nil)
}

// newHarnessWithConfigs lets a test wrap the config store.
func newHarnessWithConfigs(t *testing.T, wrap func(ports.ConfigStore) ports.ConfigStore) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	hasher := secrets.NewBcryptHasher(bcrypt.MinCost)
	compHash, err := hasher.Hash(testCompetitionSecret)
	require.NoError(t, err)
	adminHash, err := hasher.Hash(testAdminSecret)
	require.NoError(t, err)
	defaults := store.Defaults{CompetitionSecretHash: compHash, AdminSecretHash: adminHash}

	var configs ports.ConfigStore = memstore.NewConfigStore(clock, defaults)
	if wrap != nil {
		configs = wrap(configs)
	}

	h := &harness{
		clock:        clock,
		configs:      configs,
		participants: testutils.NewFlakyParticipantStore(memstore.NewParticipantStore(clock)),
		admins:       memstore.NewAdminStore(clock, defaults),
		hasher:       hasher,
		hub:          events.NewHub(),
		judge:        testutils.NewStubJudge(domain.Verdict{Score: 50, Reason: "Half way there."}),
	}
	h.rounds = NewRoundController(h.configs, h.hub, clock)
	h.presence = NewPresenceTracker(h.participants, clock, DefaultHeartbeatWindow, nil)
	h.board = NewLeaderboard(h.participants)
	h.pipeline = NewScoringPipeline(h.rounds, h.participants, h.judge, nil, clock, DefaultScoringConfig())
	h.control = NewControlPlane(ControlPlaneDeps{
		Admins:       h.admins,
		Hasher:       hasher,
		Rounds:       h.rounds,
		Participants: h.participants,
		Presence:     h.presence,
		Leaderboard:  h.board,
		Events:       h.hub,
		Clock:        clock,
	})
	h.gateway = NewParticipantGateway(h.rounds, h.participants, h.presence, hasher, clock)
	return h
}

// openTextRound loads three questions and starts the text round.
func (h *harness) openTextRound(t *testing.T, timerMinutes int) {
	t.Helper()
	ctx := context.Background()
	_, err := h.rounds.UpdateTextContent(ctx, domain.TextRoundContent{
		Q1: "A haiku about autumn rain", Answer1: "write a haiku about autumn rain",
		Q2: "A limerick about a cat", Answer2: "write a limerick about a cat",
		Q3: "A tweet announcing a launch", Answer3: "",
		TimerMinutes: timerMinutes,
	})
	require.NoError(t, err)
	_, err = h.rounds.TransitionTo(ctx, domain.RoundText, true)
	require.NoError(t, err)
}

// openImageRound loads three images and starts the image round.
func (h *harness) openImageRound(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.rounds.UpdateImageContent(ctx, domain.ImageRoundContent{
		Image1: "/img/1.png", Answer1: "a red fox in snow",
		Image2: "/img/2.png", Answer2: "",
		Image3: "/img/3.png", Answer3: "a lighthouse at dusk",
	})
	require.NoError(t, err)
	_, err = h.rounds.TransitionTo(ctx, domain.RoundImage, true)
	require.NoError(t, err)
}

// recordingSubscriber collects published events.
type recordingSubscriber struct {
	mu     sync.Mutex
	events []ports.Event
}

func (r *recordingSubscriber) record(ev ports.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSubscriber) kinds() []ports.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}
