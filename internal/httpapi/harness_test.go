package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ahrav/gavel-arena/infrastructure/events"
	"github.com/ahrav/gavel-arena/infrastructure/middleware"
	"github.com/ahrav/gavel-arena/infrastructure/secrets"
	"github.com/ahrav/gavel-arena/infrastructure/store"
	"github.com/ahrav/gavel-arena/infrastructure/store/memstore"
	"github.com/ahrav/gavel-arena/internal/application"
	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/testutils"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

const (
	competitionSecret = "default_password"
	adminSecret       = "admin123"
)

type testServer struct {
	clock   *clockwork.FakeClock
	judge   *testutils.StubJudge
	hub     *events.Hub
	metrics *middleware.PrometheusMetrics
	handler http.Handler

	participants *memstore.ParticipantStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	hasher := secrets.NewBcryptHasher(bcrypt.MinCost)
	compHash, err := hasher.Hash(competitionSecret)
	require.NoError(t, err)
	adminHash, err := hasher.Hash(adminSecret)
	require.NoError(t, err)
	defaults := store.Defaults{CompetitionSecretHash: compHash, AdminSecretHash: adminHash}

	participants := memstore.NewParticipantStore(clock)
	hub := events.NewHub()
	judge := testutils.NewStubJudge(domain.Verdict{Score: 50, Reason: "Half way there."})
	metrics := middleware.NewPrometheusMetrics()

	rounds := application.NewRoundController(memstore.NewConfigStore(clock, defaults), hub, clock)
	presence := application.NewPresenceTracker(participants, clock, application.DefaultHeartbeatWindow, metrics)
	board := application.NewLeaderboard(participants)

	ts := &testServer{clock: clock, judge: judge, hub: hub, metrics: metrics, participants: participants}
	ts.handler = NewRouter(Deps{
		Gateway:  application.NewParticipantGateway(rounds, participants, presence, hasher, clock),
		Pipeline: application.NewScoringPipeline(rounds, participants, judge, metrics, clock, application.DefaultScoringConfig()),
		Control: application.NewControlPlane(application.ControlPlaneDeps{
			Admins:       memstore.NewAdminStore(clock, defaults),
			Hasher:       hasher,
			Rounds:       rounds,
			Participants: participants,
			Presence:     presence,
			Leaderboard:  board,
			Events:       hub,
			Clock:        clock,
		}),
		Events:         hub,
		Clock:          clock,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
		Stream:         StreamConfig{Interval: time.Second},
	})
	return ts
}

// do sends body as JSON and decodes the response into a generic map.
func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.7:5123"
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (ts *testServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body)
}

func (ts *testServer) join(t *testing.T, username string) {
	t.Helper()
	code, _ := ts.post(t, "/api/auth/join", map[string]any{"username": username, "password": competitionSecret})
	require.Equal(t, http.StatusOK, code)
}

// openTextRound loads text content and starts the round through the admin API.
func (ts *testServer) openTextRound(t *testing.T, timer int) {
	t.Helper()
	code, _ := ts.post(t, "/api/admin/round/text", map[string]any{
		"q1": "A haiku about autumn rain", "q1Ans": "write a haiku about autumn rain",
		"q2": "A limerick about a cat", "q2Ans": "write a limerick about a cat",
		"q3": "A tweet announcing a launch", "q3Ans": "",
		"timerDuration": timer,
		"password":      adminSecret,
	})
	require.Equal(t, http.StatusOK, code)
	ts.toggle(t, "round1", true)
}

func (ts *testServer) openImageRound(t *testing.T) {
	t.Helper()
	code, _ := ts.post(t, "/api/admin/round/image", map[string]any{
		"q1Img": "/img/1.png", "q1Ans": "a red fox in snow",
		"q2Img": "/img/2.png", "q2Ans": "",
		"q3Img": "/img/3.png", "q3Ans": "a lighthouse at dusk",
		"password": adminSecret,
	})
	require.Equal(t, http.StatusOK, code)
	ts.toggle(t, "round2", true)
}

func (ts *testServer) toggle(t *testing.T, round string, on bool) {
	t.Helper()
	code, _ := ts.post(t, "/api/admin/round/toggle", map[string]any{"round": round, "state": on, "password": adminSecret})
	require.Equal(t, http.StatusOK, code)
}
