package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/gavel-arena/internal/domain"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		assert     func(*testing.T, map[string]any)
	}{
		{
			name:       "correct secret",
			body:       map[string]any{"username": "ada", "password": competitionSecret},
			wantStatus: http.StatusOK,
			assert: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, "ada", body["username"])
				rounds := body["rounds"].(map[string]any)
				assert.Equal(t, true, rounds["lobby"])
				assert.Contains(t, body, "textConfig")
				assert.Contains(t, body, "imgConfig")
			},
		},
		{
			name:       "wrong secret",
			body:       map[string]any{"username": "ada", "password": "guess"},
			wantStatus: http.StatusUnauthorized,
			assert: func(t *testing.T, body map[string]any) {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, "Incorrect Competition Password", body["message"])
			},
		},
		{
			name:       "missing username",
			body:       map[string]any{"password": competitionSecret},
			wantStatus: http.StatusBadRequest,
			assert: func(t *testing.T, body map[string]any) {
				assert.Equal(t, false, body["success"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			code, body := ts.post(t, "/api/auth/join", tt.body)
			assert.Equal(t, tt.wantStatus, code)
			tt.assert(t, body)
		})
	}
}

func TestJoin_MalformedJSON(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/join", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLogin(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.post(t, "/api/auth/admin-login", map[string]any{"password": adminSecret})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.DefaultAdminUsername, body["username"])

	code, body = ts.post(t, "/api/auth/admin-login", map[string]any{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthorized", body["message"])
}

func TestStatus_TimersInEpochMillis(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")
	ts.openTextRound(t, 10)

	code, body := ts.do(t, http.MethodGet, "/api/game/status?username=ada", nil)
	require.Equal(t, http.StatusOK, code)

	rounds := body["rounds"].(map[string]any)
	assert.Equal(t, true, rounds["round1"])
	assert.Equal(t, false, rounds["lobby"])

	timers := body["timers"].(map[string]any)
	want := epoch.Add(10 * time.Minute).UnixMilli()
	assert.InDelta(t, float64(want), timers["round1EndTime"], 0)
	assert.Nil(t, timers["round2EndTime"])

	text := body["textConfig"].(map[string]any)
	assert.Equal(t, "A haiku about autumn rain", text["q1"])
	assert.NotContains(t, text, "q1Ans")
}

func TestStatus_Kicked(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")

	code, body := ts.post(t, "/api/admin/users/kick", map[string]any{"username": "ada", "password": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["found"])

	code, body = ts.do(t, http.MethodGet, "/api/game/status?username=ada", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, true, body["kicked"])
	assert.Equal(t, KickedMessage, body["message"])

	// A kicked participant can still authenticate.
	ts.join(t, "ada")
}

func TestSubmitText(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")
	ts.openTextRound(t, 0)
	ts.judge.On("a cat poem", domain.Verdict{Score: 80, Reason: "Close."})

	code, body := ts.post(t, "/api/game/submit/text", map[string]any{
		"username":   "ada",
		"answers":    map[string]string{"q1": "a rain poem", "q2": "a cat poem"},
		"questionId": "q2",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	results := body["results"].(map[string]any)
	require.Len(t, results, 1)
	q2 := results["q2"].(map[string]any)
	assert.InDelta(t, 80.0, q2["score"], 0)
	assert.Equal(t, "Close.", q2["reason"])
	assert.InDelta(t, 80.0, body["totalScore"], 0)
}

func TestSubmitImage_KeysAreBareNumbers(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")
	ts.openImageRound(t)

	code, body := ts.post(t, "/api/game/submit/image", map[string]any{
		"username":   "ada",
		"answers":    map[string]string{"1": "a fox", "3": "a tower"},
		"questionId": 3,
	})
	require.Equal(t, http.StatusOK, code)

	results := body["results"].(map[string]any)
	require.Len(t, results, 1)
	assert.Contains(t, results, "3")
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*testing.T, *testServer)
		path       string
		body       any
		wantStatus int
	}{
		{
			name:       "round not active",
			setup:      func(t *testing.T, ts *testServer) { ts.join(t, "ada") },
			path:       "/api/game/submit/text",
			body:       map[string]any{"username": "ada", "answers": map[string]string{"q1": "x"}},
			wantStatus: http.StatusConflict,
		},
		{
			name: "deadline passed",
			setup: func(t *testing.T, ts *testServer) {
				ts.join(t, "ada")
				ts.openTextRound(t, 1)
				ts.clock.Advance(2 * time.Minute)
			},
			path:       "/api/game/submit/text",
			body:       map[string]any{"username": "ada", "answers": map[string]string{"q1": "x"}},
			wantStatus: http.StatusConflict,
		},
		{
			name: "no answers",
			setup: func(t *testing.T, ts *testServer) {
				ts.join(t, "ada")
				ts.openTextRound(t, 0)
			},
			path:       "/api/game/submit/text",
			body:       map[string]any{"username": "ada", "answers": map[string]string{"q1": "  "}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "bad question filter",
			setup: func(t *testing.T, ts *testServer) {
				ts.join(t, "ada")
				ts.openTextRound(t, 0)
			},
			path:       "/api/game/submit/text",
			body:       map[string]any{"username": "ada", "answers": map[string]string{"q1": "x"}, "questionId": "q9"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			tt.setup(t, ts)
			code, body := ts.post(t, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, code, "body: %v", body)
		})
	}
}

func TestAdminRoutes_RequireSecret(t *testing.T) {
	routes := []struct {
		path string
		body map[string]any
	}{
		{"/api/admin/round/toggle", map[string]any{"round": "round1", "state": true}},
		{"/api/admin/round/text", map[string]any{"q1": "x"}},
		{"/api/admin/round/image", map[string]any{"q1Img": "x"}},
		{"/api/admin/users/warn", map[string]any{"username": "ada"}},
		{"/api/admin/users/kick", map[string]any{"username": "ada"}},
		{"/api/admin/users/reset", map[string]any{"username": "ada"}},
		{"/api/admin/users/delete", map[string]any{"username": "ada"}},
		{"/api/admin/dashboard", map[string]any{}},
		{"/api/admin/leaderboard/all-time", map[string]any{}},
	}

	for _, rt := range routes {
		t.Run(rt.path, func(t *testing.T) {
			ts := newTestServer(t)
			rt.body["password"] = "wrong"
			code, body := ts.post(t, rt.path, rt.body)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestToggleRound_Validation(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.post(t, "/api/admin/round/toggle", map[string]any{"round": "round3", "state": true, "password": adminSecret})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUpdateTextRound_RejectsNegativeTimer(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.post(t, "/api/admin/round/text", map[string]any{"q1": "x", "timerDuration": -1, "password": adminSecret})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCompetitionSecretRotation(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.post(t, "/api/admin/config/password", map[string]any{"newPassword": "fresh", "authPassword": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Global Password Updated", body["message"])

	code, _ = ts.post(t, "/api/auth/join", map[string]any{"username": "ada", "password": competitionSecret})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = ts.post(t, "/api/auth/join", map[string]any{"username": "ada", "password": "fresh"})
	assert.Equal(t, http.StatusOK, code)
}

func TestChangeAdminSecret(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.post(t, "/api/admin/change-password", map[string]any{"currentPassword": adminSecret, "newPassword": "stronger"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Password updated successfully", body["message"])

	code, _ = ts.post(t, "/api/admin/dashboard", map[string]any{"password": adminSecret})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = ts.post(t, "/api/admin/dashboard", map[string]any{"password": "stronger"})
	assert.Equal(t, http.StatusOK, code)
}

func TestWarn(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")

	// Given an individual warning
	code, body := ts.post(t, "/api/admin/users/warn", map[string]any{"username": "ada", "message": "eyes on your own screen", "password": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["found"])

	// When the participant polls
	_, body = ts.do(t, http.MethodGet, "/api/game/status?username=ada", nil)

	// Then the warning is in the view with a millisecond timestamp
	warning := body["warning"].(map[string]any)
	assert.Equal(t, "eyes on your own screen", warning["message"])
	assert.InDelta(t, float64(epoch.UnixMilli()), warning["timestamp"], 0)

	// And a warning for an unknown user is harmless
	code, body = ts.post(t, "/api/admin/users/warn", map[string]any{"username": "ghost", "password": adminSecret})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["found"])
}

func TestDashboardAndLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")
	ts.join(t, "bob")
	ts.openTextRound(t, 0)
	ts.judge.On("ada's prompt", domain.Verdict{Score: 90, Reason: "Great."})

	code, _ := ts.post(t, "/api/game/submit/text", map[string]any{"username": "ada", "answers": map[string]string{"q1": "ada's prompt"}})
	require.Equal(t, http.StatusOK, code)

	code, body := ts.post(t, "/api/admin/dashboard", map[string]any{"password": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 2.0, body["connectedCount"], 0)
	clients := body["clients"].([]any)
	require.Len(t, clients, 2)
	for _, c := range clients {
		assert.Equal(t, true, c.(map[string]any)["isOnline"])
	}

	board := body["leaderboard"].([]any)
	require.Len(t, board, 2)
	first := board[0].(map[string]any)
	assert.Equal(t, "ada", first["username"])
	assert.InDelta(t, 1.0, first["rank"], 0)

	cfg := body["config"].(map[string]any)
	text := cfg["textRoundConfig"].(map[string]any)
	assert.Equal(t, "write a haiku about autumn rain", text["q1Ans"])

	code, body = ts.post(t, "/api/admin/leaderboard/all-time", map[string]any{"password": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 2.0, body["total"], 0)
}

func TestResetAndDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")

	code, body := ts.post(t, "/api/admin/users/reset", map[string]any{"username": "ada", "password": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["found"])

	code, body = ts.post(t, "/api/admin/users/delete", map[string]any{"username": "ada", "password": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["found"])

	code, body = ts.post(t, "/api/admin/users/delete", map[string]any{"username": "ada", "password": adminSecret})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["found"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "arena_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/join", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header string
		remote string
		want   string
	}{
		{name: "forwarded chain", header: "203.0.113.9, 10.0.0.1", remote: "10.0.0.1:80", want: "203.0.113.9"},
		{name: "remote addr", remote: "192.0.2.4:5555", want: "192.0.2.4"},
		{name: "remote without port", remote: "192.0.2.4", want: "192.0.2.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set("X-Forwarded-For", tt.header)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestSubmit_ParticipantDeletedDuringJudging(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "ada")
	ts.openTextRound(t, 0)

	// Given the participant is deleted while the judge is scoring
	ts.judge.BeforeScore(func(domain.JudgeRequest) {
		_ = ts.participants.Delete(context.Background(), "ada")
	})

	// When the submission finishes judging
	code, body := ts.post(t, "/api/game/submit/text", map[string]any{
		"username": "ada",
		"answers":  map[string]string{"q1": "a rain poem"},
	})

	// Then the lost save surfaces as a persistence failure, not a 404
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to save submission", body["message"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "persistence wrapping not found",
			err:        domain.NewPersistenceError("save round1 q1 for amy", 1, domain.NewParticipantNotFound("amy")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to save submission",
		},
		{
			name:       "not found",
			err:        domain.NewParticipantNotFound("amy"),
			wantStatus: http.StatusNotFound,
			wantMsg:    domain.NewParticipantNotFound("amy").Error(),
		},
		{
			name:       "version conflict",
			err:        domain.ErrVersionConflict,
			wantStatus: http.StatusConflict,
			wantMsg:    "Competition state changed, please retry",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}
