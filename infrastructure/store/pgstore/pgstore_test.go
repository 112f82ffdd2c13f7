package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/gavel-arena/infrastructure/store"
	"github.com/ahrav/gavel-arena/internal/domain"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestConfigDocument_KeepsSecretOutOfJSON(t *testing.T) {
	cfg := domain.NewCompetitionConfig("$2a$10$secret", start)
	deadline := start.Add(5 * time.Minute)
	cfg.Round1Deadline = &deadline
	cfg.Round1.Q1 = "A haiku about rain"

	raw, err := encodeConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	got, err := decodeConfig(cfg.Version, cfg.SecretHash, raw)
	require.NoError(t, err)
	assert.Equal(t, cfg.SecretHash, got.SecretHash)
	assert.Equal(t, "A haiku about rain", got.Round1.Q1)
	require.NotNil(t, got.Round1Deadline)
	assert.True(t, deadline.Equal(*got.Round1Deadline))
}

func TestDecodeParticipant_RecomputesDerivedTotals(t *testing.T) {
	// A document whose stored totals drifted must come back consistent.
	raw := []byte(`{"username":"alice","questionScores":{"q1":40,"q2":10,"q3":0},"imgScores":{"q1":5},"totalScore":999}`)

	p, err := decodeParticipant(7, raw)
	require.NoError(t, err)

	assert.Equal(t, int64(7), p.Seq)
	assert.Equal(t, 50.0, p.Totals.Round1)
	assert.Equal(t, 5.0, p.Totals.Round2)
	assert.Equal(t, 55.0, p.TotalScore)
	assert.NotNil(t, p.Round1Answers)
	assert.NotNil(t, p.Round2Answers)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, isUniqueViolation(assert.AnError))
}

// TestPostgresIntegration runs against a real database when
// ARENA_TEST_DATABASE_URL is set.
func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("ARENA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ARENA_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE participants, competition_config, admins`)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(start)
	defaults := store.Defaults{CompetitionSecretHash: "c-hash", AdminSecretHash: "a-hash"}

	t.Run("config cas", func(t *testing.T) {
		repo := NewConfigRepository(pool, clock, defaults)
		cfg, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), cfg.Version)

		next := cfg.Clone()
		next.Version++
		require.NoError(t, next.Transition(domain.RoundText, true, start))
		require.NoError(t, repo.CompareAndSwap(ctx, cfg.Version, next))
		assert.ErrorIs(t, repo.CompareAndSwap(ctx, cfg.Version, next), domain.ErrVersionConflict)
	})

	t.Run("participant max merge", func(t *testing.T) {
		repo := NewParticipantRepository(pool, clock)
		for _, s := range []float64{40, 70, 20} {
			_, err := repo.Upsert(ctx, "alice", func(p *domain.Participant) error {
				p.ApplyScore(domain.RoundText, domain.Q1, s, "x")
				return nil
			})
			require.NoError(t, err)
		}
		p, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 70.0, p.TotalScore)

		_, err = repo.Update(ctx, "nobody", nil)
		assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
		require.NoError(t, repo.Delete(ctx, "alice"))
	})

	t.Run("default admin", func(t *testing.T) {
		repo := NewAdminRepository(pool, clock, defaults)
		a, err := repo.Load(ctx, domain.DefaultAdminUsername)
		require.NoError(t, err)
		assert.Equal(t, "a-hash", a.SecretHash)
	})
}
