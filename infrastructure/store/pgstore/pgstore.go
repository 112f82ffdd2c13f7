// Package pgstore implements the competition stores on Postgres with pgx.
//
// The config is a single row guarded by a version column. Participants are
// one row each; scores and answers live in a JSONB document while the
// columns used for ordering and lookup are kept beside it.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ahrav/gavel-arena/infrastructure/store"
	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

const backend = "postgres"

// Schema creates the tables used by the stores. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS competition_config (
	id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	version     BIGINT NOT NULL,
	secret_hash TEXT NOT NULL,
	document    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS participants (
	username     TEXT PRIMARY KEY,
	id           UUID NOT NULL UNIQUE,
	seq          BIGSERIAL,
	ip_address   TEXT NOT NULL DEFAULT '',
	kicked       BOOLEAN NOT NULL DEFAULT FALSE,
	total_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	last_seen_at TIMESTAMPTZ NOT NULL,
	document     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS participants_seq_idx ON participants (seq);

CREATE TABLE IF NOT EXISTS admins (
	username    TEXT PRIMARY KEY,
	secret_hash TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`

var (
	_ ports.ConfigStore      = (*ConfigRepository)(nil)
	_ ports.ParticipantStore = (*ParticipantRepository)(nil)
	_ ports.AdminStore       = (*AdminRepository)(nil)
)

// Connect opens a pool, verifies connectivity and applies Schema.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ports.NewStoreError(backend, "ping", "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().
		Str("host", cfg.ConnConfig.Host).
		Str("database", cfg.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("connected to database")
	return pool, nil
}

// withTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back otherwise.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// ConfigRepository stores the competition config in a single row.
type ConfigRepository struct {
	pool     *pgxpool.Pool
	clock    clockwork.Clock
	defaults store.Defaults
}

// NewConfigRepository constructs a repository backed by pool.
func NewConfigRepository(pool *pgxpool.Pool, clock clockwork.Clock, defaults store.Defaults) *ConfigRepository {
	return &ConfigRepository{pool: pool, clock: clock, defaults: defaults}
}

// Load returns the stored config, inserting the default row on first
// access. Concurrent first loads converge on one row.
func (r *ConfigRepository) Load(ctx context.Context) (domain.CompetitionConfig, error) {
	cfg, err := r.selectConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.CompetitionConfig{}, ports.NewStoreError(backend, "load config", "", err)
	}

	seed := domain.NewCompetitionConfig(r.defaults.CompetitionSecretHash, r.clock.Now())
	doc, err := encodeConfig(seed)
	if err != nil {
		return domain.CompetitionConfig{}, err
	}
	const insert = `
		INSERT INTO competition_config (id, version, secret_hash, document, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, seed.Version, seed.SecretHash, doc, seed.UpdatedAt); err != nil {
		return domain.CompetitionConfig{}, ports.NewStoreError(backend, "seed config", "", err)
	}

	cfg, err = r.selectConfig(ctx)
	if err != nil {
		return domain.CompetitionConfig{}, ports.NewStoreError(backend, "load config", "", err)
	}
	return cfg, nil
}

func (r *ConfigRepository) selectConfig(ctx context.Context) (domain.CompetitionConfig, error) {
	const q = `
		SELECT version, secret_hash, document
		FROM competition_config
		WHERE id = 1
	`
	var (
		version uint64
		hash    string
		doc     []byte
	)
	if err := r.pool.QueryRow(ctx, q).Scan(&version, &hash, &doc); err != nil {
		return domain.CompetitionConfig{}, err
	}
	return decodeConfig(version, hash, doc)
}

// CompareAndSwap updates the row only while its version equals expected.
func (r *ConfigRepository) CompareAndSwap(ctx context.Context, expected uint64, next domain.CompetitionConfig) error {
	if err := store.CheckNextVersion(expected, next); err != nil {
		return err
	}
	doc, err := encodeConfig(next)
	if err != nil {
		return err
	}

	const q = `
		UPDATE competition_config
		SET version = $2, secret_hash = $3, document = $4, updated_at = $5
		WHERE id = 1 AND version = $1
	`
	res, err := r.pool.Exec(ctx, q, expected, next.Version, next.SecretHash, doc, next.UpdatedAt)
	if err != nil {
		return ports.NewStoreError(backend, "swap config", "", err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ParticipantRepository stores one row per participant.
type ParticipantRepository struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

// NewParticipantRepository constructs a repository backed by pool.
func NewParticipantRepository(pool *pgxpool.Pool, clock clockwork.Clock) *ParticipantRepository {
	return &ParticipantRepository{pool: pool, clock: clock}
}

// Get returns the participant stored under username.
func (r *ParticipantRepository) Get(ctx context.Context, username string) (domain.Participant, error) {
	key := store.NormalizeUsername(username)
	const q = `
		SELECT seq, document
		FROM participants
		WHERE username = $1
	`
	p, err := scanParticipant(r.pool.QueryRow(ctx, q, key))
	if err != nil {
		return domain.Participant{}, mapNotFound(err, "get participant", key)
	}
	return p, nil
}

// Upsert inserts the participant if missing, then applies fn under a row
// lock.
func (r *ParticipantRepository) Upsert(
	ctx context.Context,
	username string,
	fn func(*domain.Participant) error,
) (domain.Participant, error) {
	return r.modify(ctx, username, true, fn)
}

// Update applies fn to an existing participant under a row lock.
func (r *ParticipantRepository) Update(
	ctx context.Context,
	username string,
	fn func(*domain.Participant) error,
) (domain.Participant, error) {
	return r.modify(ctx, username, false, fn)
}

func (r *ParticipantRepository) modify(
	ctx context.Context,
	username string,
	create bool,
	fn func(*domain.Participant) error,
) (domain.Participant, error) {
	key := store.NormalizeUsername(username)
	var out domain.Participant

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if create {
			if err := insertParticipant(ctx, tx, domain.NewParticipant(key, r.clock.Now())); err != nil {
				return err
			}
		}

		const lock = `
			SELECT seq, document
			FROM participants
			WHERE username = $1
			FOR UPDATE
		`
		p, err := scanParticipant(tx.QueryRow(ctx, lock, key))
		if err != nil {
			return err
		}
		id, seq, createdAt := p.ID, p.Seq, p.CreatedAt

		if fn != nil {
			if err := fn(&p); err != nil {
				return err
			}
		}
		p.Username, p.ID, p.Seq, p.CreatedAt = key, id, seq, createdAt

		if err := writeParticipant(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Participant{}, mapNotFound(err, "update participant", key)
	}
	return out, nil
}

func insertParticipant(ctx context.Context, tx pgx.Tx, p domain.Participant) error {
	doc, err := encodeParticipant(p)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO participants (username, id, ip_address, created_at, last_seen_at, document)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (username) DO NOTHING
	`
	_, err = tx.Exec(ctx, q, p.Username, p.ID, p.IPAddress, p.CreatedAt, p.LastSeenAt, doc)
	if err != nil && !isUniqueViolation(err) {
		return err
	}
	return nil
}

func writeParticipant(ctx context.Context, tx pgx.Tx, p domain.Participant) error {
	doc, err := encodeParticipant(p)
	if err != nil {
		return err
	}
	const q = `
		UPDATE participants
		SET ip_address = $2, kicked = $3, total_score = $4, last_seen_at = $5, document = $6
		WHERE username = $1
	`
	_, err = tx.Exec(ctx, q, p.Username, p.IPAddress, p.Kicked, p.TotalScore, p.LastSeenAt, doc)
	return err
}

// List returns every participant ordered by creation.
func (r *ParticipantRepository) List(ctx context.Context) ([]domain.Participant, error) {
	const q = `
		SELECT seq, document
		FROM participants
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, ports.NewStoreError(backend, "list participants", "", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, ports.NewStoreError(backend, "list participants", "", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError(backend, "list participants", "", err)
	}
	return out, nil
}

// Delete removes the participant row.
func (r *ParticipantRepository) Delete(ctx context.Context, username string) error {
	key := store.NormalizeUsername(username)
	res, err := r.pool.Exec(ctx, `DELETE FROM participants WHERE username = $1`, key)
	if err != nil {
		return ports.NewStoreError(backend, "delete participant", key, err)
	}
	if res.RowsAffected() == 0 {
		return domain.NewParticipantNotFound(key)
	}
	return nil
}

// AdminRepository stores admin credentials.
type AdminRepository struct {
	pool     *pgxpool.Pool
	clock    clockwork.Clock
	defaults store.Defaults
}

// NewAdminRepository constructs a repository backed by pool.
func NewAdminRepository(pool *pgxpool.Pool, clock clockwork.Clock, defaults store.Defaults) *AdminRepository {
	return &AdminRepository{pool: pool, clock: clock, defaults: defaults}
}

// Load returns the admin, seeding the default admin on first access.
func (r *AdminRepository) Load(ctx context.Context, username string) (domain.Admin, error) {
	if username == domain.DefaultAdminUsername {
		const seed = `
			INSERT INTO admins (username, secret_hash, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (username) DO NOTHING
		`
		if _, err := r.pool.Exec(ctx, seed, username, r.defaults.AdminSecretHash, r.clock.Now()); err != nil {
			return domain.Admin{}, ports.NewStoreError(backend, "seed admin", username, err)
		}
	}

	const q = `
		SELECT username, secret_hash, updated_at
		FROM admins
		WHERE username = $1
	`
	var a domain.Admin
	if err := r.pool.QueryRow(ctx, q, username).Scan(&a.Username, &a.SecretHash, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Admin{}, domain.NewAdminNotFound(username)
		}
		return domain.Admin{}, ports.NewStoreError(backend, "load admin", username, err)
	}
	return a, nil
}

// Save upserts the admin row.
func (r *AdminRepository) Save(ctx context.Context, a domain.Admin) error {
	const q = `
		INSERT INTO admins (username, secret_hash, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET secret_hash = EXCLUDED.secret_hash, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, q, a.Username, a.SecretHash, a.UpdatedAt); err != nil {
		return ports.NewStoreError(backend, "save admin", a.Username, err)
	}
	return nil
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var (
		seq int64
		doc []byte
	)
	if err := row.Scan(&seq, &doc); err != nil {
		return domain.Participant{}, err
	}
	return decodeParticipant(seq, doc)
}

func mapNotFound(err error, op, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewParticipantNotFound(key)
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	// Mutation callbacks return domain errors that must reach the caller
	// unchanged.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.DeadlineExceeded) {
		return ports.NewStoreError(backend, op, key, err)
	}
	return err
}

// configDocument is the JSONB shape of the config row. Version and the
// secret hash live in their own columns.
type configDocument struct {
	Rounds         domain.RoundFlags        `json:"rounds"`
	Round1         domain.TextRoundContent  `json:"textRoundConfig"`
	Round2         domain.ImageRoundContent `json:"imgRoundConfig"`
	Round1Deadline *time.Time               `json:"round1EndTime"`
	Round2Deadline *time.Time               `json:"round2EndTime"`
	GlobalWarning  *domain.Warning          `json:"globalWarning"`
	UpdatedAt      time.Time                `json:"updatedAt"`
}

func encodeConfig(c domain.CompetitionConfig) ([]byte, error) {
	doc := configDocument{
		Rounds:         c.Rounds,
		Round1:         c.Round1,
		Round2:         c.Round2,
		Round1Deadline: c.Round1Deadline,
		Round2Deadline: c.Round2Deadline,
		GlobalWarning:  c.GlobalWarning,
		UpdatedAt:      c.UpdatedAt,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return b, nil
}

func decodeConfig(version uint64, hash string, raw []byte) (domain.CompetitionConfig, error) {
	var doc configDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.CompetitionConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return domain.CompetitionConfig{
		Version:        version,
		SecretHash:     hash,
		Rounds:         doc.Rounds,
		Round1:         doc.Round1,
		Round2:         doc.Round2,
		Round1Deadline: doc.Round1Deadline,
		Round2Deadline: doc.Round2Deadline,
		GlobalWarning:  doc.GlobalWarning,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

func encodeParticipant(p domain.Participant) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode participant: %w", err)
	}
	return b, nil
}

// decodeParticipant restores a record; seq comes from its column since the
// insert document predates the sequence assignment.
func decodeParticipant(seq int64, raw []byte) (domain.Participant, error) {
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant: %w", err)
	}
	p.Seq = seq
	if p.Round1Answers == nil {
		p.Round1Answers = map[string]string{}
	}
	if p.Round2Answers == nil {
		p.Round2Answers = map[string]string{}
	}
	p.Recompute()
	return p, nil
}
