// Package memstore implements the competition stores in process memory.
// It backs single-replica deployments and the test suites.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/ahrav/gavel-arena/infrastructure/store"
	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

var (
	_ ports.ConfigStore      = (*ConfigStore)(nil)
	_ ports.ParticipantStore = (*ParticipantStore)(nil)
	_ ports.AdminStore       = (*AdminStore)(nil)
)

// ConfigStore keeps the competition config behind a mutex and enforces the
// version check on every swap.
type ConfigStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	defaults store.Defaults
	current  *domain.CompetitionConfig
}

// NewConfigStore creates an empty store. The default document is created
// on first Load.
func NewConfigStore(clock clockwork.Clock, defaults store.Defaults) *ConfigStore {
	return &ConfigStore{clock: clock, defaults: defaults}
}

// Load returns a copy of the current config.
func (s *ConfigStore) Load(ctx context.Context) (domain.CompetitionConfig, error) {
	if err := ctx.Err(); err != nil {
		return domain.CompetitionConfig{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		cfg := domain.NewCompetitionConfig(s.defaults.CompetitionSecretHash, s.clock.Now())
		s.current = &cfg
	}
	return s.current.Clone(), nil
}

// CompareAndSwap stores next if the current version equals expected.
func (s *ConfigStore) CompareAndSwap(ctx context.Context, expected uint64, next domain.CompetitionConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.CheckNextVersion(expected, next); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var version uint64
	if s.current != nil {
		version = s.current.Version
	}
	if version != expected {
		return domain.ErrVersionConflict
	}
	cfg := next.Clone()
	s.current = &cfg
	return nil
}

// ParticipantStore keeps participant records keyed by username. One mutex
// serializes every read-modify-write.
type ParticipantStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	records map[string]*domain.Participant
	seq     int64
}

// NewParticipantStore creates an empty store.
func NewParticipantStore(clock clockwork.Clock) *ParticipantStore {
	return &ParticipantStore{
		clock:   clock,
		records: make(map[string]*domain.Participant),
	}
}

// Get returns a copy of the record.
func (s *ParticipantStore) Get(ctx context.Context, username string) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	key := store.NormalizeUsername(username)

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.records[key]
	if !ok {
		return domain.Participant{}, domain.NewParticipantNotFound(key)
	}
	return p.Clone(), nil
}

// Upsert creates the record if missing and applies fn.
func (s *ParticipantStore) Upsert(
	ctx context.Context,
	username string,
	fn func(*domain.Participant) error,
) (domain.Participant, error) {
	return s.modify(ctx, username, true, fn)
}

// Update applies fn to an existing record.
func (s *ParticipantStore) Update(
	ctx context.Context,
	username string,
	fn func(*domain.Participant) error,
) (domain.Participant, error) {
	return s.modify(ctx, username, false, fn)
}

func (s *ParticipantStore) modify(
	ctx context.Context,
	username string,
	create bool,
	fn func(*domain.Participant) error,
) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	key := store.NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	var working domain.Participant
	existing, ok := s.records[key]
	switch {
	case ok:
		working = existing.Clone()
	case create:
		working = domain.NewParticipant(key, s.clock.Now())
		working.Seq = s.seq + 1
	default:
		return domain.Participant{}, domain.NewParticipantNotFound(key)
	}

	if fn != nil {
		if err := fn(&working); err != nil {
			return domain.Participant{}, err
		}
	}
	// Identity fields are owned by the store.
	working.Username = key
	if ok {
		working.ID = existing.ID
		working.Seq = existing.Seq
		working.CreatedAt = existing.CreatedAt
	} else {
		s.seq = working.Seq
	}

	stored := working.Clone()
	s.records[key] = &stored
	return working, nil
}

// List returns every record in creation order.
func (s *ParticipantStore) List(ctx context.Context) ([]domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.Participant, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Delete removes the record.
func (s *ParticipantStore) Delete(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := store.NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return domain.NewParticipantNotFound(key)
	}
	delete(s.records, key)
	return nil
}

// AdminStore keeps admin credentials.
type AdminStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	defaults store.Defaults
	admins   map[string]domain.Admin
}

// NewAdminStore creates an empty store. The default admin is created on
// first Load.
func NewAdminStore(clock clockwork.Clock, defaults store.Defaults) *AdminStore {
	return &AdminStore{
		clock:    clock,
		defaults: defaults,
		admins:   make(map[string]domain.Admin),
	}
}

// Load returns the admin record.
func (s *AdminStore) Load(ctx context.Context, username string) (domain.Admin, error) {
	if err := ctx.Err(); err != nil {
		return domain.Admin{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.admins[username]; ok {
		return a, nil
	}
	if username != domain.DefaultAdminUsername {
		return domain.Admin{}, domain.NewAdminNotFound(username)
	}
	a := domain.Admin{
		Username:   username,
		SecretHash: s.defaults.AdminSecretHash,
		UpdatedAt:  s.clock.Now(),
	}
	s.admins[username] = a
	return a, nil
}

// Save replaces the admin record.
func (s *AdminStore) Save(ctx context.Context, admin domain.Admin) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.admins[admin.Username] = admin
	return nil
}
